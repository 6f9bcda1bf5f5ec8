package factsync

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// CheckReport describes the date coverage of the persisted long snapshot
type CheckReport struct {
	Year   int
	Metric string // Display name the rows were narrowed to, "" for all
	Rows   int

	FirstFiling       time.Time // Zero when no row has a usable date
	LastFiling        time.Time
	FiledInYear       int    // Rows whose filing date falls in Year
	FiledInYearSample []Fact // Up to CheckSampleSize of them

	FirstFiscalYear  FiscalYear
	LastFiscalYear   FiscalYear
	RecentYears      []int        // Up to ten most recent distinct fiscal years, ascending
	FiscalYearRows   int          // Rows whose fiscal year is Year
	FiscalYearSample []Fact       // Up to CheckSampleSize of them
	FiscalYearFiling [2]time.Time // Filing date range of those rows
}

// CheckSampleSize bounds the sample rows kept in a CheckReport
const CheckSampleSize = 20

// Check inspects the stored long snapshot without modifying it. A non-empty
// metric narrows the report to that display name.
func (u *Updater) Check(ctx context.Context, year int, metric string) (CheckReport, error) {
	facts, err := u.Snapshots.ReadLong(ctx)
	if err != nil {
		return CheckReport{}, err
	}
	if metric != "" {
		concepts := u.Batch.Concepts
		if concepts == nil {
			concepts = DefaultConcepts()
		}
		if facts, err = FilterMetric(facts, concepts, metric); err != nil {
			return CheckReport{}, err
		}
	}
	r := CheckDates(facts, year)
	r.Metric = metric
	return r, nil
}

// FilterMetric keeps the facts reported under label: those whose item is one
// of the label's tags or whose display name is label
func FilterMetric(facts []Fact, concepts *Concepts, label string) ([]Fact, error) {
	tags, err := concepts.TagsForLabel(label)
	if err != nil {
		return nil, eris.Wrapf(err, "known metrics: %s", strings.Join(concepts.Labels(), ", "))
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out []Fact
	for _, f := range facts {
		if want[CleanText(f.Item)] || CleanText(f.DisplayName) == label {
			out = append(out, f)
		}
	}
	return out, nil
}

// CheckDates reports filing date and fiscal year coverage, with the rows
// filed in year and the rows belonging to fiscal year year
func CheckDates(facts []Fact, year int) CheckReport {
	r := CheckReport{Rows: len(facts), Year: year}
	years := make(map[int]bool)
	for _, f := range facts {
		if f.HasFilingDate() {
			if r.FirstFiling.IsZero() || f.FilingDate.Before(r.FirstFiling) {
				r.FirstFiling = f.FilingDate
			}
			if f.FilingDate.After(r.LastFiling) {
				r.LastFiling = f.FilingDate
			}
			if f.FilingDate.Year() == year {
				r.FiledInYear++
				if len(r.FiledInYearSample) < CheckSampleSize {
					r.FiledInYearSample = append(r.FiledInYearSample, f)
				}
			}
		}
		if !f.FiscalYear.Valid {
			continue
		}
		years[f.FiscalYear.Year] = true
		if f.FiscalYear.Year == year {
			r.FiscalYearRows++
			if len(r.FiscalYearSample) < CheckSampleSize {
				r.FiscalYearSample = append(r.FiscalYearSample, f)
			}
			if f.HasFilingDate() {
				if r.FiscalYearFiling[0].IsZero() || f.FilingDate.Before(r.FiscalYearFiling[0]) {
					r.FiscalYearFiling[0] = f.FilingDate
				}
				if f.FilingDate.After(r.FiscalYearFiling[1]) {
					r.FiscalYearFiling[1] = f.FilingDate
				}
			}
		}
	}

	sorted := make([]int, 0, len(years))
	for y := range years {
		sorted = append(sorted, y)
	}
	sort.Ints(sorted)
	if len(sorted) > 0 {
		r.FirstFiscalYear = KnownYear(sorted[0])
		r.LastFiscalYear = KnownYear(sorted[len(sorted)-1])
	}
	if len(sorted) > 10 {
		sorted = sorted[len(sorted)-10:]
	}
	r.RecentYears = sorted
	return r
}
