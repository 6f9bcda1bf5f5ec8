// Package factsync keeps a local dataset of SEC company facts up to date.
//
// Facts are fetched from the data.sec.gov companyfacts API, reconciled against
// the previously persisted long-form dataset and merged so that every
// reporting period keeps only its most recent filing. The merged dataset is
// then projected into a wide table (one row per period, one column per metric)
// for downstream consumers.
package factsync

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO date layout used for filing dates on disk and in keys
const DateLayout = "2006-01-02"

// FiscalYear is a fiscal year that may be unknown
type FiscalYear struct {
	Year  int
	Valid bool
}

// KnownYear returns a valid FiscalYear
func KnownYear(year int) FiscalYear {
	return FiscalYear{Year: year, Valid: true}
}

// String returns the year as decimal digits, or "" when unknown
func (fy FiscalYear) String() string {
	if !fy.Valid {
		return ""
	}
	return strconv.Itoa(fy.Year)
}

// Less orders known years ascending with unknown years last
func (fy FiscalYear) Less(other FiscalYear) bool {
	if fy.Valid != other.Valid {
		return fy.Valid
	}
	return fy.Year < other.Year
}

// FiscalYearOf normalizes any representation of a fiscal year.
// Integers, integral floats ("2023.0") and numeric strings that denote the same
// year produce identical values. Fractional floats are truncated toward zero.
// Anything else is unknown.
func FiscalYearOf(v any) FiscalYear {
	switch x := v.(type) {
	case nil:
		return FiscalYear{}
	case FiscalYear:
		return x
	case int:
		return KnownYear(x)
	case int32:
		return KnownYear(int(x))
	case int64:
		return KnownYear(int(x))
	case float32:
		return fiscalYearFromFloat(float64(x))
	case float64:
		return fiscalYearFromFloat(x)
	case json.Number:
		return ParseFiscalYear(x.String())
	case string:
		return ParseFiscalYear(x)
	default:
		return FiscalYear{}
	}
}

// ParseFiscalYear parses a textual fiscal year such as "2023", " 2023 " or "2023.0"
func ParseFiscalYear(s string) FiscalYear {
	s = strings.TrimSpace(s)
	if s == "" {
		return FiscalYear{}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return KnownYear(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return FiscalYear{}
	}
	return fiscalYearFromFloat(f)
}

func fiscalYearFromFloat(f float64) FiscalYear {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return FiscalYear{}
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return FiscalYear{}
	}
	return KnownYear(int(f))
}

// ParseDate parses an ISO date, tolerating a trailing time component.
// The boolean is false when no date could be read.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) > len(DateLayout) && (s[len(DateLayout)] == 'T' || s[len(DateLayout)] == ' ') {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Fact is one disclosed numeric observation
type Fact struct {
	EntityID    string              // Issuer identifier (ticker)
	RegistryID  string              // Registry identifier (zero-padded CIK)
	Item        string              // Disclosed concept (us-gaap tag)
	DisplayName string              // Human label for Item
	Value       decimal.NullDecimal // Reported value, invalid when absent
	FiscalYear  FiscalYear          // Fiscal year of the filing that reported the value
	PeriodType  string              // FY, Q1, Q2, Q3...
	FilingDate  time.Time           // Period end date of the observation; zero when unknown
	Form        string              // Source document type (10-K, 10-Q, 10-K/A...)
	Unit        string              // Measurement unit (USD, shares, USD/shares)
}

// HasFilingDate reports whether the fact carries a usable filing date
func (f Fact) HasFilingDate() bool {
	return !f.FilingDate.IsZero()
}

// FilingDateString returns the filing date as YYYY-MM-DD, or "" when unknown
func (f Fact) FilingDateString() string {
	if !f.HasFilingDate() {
		return ""
	}
	return f.FilingDate.Format(DateLayout)
}

// filingAfter reports whether a has a strictly later usable filing date than b.
// A usable date is later than an unusable one; two unusable dates never compare later.
func filingAfter(a, b time.Time) bool {
	switch {
	case a.IsZero():
		return false
	case b.IsZero():
		return true
	default:
		return a.After(b)
	}
}

// canonicalLess orders facts by entity, fiscal year, period type and filing
// date, breaking the remaining ties by item, form and unit.
// Unknown fiscal years and filing dates sort last.
func canonicalLess(a, b Fact) bool {
	if a.EntityID != b.EntityID {
		return a.EntityID < b.EntityID
	}
	if a.FiscalYear != b.FiscalYear {
		return a.FiscalYear.Less(b.FiscalYear)
	}
	if a.PeriodType != b.PeriodType {
		return a.PeriodType < b.PeriodType
	}
	if !a.FilingDate.Equal(b.FilingDate) {
		if a.FilingDate.IsZero() || b.FilingDate.IsZero() {
			return b.FilingDate.IsZero()
		}
		return a.FilingDate.Before(b.FilingDate)
	}
	if a.Item != b.Item {
		return a.Item < b.Item
	}
	if a.Form != b.Form {
		return a.Form < b.Form
	}
	return a.Unit < b.Unit
}

// SortCanonical returns a copy of facts in canonical order
func SortCanonical(facts []Fact) []Fact {
	out := make([]Fact, len(facts))
	copy(out, facts)
	sort.SliceStable(out, func(i, j int) bool { return canonicalLess(out[i], out[j]) })
	return out
}
