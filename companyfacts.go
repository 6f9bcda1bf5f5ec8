package factsync

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CompanyFacts represents the data.sec.gov companyfacts document for one CIK
type CompanyFacts struct {
	CIK        json.Number                   `json:"cik"`
	EntityName string                        `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"` // taxonomy (us-gaap, dei...) -> tag
}

// Concept holds every reported value of one tag, grouped by unit
type Concept struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]UnitEntry `json:"units"`
}

// UnitEntry is one reported value as it appears in companyfacts
type UnitEntry struct {
	Start string      `json:"start,omitempty"` // Duration start (income statement)
	End   string      `json:"end"`             // Period end
	Val   json.Number `json:"val"`
	Accn  string      `json:"accn"`  // Accession number of the reporting filing
	FY    json.Number `json:"fy"`    // Fiscal year of the reporting filing, "" when null
	FP    string      `json:"fp"`    // Fiscal period of the reporting filing
	Form  string      `json:"form"`  // 10-K, 10-Q, 10-K/A...
	Filed string      `json:"filed"` // Submission date
	Frame string      `json:"frame,omitempty"`
}

// ParseCompanyFacts parses a companyfacts JSON from a reader (for local files or testing)
func ParseCompanyFacts(r io.Reader) (*CompanyFacts, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var cf CompanyFacts
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to parse companyfacts JSON: %w", err)
	}
	return &cf, nil
}

// UnitNames returns the unit keys reported for a concept, sorted
func (c Concept) UnitNames() []string {
	names := make([]string, 0, len(c.Units))
	for u := range c.Units {
		names = append(names, u)
	}
	sort.Strings(names)
	return names
}

// ExtractOptions narrows the facts produced by ToFacts
type ExtractOptions struct {
	Cutoff time.Time // Drop values whose period end is after Cutoff; zero keeps all
	Forms  []string  // Keep only these forms and their amendments; empty keeps all
}

// ToFacts converts the us-gaap section into Facts for every concept in the
// table, reading a single unit series per tag (see Concepts.PickUnit).
// Facts come out in table order, then in document order within a tag.
func (cf *CompanyFacts) ToFacts(company Company, concepts *Concepts, opts ExtractOptions) []Fact {
	gaap := cf.Facts["us-gaap"]
	if len(gaap) == 0 {
		return nil
	}
	registry := NormalizeCIK(company.CIK)
	if registry == "" {
		registry = NormalizeCIK(cf.CIK.String())
	}

	var facts []Fact
	for _, def := range concepts.Definitions() {
		concept, ok := gaap[def.Tag]
		if !ok {
			continue
		}
		unit := concepts.PickUnit(def.Tag, concept.UnitNames())
		if unit == "" {
			continue
		}
		for _, e := range concept.Units[unit] {
			if !MatchesForm(e.Form, opts.Forms) {
				continue
			}
			f := Fact{
				EntityID:    company.Ticker,
				RegistryID:  registry,
				Item:        def.Tag,
				DisplayName: def.Label,
				Value:       parseNumber(e.Val),
				FiscalYear:  FiscalYearOf(e.FY),
				PeriodType:  CleanText(e.FP),
				Form:        CleanText(e.Form),
				Unit:        unit,
			}
			if d, ok := ParseDate(e.End); ok {
				f.FilingDate = d
			}
			if !opts.Cutoff.IsZero() && f.HasFilingDate() && f.FilingDate.After(opts.Cutoff) {
				continue
			}
			facts = append(facts, f)
		}
	}
	return facts
}

func parseNumber(n json.Number) decimal.NullDecimal {
	if n == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// NormalizeCIK returns a CIK as ten digits.
// Accepts "320193", "0000320193", "CIK0000320193" and float renderings such
// as "320193.0". Non-numeric input is returned trimmed.
func NormalizeCIK(cik string) string {
	s := CleanText(cik)
	s = strings.TrimPrefix(strings.ToUpper(s), "CIK")
	s = strings.TrimSuffix(s, ".0")
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return CleanText(cik)
		}
	}
	if len(s) < 10 {
		s = strings.Repeat("0", 10-len(s)) + s
	}
	return s
}

// MatchesForm reports whether form is one of the wanted forms or an amendment
// of one ("10-K" matches "10-K" and "10-K/A"). No wanted forms matches everything.
func MatchesForm(form string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	form = strings.ToUpper(strings.TrimSpace(form))
	for _, w := range wanted {
		w = strings.ToUpper(strings.TrimSpace(w))
		if form == w || strings.HasPrefix(form, w+"/") {
			return true
		}
	}
	return false
}
