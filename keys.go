package factsync

import "strings"

// PeriodKey identifies the reporting period of a fact regardless of the
// filing that reported it: entity, fiscal year and period type.
func PeriodKey(f Fact) string {
	return joinKey(
		normalizeComponent(f.EntityID),
		normalizeFiscalYear(f.FiscalYear),
		normalizeComponent(f.PeriodType),
	)
}

// FactKey identifies one exact observation: entity, item, fiscal year,
// period type, filing date, form and unit.
func FactKey(f Fact) string {
	return joinKey(
		normalizeComponent(f.EntityID),
		normalizeComponent(f.Item),
		normalizeFiscalYear(f.FiscalYear),
		normalizeComponent(f.PeriodType),
		normalizeDate(f),
		normalizeComponent(f.Form),
		normalizeComponent(f.Unit),
	)
}

// RevisionKey is FactKey without the filing date. Two facts sharing a
// revision key are versions of the same observation reported by different
// filings, so the later one amends the earlier one.
func RevisionKey(f Fact) string {
	return joinKey(
		normalizeComponent(f.EntityID),
		normalizeComponent(f.Item),
		normalizeFiscalYear(f.FiscalYear),
		normalizeComponent(f.PeriodType),
		normalizeComponent(f.Form),
		normalizeComponent(f.Unit),
	)
}

// periodItemKey groups facts for period-collapse
func periodItemKey(f Fact) string {
	return PeriodKey(f) + KeyDelimiter + normalizeComponent(f.Item)
}

func joinKey(parts ...string) string {
	return strings.Join(parts, KeyDelimiter)
}

// KeySet returns the set of fact keys present in facts
func KeySet(facts []Fact) map[string]struct{} {
	set := make(map[string]struct{}, len(facts))
	for _, f := range facts {
		set[FactKey(f)] = struct{}{}
	}
	return set
}
