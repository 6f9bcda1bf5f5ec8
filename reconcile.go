package factsync

import (
	"fmt"
	"strings"
	"time"
)

// PrefilterPolicy selects how incoming facts are screened against the
// filing dates already persisted before key comparison
type PrefilterPolicy int

const (
	// PrefilterEntity drops incoming facts that are not strictly newer than the
	// latest filing date persisted for their entity. A late restatement of an
	// older period is dropped too; those drops are counted in
	// ReconcileReport.LateRestatements.
	PrefilterEntity PrefilterPolicy = iota

	// PrefilterPeriod drops incoming facts that are not strictly newer than the
	// latest filing date persisted for the same period and item
	PrefilterPeriod
)

func (p PrefilterPolicy) String() string {
	switch p {
	case PrefilterEntity:
		return "entity"
	case PrefilterPeriod:
		return "period"
	default:
		return fmt.Sprintf("PrefilterPolicy(%d)", int(p))
	}
}

// ParsePrefilterPolicy parses "entity" or "period" (empty means entity)
func ParsePrefilterPolicy(s string) (PrefilterPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "entity":
		return PrefilterEntity, nil
	case "period":
		return PrefilterPeriod, nil
	default:
		return PrefilterEntity, fmt.Errorf("unknown prefilter policy %q (want entity or period)", s)
	}
}

// ReconcileOptions configures Reconcile. The zero value uses PrefilterEntity.
type ReconcileOptions struct {
	Prefilter PrefilterPolicy
}

// ReconcileReport describes how the incoming facts were classified
type ReconcileReport struct {
	Incoming         int                  // Facts received
	DateFiltered     int                  // Dropped by the filing-date prefilter
	LateRestatements int                  // Of DateFiltered, facts newer than anything persisted for their period and item
	Known            int                  // Dropped because their fact key is already persisted
	Duplicates       int                  // Dropped as repeats within the incoming set
	Candidates       int                  // Facts returned
	LatestFilings    map[string]time.Time // Latest persisted filing date per entity
}

// LatestFilingDates returns the latest usable filing date per entity.
// Facts without a usable date do not contribute; entities with no dated fact
// are absent from the result.
func LatestFilingDates(facts []Fact) map[string]time.Time {
	latest := make(map[string]time.Time)
	for _, f := range facts {
		if !f.HasFilingDate() {
			continue
		}
		entity := normalizeComponent(f.EntityID)
		if cur, ok := latest[entity]; !ok || f.FilingDate.After(cur) {
			latest[entity] = f.FilingDate
		}
	}
	return latest
}

// latestPeriodItemDates returns the latest usable filing date per period and item
func latestPeriodItemDates(facts []Fact) map[string]time.Time {
	latest := make(map[string]time.Time)
	for _, f := range facts {
		if !f.HasFilingDate() {
			continue
		}
		k := periodItemKey(f)
		if cur, ok := latest[k]; !ok || f.FilingDate.After(cur) {
			latest[k] = f.FilingDate
		}
	}
	return latest
}

// Reconcile returns the incoming facts that carry information not already
// captured by existing.
//
// Steps:
// 1. With nothing persisted, every incoming fact is a candidate
// 2. Facts not strictly newer than the persisted cutoff for their entity (or
// period and item, depending on the policy) are dropped; facts without a
// usable filing date are never dropped here
// 3. Facts whose fact key is already persisted are dropped
// 4. Repeated fact keys within what remains keep their last occurrence
//
// Reconcile never fails; malformed facts simply fall through with sentinel keys.
func Reconcile(existing, incoming []Fact, opts ReconcileOptions) ([]Fact, ReconcileReport) {
	report := ReconcileReport{Incoming: len(incoming)}
	if len(incoming) == 0 {
		return nil, report
	}

	survivors := incoming
	if len(existing) > 0 {
		report.LatestFilings = LatestFilingDates(existing)
		byPeriod := latestPeriodItemDates(existing)

		survivors = make([]Fact, 0, len(incoming))
		for _, f := range incoming {
			if !f.HasFilingDate() {
				survivors = append(survivors, f)
				continue
			}
			periodCutoff, periodKnown := byPeriod[periodItemKey(f)]
			newForPeriod := !periodKnown || f.FilingDate.After(periodCutoff)

			var keep bool
			switch opts.Prefilter {
			case PrefilterPeriod:
				keep = newForPeriod
			default:
				cutoff, known := report.LatestFilings[normalizeComponent(f.EntityID)]
				keep = !known || f.FilingDate.After(cutoff)
				if !keep && newForPeriod {
					report.LateRestatements++
				}
			}
			if !keep {
				report.DateFiltered++
				continue
			}
			survivors = append(survivors, f)
		}

		persisted := KeySet(existing)
		fresh := survivors[:0:0]
		for _, f := range survivors {
			if _, ok := persisted[FactKey(f)]; ok {
				report.Known++
				continue
			}
			fresh = append(fresh, f)
		}
		survivors = fresh
	}

	candidates := dedupeKeepLast(survivors)
	report.Duplicates = len(survivors) - len(candidates)
	report.Candidates = len(candidates)
	return candidates, report
}

// dedupeKeepLast removes repeated fact keys, keeping the last occurrence of
// each key at its original position
func dedupeKeepLast(facts []Fact) []Fact {
	last := make(map[string]int, len(facts))
	keys := make([]string, len(facts))
	for i, f := range facts {
		keys[i] = FactKey(f)
		last[keys[i]] = i
	}
	if len(last) == len(facts) {
		out := make([]Fact, len(facts))
		copy(out, facts)
		return out
	}
	out := make([]Fact, 0, len(last))
	for i, f := range facts {
		if last[keys[i]] == i {
			out = append(out, f)
		}
	}
	return out
}
