package factsync

import "time"

// Outcome classifies a merge candidate
type Outcome int

const (
	Inserted   Outcome = iota // New observation
	Updated                   // Replaces an earlier filing of the same observation
	Skipped                   // Adds nothing over what is persisted
	Superseded                // Accepted, then removed by period-collapse
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// MergeStats counts merge outcomes
type MergeStats struct {
	Inserted   int
	Updated    int
	Skipped    int
	Superseded int // Candidates dropped by period-collapse after being accepted
	Collapsed  int // Rows (persisted or new) removed by period-collapse
}

// Processed returns the number of candidates classified
func (s MergeStats) Processed() int {
	return s.Inserted + s.Updated + s.Skipped + s.Superseded
}

// MergeResult is the outcome of Merge
type MergeResult struct {
	Facts    []Fact    // New persisted collection
	Outcomes []Outcome // Outcome per candidate, same order as the candidates
	Stats    MergeStats
}

// Merge applies reconciled candidates to the persisted collection.
//
// For each candidate:
//   - an exact duplicate of a persisted fact is skipped
//   - a candidate whose revision key is not persisted is inserted
//   - a candidate strictly newer than every persisted fact with its revision key
//     replaces them (update); a usable date beats a missing one
//   - anything else is skipped and the persisted rows are kept unchanged
//
// The result then goes through CollapsePeriods. Candidates removed by the
// collapse are reported as Superseded rather than Inserted or Updated, so every
// fact reported as inserted or updated is present in MergeResult.Facts.
func Merge(existing, candidates []Fact) MergeResult {
	persistedKeys := KeySet(existing)
	latest := make(map[string]time.Time, len(existing))
	for _, f := range existing {
		rev := RevisionKey(f)
		if cur, ok := latest[rev]; !ok || filingAfter(f.FilingDate, cur) {
			latest[rev] = f.FilingDate
		}
	}

	outcomes := make([]Outcome, len(candidates))
	replaced := make(map[string]struct{})
	for i, c := range candidates {
		if _, dup := persistedKeys[FactKey(c)]; dup {
			outcomes[i] = Skipped
			continue
		}
		rev := RevisionKey(c)
		cur, ok := latest[rev]
		switch {
		case !ok:
			outcomes[i] = Inserted
		case filingAfter(c.FilingDate, cur):
			outcomes[i] = Updated
			replaced[rev] = struct{}{}
		default:
			outcomes[i] = Skipped
		}
	}

	rows := make([]mergeRow, 0, len(existing)+len(candidates))
	for _, f := range existing {
		if _, ok := replaced[RevisionKey(f)]; ok {
			continue
		}
		rows = append(rows, mergeRow{fact: f, candidate: -1})
	}
	for i, c := range candidates {
		if outcomes[i] == Inserted || outcomes[i] == Updated {
			rows = append(rows, mergeRow{fact: c, candidate: i})
		}
	}

	kept := collapse(rows)
	retained := make(map[int]bool, len(candidates))
	facts := make([]Fact, len(kept))
	for i, r := range kept {
		facts[i] = r.fact
		if r.candidate >= 0 {
			retained[r.candidate] = true
		}
	}

	var stats MergeStats
	stats.Collapsed = len(rows) - len(kept)
	for i, o := range outcomes {
		if (o == Inserted || o == Updated) && !retained[i] {
			outcomes[i] = Superseded
		}
		switch outcomes[i] {
		case Inserted:
			stats.Inserted++
		case Updated:
			stats.Updated++
		case Skipped:
			stats.Skipped++
		case Superseded:
			stats.Superseded++
		}
	}

	return MergeResult{Facts: facts, Outcomes: outcomes, Stats: stats}
}

type mergeRow struct {
	fact      Fact
	candidate int // index into the candidates, -1 for persisted rows
}

// CollapsePeriods keeps one fact per period and item: the one with the latest
// filing date. Facts without a usable date lose to any dated fact. Ties are
// broken by item, form and unit, then by input order. Retained facts keep
// their relative order. The second result is the number of facts removed.
func CollapsePeriods(facts []Fact) ([]Fact, int) {
	rows := make([]mergeRow, len(facts))
	for i, f := range facts {
		rows[i] = mergeRow{fact: f, candidate: -1}
	}
	kept := collapse(rows)
	out := make([]Fact, len(kept))
	for i, r := range kept {
		out[i] = r.fact
	}
	return out, len(facts) - len(kept)
}

func collapse(rows []mergeRow) []mergeRow {
	winner := make(map[string]int, len(rows))
	for i, r := range rows {
		k := periodItemKey(r.fact)
		best, ok := winner[k]
		if !ok || preferred(r.fact, rows[best].fact) {
			winner[k] = i
		}
	}
	if len(winner) == len(rows) {
		return rows
	}
	out := make([]mergeRow, 0, len(winner))
	for i, r := range rows {
		if winner[periodItemKey(r.fact)] == i {
			out = append(out, r)
		}
	}
	return out
}

// preferred reports whether a should replace b as the retained fact of its group
func preferred(a, b Fact) bool {
	if filingAfter(a.FilingDate, b.FilingDate) {
		return true
	}
	if filingAfter(b.FilingDate, a.FilingDate) {
		return false
	}
	if a.Item != b.Item {
		return a.Item < b.Item
	}
	if a.Form != b.Form {
		return a.Form < b.Form
	}
	return a.Unit < b.Unit
}
