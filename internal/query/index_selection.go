package query

import (
	"fmt"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// indexCandidate is one leaf of the top-level filter that could be
// satisfied by a declared secondary index.
type indexCandidate struct {
	field    string
	eqKey    string   // set for a Cmp{Eq} leaf
	inKeys   []string // set for an In leaf
	declared int      // position the index was declared in, for tiebreak
}

// chooseIndex inspects the top-level conjunction of f (only And/single
// leaf is considered; the original tree is always re-evaluated in
// full, the index is purely an acceleration hint) and picks the most
// selective usable index. Ties break by first-declared order. Returns
// ("", false) when no leaf is indexable.
func chooseIndex(col *engine.Collection, f *Filter, hint string) (field string, usable bool) {
	leaves := topLevelLeaves(f)

	if hint != "" {
		for _, leaf := range leaves {
			if leaf.field == hint {
				if idx, ok := col.IndexFor(hint); ok {
					if _, usableIdx := candidateSelectivity(idx, leaf); usableIdx {
						return hint, true
					}
				}
			}
		}
	}

	type scored struct {
		field       string
		selectivity int
		declared    int
	}
	var best *scored
	for i, leaf := range leaves {
		idx, ok := col.IndexFor(leaf.field)
		if !ok {
			continue
		}
		sel, usableIdx := candidateSelectivity(idx, leaf)
		if !usableIdx {
			continue
		}
		cand := scored{field: leaf.field, selectivity: sel, declared: i}
		if best == nil || cand.selectivity < best.selectivity {
			best = &cand
		}
	}
	if best == nil {
		return "", false
	}
	return best.field, true
}

// candidateSelectivity estimates how many documents an index lookup
// for leaf would return; lower is more selective. Returns usable=false
// when the leaf isn't an equality/In shape the index can answer.
func candidateSelectivity(idx *engine.SecondaryIndex, leaf indexCandidate) (int, bool) {
	if leaf.eqKey != "" {
		return idx.Selectivity(leaf.eqKey), true
	}
	if len(leaf.inKeys) > 0 {
		total := 0
		for _, k := range leaf.inKeys {
			total += idx.Selectivity(k)
		}
		return total, true
	}
	return 0, false
}

// topLevelLeaves extracts equality/In leaves directly under the
// top-level filter (either the filter itself, or the direct children
// of a top-level And). Leaves nested under Or/Not are never used for
// index selection, since the index can't safely narrow those shapes.
func topLevelLeaves(f *Filter) []indexCandidate {
	var leaves []Filter
	if f.Kind == FAnd {
		leaves = f.Children
	} else {
		leaves = []Filter{*f}
	}

	out := make([]indexCandidate, 0, len(leaves))
	for _, leaf := range leaves {
		switch leaf.Kind {
		case FCmp:
			if leaf.Op == Eq {
				out = append(out, indexCandidate{field: leaf.Path, eqKey: stringifyKey(leaf.Value)})
			}
		case FIn:
			keys := make([]string, len(leaf.Values))
			for i, v := range leaf.Values {
				keys[i] = stringifyKey(v)
			}
			out = append(out, indexCandidate{field: leaf.Path, inKeys: keys})
		}
	}
	return out
}

func stringifyKey(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
