package query

import (
	"sort"
	"time"

	"github.com/nexuslite/nexuslite/internal/engine"
)

// Executor runs Find against an Engine's collections, enforcing rate
// limits, safety caps, and result caps, and reporting telemetry for
// every execution.
type Executor struct {
	eng      *engine.Engine
	limiter  *Limiter
	caps     ResultCapConfig
	lastStat Telemetry
}

// NewExecutor builds an executor bound to eng. limiter and caps may be
// nil/zero; a nil limiter means no rate limiting is applied.
func NewExecutor(eng *engine.Engine, limiter *Limiter, caps ResultCapConfig) *Executor {
	return &Executor{eng: eng, limiter: limiter, caps: caps}
}

// LastTelemetry returns the telemetry recorded by the most recent Find
// call on this executor.
func (ex *Executor) LastTelemetry() Telemetry { return ex.lastStat }

// Find evaluates filter against collection, honoring opts, and returns
// matching documents (already sorted/projected/paged).
func (ex *Executor) Find(collection string, filter Filter, opts FindOptions) ([]*engine.Document, error) {
	start := time.Now()
	telemetry := Telemetry{Op: "find"}

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if ex.limiter != nil {
		if err := ex.limiter.Allow(collection); err != nil {
			return nil, err
		}
	}

	col, ok := ex.eng.GetCollection(collection)
	if !ok {
		return nil, ErrNoSuchColl
	}

	limit := opts.Limit
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	if resultCap := ex.caps.CapFor(collection); resultCap > 0 && resultCap < limit {
		limit = resultCap
	}

	deadline := time.Time{}
	if opts.Timeout > 0 {
		deadline = start.Add(opts.Timeout)
	}

	candidates, usedIndex := ex.candidateDocuments(col, &filter, opts.IndexHint)
	telemetry.UsedIndex = usedIndex

	var matched []*engine.Document
	timedOut := false
	for _, doc := range candidates {
		telemetry.NScanned++
		if !deadline.IsZero() && time.Now().After(deadline) {
			timedOut = true
			break
		}
		ok, err := filter.Eval(doc.Data)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	matched = applySort(matched, opts.Sort)
	matched = applySkipLimit(matched, opts.Skip, limit)
	matched = applyProjection(matched, opts.Projection)

	telemetry.NReturned = len(matched)
	telemetry.TookNs = time.Since(start).Nanoseconds()
	telemetry.TimedOut = timedOut
	ex.lastStat = telemetry

	return matched, nil
}

// candidateDocuments returns the documents an index lookup can narrow
// the scan to, or every document in the collection when no usable
// index exists. The returned string names the index used, empty
// when the executor fell back to a full scan.
func (ex *Executor) candidateDocuments(col *engine.Collection, filter *Filter, hint string) ([]*engine.Document, string) {
	field, usable := chooseIndex(col, filter, hint)
	if !usable {
		return col.GetAllDocuments(), ""
	}

	idx, _ := col.IndexFor(field)
	leaves := topLevelLeaves(filter)
	var ids []string
	for _, leaf := range leaves {
		if leaf.field != field {
			continue
		}
		if leaf.eqKey != "" {
			ids = idx.Lookup(leaf.eqKey)
		} else if len(leaf.inKeys) > 0 {
			ids = idx.LookupIn(leaf.inKeys)
		}
		break
	}

	docs := make([]*engine.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := col.FindDocument(id); ok {
			docs = append(docs, doc)
		}
	}
	return docs, field
}

func applySort(docs []*engine.Document, spec []SortField) []*engine.Document {
	if len(spec) == 0 {
		return docs
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range spec {
			vi, hasI := resolvePath(docs[i].Data, s.Path)
			vj, hasJ := resolvePath(docs[j].Data, s.Path)
			if !hasI && !hasJ {
				continue
			}
			if !hasI {
				return true
			}
			if !hasJ {
				return false
			}
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if s.Direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return docs
}

func compareValues(a, b interface{}) int {
	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := toComparableString(a), toComparableString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toComparableString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func applySkipLimit(docs []*engine.Document, skip, limit int) []*engine.Document {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(docs) {
		return nil
	}
	docs = docs[skip:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func applyProjection(docs []*engine.Document, fields []string) []*engine.Document {
	if len(fields) == 0 {
		return docs
	}
	out := make([]*engine.Document, len(docs))
	for i, doc := range docs {
		projected := doc.Clone()
		keep := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			keep[f] = struct{}{}
		}
		for _, k := range projected.Data.Keys() {
			if _, ok := keep[k]; !ok {
				projected.Data.Delete(k)
			}
		}
		out[i] = projected
	}
	return out
}
