package query

import "time"

// SortDirection orders a single sort field ascending or descending.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// SortField is one entry in a FindOptions.Sort spec.
type SortField struct {
	Path      string
	Direction SortDirection
}

// FindOptions configures a single query execution: sort order,
// projection, skip/limit paging, a timeout, and an optional index
// hint override.
type FindOptions struct {
	Sort       []SortField
	Projection []string
	Skip       int
	Limit      int
	Timeout    time.Duration
	// IndexHint, if non-empty, forces the executor to prefer this
	// field's index when usable, bypassing selectivity comparison.
	IndexHint string
}

// Validate enforces the sort/projection/limit safety caps.
func (o *FindOptions) Validate() error {
	if len(o.Sort) > MaxSortFields {
		return ErrCapExceeded
	}
	if len(o.Projection) > MaxProjectionFields {
		return ErrCapExceeded
	}
	if o.Limit > MaxLimit {
		return ErrCapExceeded
	}
	return nil
}

// Telemetry reports what one execution actually did, so tests and
// callers can assert index usage and timing characteristics.
type Telemetry struct {
	Op        string
	UsedIndex string
	NScanned  int
	NReturned int
	TookNs    int64
	TimedOut  bool
}

// ResultCapConfig holds the global and per-collection result-size caps;
// a per-collection override takes precedence over the global cap.
type ResultCapConfig struct {
	Global        int
	PerCollection map[string]int
}

// CapFor returns the effective result cap for a collection.
func (c *ResultCapConfig) CapFor(collection string) int {
	if c.PerCollection != nil {
		if v, ok := c.PerCollection[collection]; ok {
			return v
		}
	}
	return c.Global
}
