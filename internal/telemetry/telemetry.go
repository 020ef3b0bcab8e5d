// Package telemetry tracks process-wide operation counters, the same
// atomic-counter idiom the storage layer uses internally
// (pager/backend.go's syncCount/loadCount/evictionCount), surfaced
// here as a named set any component can increment and a caller can
// snapshot.
package telemetry

import "sync/atomic"

// Counters holds the counts nexuslite reports for a running process.
// Every field is safe for concurrent use.
type Counters struct {
	DocumentsInserted atomic.Int64
	DocumentsUpdated  atomic.Int64
	DocumentsDeleted  atomic.Int64
	QueriesExecuted   atomic.Int64
	Checkpoints       atomic.Int64
	WALFlushes        atomic.Int64
	RateLimited       atomic.Int64
}

// Snapshot is a point-in-time copy of Counters' values, suitable for
// logging or exposing over an open-metrics endpoint.
type Snapshot struct {
	DocumentsInserted int64
	DocumentsUpdated  int64
	DocumentsDeleted  int64
	QueriesExecuted   int64
	Checkpoints       int64
	WALFlushes        int64
	RateLimited       int64
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DocumentsInserted: c.DocumentsInserted.Load(),
		DocumentsUpdated:  c.DocumentsUpdated.Load(),
		DocumentsDeleted:  c.DocumentsDeleted.Load(),
		QueriesExecuted:   c.QueriesExecuted.Load(),
		Checkpoints:       c.Checkpoints.Load(),
		WALFlushes:        c.WALFlushes.Load(),
		RateLimited:       c.RateLimited.Load(),
	}
}

// Default is the process-wide counter set used by cmd/nexuslite.
var Default = &Counters{}
