package eval

import "sync/atomic"

// Counters are the three running totals every evaluated object
// contributes to. They are atomic rather than mutex-guarded: no
// cross-object ordering is promised, only that concurrent increments
// from multiple workers never race.
type Counters struct {
	ResultCount    atomic.Int64
	RowsReturned   atomic.Int64
	NRowsProcessed atomic.Int64
}

// Snapshot is a point-in-time read of all three counters, mostly for
// tests and the orchestrator's final print.
type Snapshot struct {
	ResultCount    int64
	RowsReturned   int64
	NRowsProcessed int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ResultCount:    c.ResultCount.Load(),
		RowsReturned:   c.RowsReturned.Load(),
		NRowsProcessed: c.NRowsProcessed.Load(),
	}
}
