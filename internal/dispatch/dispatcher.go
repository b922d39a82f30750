// Package dispatch implements the bounded-concurrency submission loop
// between the orchestrator's target list and the storage client: at
// most qdepth requests outstanding at once, completions delivered by
// the storage client's own callback thread and handed to the
// completion queue for the worker pool to consume.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uccross/skyhookdb-ceph/internal/index"
	"github.com/uccross/skyhookdb-ceph/internal/metrics"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/queue"
	"github.com/uccross/skyhookdb-ceph/internal/storage"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
	"github.com/uccross/skyhookdb-ceph/internal/wire"
)

// Item is what the dispatcher pushes to the completion queue for each
// finished request: enough for a worker to decode the response and
// append a full timing row.
type Item struct {
	OID      string
	Seq      int64 // assigned in completion order, for ordering the timing log across concurrent workers
	Dispatch int64 // nanoseconds since the run's start
	Response int64 // nanoseconds since the run's start
	ViaExec  bool  // true if this went through AioExec (a pushdown-exec response prefix must be decoded)
	Payload  []byte
	Err      error
}

// Dispatcher maintains the bounded in-flight window described in
// spec §4.6. One Dispatcher drives exactly one query run against one
// ordered target list.
type Dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inFlight int
	capacity int
	targets  []string
	nextIdx  int // index into targets of the next candidate to dispatch

	dispatched *index.DispatchSet
	client     storage.Client
	cq         *queue.CompletionQueue
	q          querylang.Query
	m          querylang.Modifiers
	start      time.Time
	tracer     *telemetry.Tracer
	nextSeq    int64 // guarded by mu, so its assignment order matches the order completions actually reach the queue
	metrics    *metrics.Registry // optional; nil disables metric updates
}

// SetMetrics registers reg to receive in_flight updates as requests go
// out and complete. Safe to call once, before Run.
func (d *Dispatcher) SetMetrics(reg *metrics.Registry) {
	d.metrics = reg
}

// New returns a Dispatcher over targets (already in the traversal
// order the caller wants — including the historical "fwd reverses"
// quirk, which is the orchestrator's concern, not this package's),
// submitting at most capacity requests at once.
func New(targets []string, capacity int, client storage.Client, q querylang.Query, m querylang.Modifiers, cq *queue.CompletionQueue, start time.Time, tracer *telemetry.Tracer) *Dispatcher {
	d := &Dispatcher{
		capacity:   capacity,
		targets:    append([]string(nil), targets...),
		dispatched: index.NewDispatchSet(),
		client:     client,
		cq:         cq,
		q:          q,
		m:          m,
		start:      start,
		tracer:     tracer,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Run submits every target, respecting the in-flight cap, then drains
// outstanding requests and closes the completion queue. If ctx is
// canceled partway through (a sibling goroutine in the same errgroup
// hit a fatal error), Run stops submitting new targets but still
// drains whatever is already in flight before closing the queue —
// never abandoning a submitted request whose callback has nowhere
// safe left to write.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.mu.Lock()
		if ctx.Err() != nil || d.nextIdx >= len(d.targets) {
			canceled := ctx.Err() != nil
			d.mu.Unlock()
			d.Drain()
			d.cq.Close()
			if canceled {
				return ctx.Err()
			}
			return nil
		}
		for d.inFlight >= d.capacity && ctx.Err() == nil {
			d.cond.Wait()
		}
		if ctx.Err() != nil {
			d.mu.Unlock()
			continue
		}

		targetIdx := d.nextIdx
		oid := d.targets[targetIdx]
		d.nextIdx++
		if !d.dispatched.Mark(targetIdx) {
			// Mark reports false only if targetIdx was already marked,
			// which would mean nextIdx was re-dispatched — a bug in this
			// loop, not something a caller can provoke.
			d.mu.Unlock()
			panic(fmt.Sprintf("dispatch: target index %d dispatched twice", targetIdx))
		}
		d.inFlight++
		if d.metrics != nil {
			d.metrics.InFlight.Set(float64(d.inFlight))
		}
		d.mu.Unlock()

		d.submit(oid)
	}
}

func (d *Dispatcher) submit(oid string) {
	dispatchTime := time.Since(d.start).Nanoseconds()

	if d.m.UseServerSide {
		in := wire.EncodeQueryOp(d.q, d.m)
		d.client.AioExec(oid, storage.MethodQueryOp, in, func(data []byte, err error) {
			if errors.Is(err, storage.ErrNoPushdownCollaborator) {
				// This backend can't run the op server-side at all; fall
				// back to a direct read so the worker pool still gets a
				// payload to evaluate client-side, instead of aborting the
				// whole run over a backend limitation rather than a
				// request failure.
				d.tracer.Info(telemetry.ComponentDispatcher, "falling back to direct read", telemetry.Fields{"oid": oid})
				d.client.AioRead(oid, func(data []byte, err error) {
					d.onCompletion(oid, dispatchTime, false, data, err)
				})
				return
			}
			d.onCompletion(oid, dispatchTime, true, data, err)
		})
		return
	}
	d.client.AioRead(oid, func(data []byte, err error) {
		d.onCompletion(oid, dispatchTime, false, data, err)
	})
}

// onCompletion runs on the storage client's own callback goroutine. It
// must stay allocation-light and must never evaluate the payload
// itself — that is the worker's job, once this item reaches the
// completion queue.
func (d *Dispatcher) onCompletion(oid string, dispatchTime int64, viaExec bool, data []byte, err error) {
	responseTime := time.Since(d.start).Nanoseconds()

	if err != nil {
		d.tracer.Error(telemetry.ComponentDispatcher, "completion failed", telemetry.Fields{"oid": oid, "err": err})
	}

	// Seq is assigned and the item pushed while still holding mu, so
	// two racing callbacks cannot assign seq in one order and enqueue
	// in another — seq always matches the queue's own FIFO order,
	// which is what workers must reproduce when writing timing rows.
	d.mu.Lock()
	d.inFlight--
	if d.metrics != nil {
		d.metrics.InFlight.Set(float64(d.inFlight))
	}
	d.cond.Signal()
	seq := d.nextSeq
	d.nextSeq++
	d.cq.Push(queue.Completion{Value: Item{
		OID:      oid,
		Seq:      seq,
		Dispatch: dispatchTime,
		Response: responseTime,
		ViaExec:  viaExec,
		Payload:  data,
		Err:      err,
	}})
	d.mu.Unlock()
}

// InFlight reports the number of outstanding requests, for tests that
// instrument the bounded window (testable property 4).
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Dispatched reports how many targets have been submitted so far.
func (d *Dispatcher) Dispatched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatched.Count()
}

// Drain blocks until every in-flight request has completed, logging
// progress once a second the way run-query.cc's "draining ios: N
// remaining" loop does.
func (d *Dispatcher) Drain() {
	for {
		d.mu.Lock()
		n := d.inFlight
		d.mu.Unlock()
		if n == 0 {
			return
		}
		d.tracer.Info(telemetry.ComponentDispatcher, "draining ios", telemetry.Fields{"remaining": n})
		time.Sleep(time.Second)
	}
}
