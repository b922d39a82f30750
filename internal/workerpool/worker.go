// Package workerpool implements the fixed-size pool of workers that
// drain the completion queue and drive the evaluator, per spec §4.7.
package workerpool

import (
	"fmt"
	"sync"
	"time"

	"github.com/uccross/skyhookdb-ceph/internal/csvlog"
	"github.com/uccross/skyhookdb-ceph/internal/dispatch"
	"github.com/uccross/skyhookdb-ceph/internal/eval"
	"github.com/uccross/skyhookdb-ceph/internal/metrics"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/queue"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
	"github.com/uccross/skyhookdb-ceph/internal/wire"
)

// Pool is a fixed-size set of workers pulling from one completion
// queue, each driving the same evaluator and appending to the same
// timing log in completion order.
type Pool struct {
	n        int
	cq       *queue.CompletionQueue
	q        querylang.Query
	m        querylang.Modifiers
	counters *eval.Counters
	printer  eval.Printer
	tracer   *telemetry.Tracer

	tableSchema tableschema.Schema
	querySchema tableschema.Schema

	log *csvlog.Writer

	// logMu/logCond/nextLogSeq impose completion order on timing-row
	// writes: Item.Seq is assigned in the order items reach the
	// completion queue, but workers finish evaluating in whatever
	// order the scheduler hands them CPU time, so a worker holding a
	// later seq must wait for every earlier seq to be written first.
	logMu      sync.Mutex
	logCond    *sync.Cond
	nextLogSeq int64

	activeMu sync.Mutex
	active   int

	metrics *metrics.Registry // optional; nil disables metric updates
}

// SetMetrics registers reg to receive per-completion counter deltas and
// the eval2 duration histogram. Safe to call once, before Run/RunWorker.
func (p *Pool) SetMetrics(reg *metrics.Registry) {
	p.metrics = reg
}

// New returns a pool of n workers over cq, evaluating every completion
// against q/m and the given table/query schemas (only meaningful for
// TagStructured). log may be nil, in which case no timing rows are
// written.
func New(n int, cq *queue.CompletionQueue, q querylang.Query, m querylang.Modifiers, tableSchema, querySchema tableschema.Schema, counters *eval.Counters, printer eval.Printer, log *csvlog.Writer, tracer *telemetry.Tracer) *Pool {
	p := &Pool{
		n:           n,
		cq:          cq,
		q:           q,
		m:           m,
		counters:    counters,
		printer:     printer,
		tracer:      tracer,
		tableSchema: tableSchema,
		querySchema: querySchema,
		log:         log,
	}
	p.logCond = sync.NewCond(&p.logMu)
	return p
}

// Run starts n worker goroutines and blocks until every one of them
// has returned: either after observing the completion queue close, or
// at its first fatal error. It returns the error of the lowest-numbered
// worker that failed; a fatal per-object error does
// not stop the other workers from draining the rest of the queue, so
// that every completion still reaches Evaluated or is accounted for.
func (p *Pool) Run() error {
	var wg sync.WaitGroup
	errs := make([]error, p.n)

	wg.Add(p.n)
	for i := 0; i < p.n; i++ {
		go func(idx int) {
			defer wg.Done()
			errs[idx] = p.runWorker(idx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Active reports how many workers are currently mid-evaluation, for
// diagnostics.
func (p *Pool) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return p.active
}

// RunWorker drives worker id until the completion queue closes or it
// hits a fatal error. It is the unit engine.Run schedules directly
// under its own errgroup.Group slot, one call per worker, so that a
// single worker's fatal error cancels the shared run context as soon
// as it happens rather than only once every worker has exited.
func (p *Pool) RunWorker(id int) error {
	return p.runWorker(id)
}

func (p *Pool) runWorker(id int) error {
	for {
		item, ok := p.cq.Pop()
		if !ok {
			return nil
		}
		if err := p.evaluateOne(id, item.Value.(dispatch.Item)); err != nil {
			p.tracer.Error(telemetry.ComponentWorker, "evaluate failed", telemetry.Fields{"worker": id, "err": err})
			return err
		}
	}
}

// evaluateOne decodes and evaluates one completion, then appends its
// timing row. The row is only ever written from the deferred block at
// the bottom, which always runs and always takes this item's place in
// line before releasing the next waiter — even on a decode or eval
// error — so a worker that fails partway through never strands a
// sibling worker waiting on a seq number that will never arrive.
func (p *Pool) evaluateOne(workerID int, item dispatch.Item) (retErr error) {
	eval2Start := time.Now()
	before := p.counters.Snapshot()

	p.activeMu.Lock()
	p.active++
	p.activeMu.Unlock()
	defer func() {
		p.activeMu.Lock()
		p.active--
		p.activeMu.Unlock()
	}()

	var row csvlog.Row
	haveRow := false

	defer func() {
		if p.log == nil {
			return
		}
		p.logMu.Lock()
		for p.nextLogSeq != item.Seq {
			p.logCond.Wait()
		}
		if haveRow {
			if err := p.log.Write(row); err != nil && retErr == nil {
				retErr = fmt.Errorf("workerpool: write timing row for %q: %w", item.OID, err)
			}
		}
		p.nextLogSeq++
		p.logCond.Broadcast()
		p.logMu.Unlock()
	}()

	if item.Err != nil {
		return fmt.Errorf("workerpool: completion for %q failed: %w", item.OID, item.Err)
	}

	payload := item.Payload
	var readNs, evalNs uint64

	if item.ViaExec {
		prefix, suffix, err := wire.DecodePrefix(payload)
		if err != nil {
			return fmt.Errorf("workerpool: decode response prefix for %q: %w", item.OID, err)
		}
		payload = suffix
		readNs, evalNs = prefix.ReadNs, prefix.EvalNs
		p.counters.NRowsProcessed.Add(int64(prefix.NRowsServerProcessed))
	}

	// A plain read (including the dispatcher's fallback read when the
	// backend cannot exec) returns unfiltered rows, so it is evaluated
	// client-side whatever the run's server-side flags say.
	m := p.m
	if !item.ViaExec {
		m.UseServerSide, m.UseIndex = false, false
	}

	mode, err := p.chooseMode(item.ViaExec)
	if err != nil {
		return err
	}

	if mode.Kind == eval.RawRows {
		if mode.Stride > 0 {
			rows := int64(len(payload) / mode.Stride)
			p.counters.RowsReturned.Add(rows)
			if !item.ViaExec {
				p.counters.NRowsProcessed.Add(rows)
			}
		}
	} else if p.q.Tag == querylang.TagStructured && item.ViaExec {
		structured, err := wire.DecodeStructuredSuffix(payload)
		if err != nil {
			return fmt.Errorf("workerpool: decode structured suffix for %q: %w", item.OID, err)
		}
		payload = structured
	}

	if err := eval.Evaluate(payload, mode, p.q, m, p.counters, p.printer); err != nil {
		return fmt.Errorf("workerpool: evaluate %q: %w", item.OID, err)
	}

	eval2Ns := uint64(time.Since(eval2Start).Nanoseconds())
	if p.metrics != nil {
		after := p.counters.Snapshot()
		p.metrics.ResultCount.Add(float64(after.ResultCount - before.ResultCount))
		p.metrics.RowsReturned.Add(float64(after.RowsReturned - before.RowsReturned))
		p.metrics.NRowsProcessed.Add(float64(after.NRowsProcessed - before.NRowsProcessed))
		p.metrics.Eval2Duration.Observe(float64(eval2Ns) / 1e9)
	}
	row = csvlog.Row{
		Dispatch: item.Dispatch,
		Response: item.Response,
		ReadNs:   int64(readNs),
		EvalNs:   int64(evalNs),
		Eval2Ns:  int64(eval2Ns),
	}
	haveRow = true
	return nil
}

// chooseMode implements the mode-selection rule of spec §4.7 step 3.
// viaExec mirrors item.ViaExec: whether this payload came back from
// AioExec (server already ran the op) rather than a bare AioRead.
func (p *Pool) chooseMode(viaExec bool) (eval.Mode, error) {
	if p.q.Tag == querylang.TagStructured {
		kind := eval.Framed
		if viaExec && p.m.Projection {
			kind = eval.FramedPreFiltered
		}
		return eval.Mode{
			Kind:           kind,
			TableSchema:    p.tableSchema,
			QuerySchema:    p.querySchema,
			Projection:     p.m.Projection,
			ServerExecuted: viaExec,
		}, nil
	}

	if p.m.Projection && viaExec {
		return eval.Mode{Kind: eval.RawRows, Stride: 8, Projected: true}, nil
	}
	return eval.Mode{Kind: eval.RawRows, Stride: 141, Projected: false}, nil
}
