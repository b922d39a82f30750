// Package engine is the orchestrator: it validates a query against
// its own argument-validity table, builds the target list and
// traversal order, wires the dispatcher and worker pool together
// under one errgroup, and reports the final counters. It is the
// top-level collaborator the CLI front end calls into.
package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/uccross/skyhookdb-ceph/internal/csvlog"
	"github.com/uccross/skyhookdb-ceph/internal/dispatch"
	"github.com/uccross/skyhookdb-ceph/internal/eval"
	"github.com/uccross/skyhookdb-ceph/internal/metrics"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/queue"
	"github.com/uccross/skyhookdb-ceph/internal/storage"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
	"github.com/uccross/skyhookdb-ceph/internal/workerpool"
)

// Config is every knob a query run needs, already resolved from CLI
// flags / environment by the caller. Client and Query are required;
// everything else has a sane zero-value default.
type Config struct {
	Client storage.Client

	NumObjs  int
	Dir      Direction
	QDepth   int
	WThreads int
	Rand     *rand.Rand // only consulted for Dir == DirRandom

	Query     querylang.Query
	Modifiers querylang.Modifiers

	// TableSchema is only meaningful for Query.Tag == TagStructured; it
	// defaults to tableschema.LineitemSchema. StructuredHasPredicates
	// mirrors the validity table's "no predicates" fastpath condition,
	// since Query carries no predicate fields of its own for "flatbuf".
	TableSchema             tableschema.Schema
	StructuredHasPredicates bool

	Quiet   bool
	Out     io.Writer // row output destination; defaults to io.Discard
	LogPath string    // CSV timing log; empty disables it

	Metrics *metrics.Registry // optional
	Tracer  *telemetry.Tracer // defaults to telemetry.New() (tracing off)
}

// Result is what a completed run reports back to the CLI.
type Result struct {
	RunID      uuid.UUID
	Diagnostic string
	Counters   eval.Snapshot
	Summary    string
}

// Run validates cfg, builds the target list, and drives one query run
// to completion. The dispatcher and every worker run as sibling
// goroutines of one errgroup.Group: the first fatal error cancels the
// shared context, the dispatcher stops submitting new targets but
// still drains whatever is already in flight, and Wait joins every
// goroutine before Run returns — the Go rendering of spec §5's
// "propagate errors up and let the orchestrator join workers before
// returning."
func Run(ctx context.Context, cfg Config) (result *Result, err error) {
	runID := uuid.New()
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.New()
	}

	q := cfg.Query
	m := cfg.Modifiers
	tableSchema := cfg.TableSchema
	if tableSchema == nil {
		tableSchema = tableschema.LineitemSchema
	}
	var querySchema tableschema.Schema

	if q.Tag == querylang.TagStructured {
		forceProjection, resolveErr := q.ResolveStructured(tableSchema, cfg.StructuredHasPredicates)
		if resolveErr != nil {
			return nil, fmt.Errorf("engine: resolve structured schemas: %w", resolveErr)
		}
		// A non-"*" projection request means the client (or the server,
		// if it cooperates) must narrow columns regardless of whether
		// --projection was passed; forceProjection folds that in.
		m.Projection = m.Projection || forceProjection

		querySchema, err = tableschema.Parse(q.QuerySchemaStr)
		if err != nil {
			return nil, fmt.Errorf("engine: parse resolved query schema: %w", err)
		}
	}

	if err = querylang.Validate(q, m); err != nil {
		return nil, err
	}

	diagnostic, err := querylang.Describe(q, m)
	if err != nil {
		return nil, fmt.Errorf("engine: describe query: %w", err)
	}
	tracer.Info(telemetry.ComponentOrchestrator, "run starting", telemetry.Fields{
		"run_id": runID, "query": q.Tag, "num_objs": cfg.NumObjs, "diagnostic": diagnostic,
	})

	targets, err := BuildTargets(cfg.NumObjs, cfg.Dir, cfg.Rand)
	if err != nil {
		return nil, err
	}

	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	var printer eval.Printer
	if cfg.Quiet {
		printer = eval.NewNoopPrinter()
	} else {
		printer = eval.NewLinePrinter(out)
	}

	var log *csvlog.Writer
	if cfg.LogPath != "" {
		log, err = csvlog.Open(cfg.LogPath)
		if err != nil {
			return nil, fmt.Errorf("engine: open log file: %w", err)
		}
		defer func() {
			if cerr := log.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("engine: close log file: %w", cerr)
			}
		}()
	}

	wthreads := cfg.WThreads
	if wthreads < 1 {
		wthreads = 1
	}
	qdepth := cfg.QDepth
	if qdepth < 1 {
		qdepth = 1
	}

	cq := queue.New()
	counters := &eval.Counters{}
	start := time.Now()

	d := dispatch.New(targets, qdepth, cfg.Client, q, m, cq, start, tracer)
	pool := workerpool.New(wthreads, cq, q, m, tableSchema, querySchema, counters, printer, log, tracer)

	if cfg.Metrics != nil {
		d.SetMetrics(cfg.Metrics)
		pool.SetMetrics(cfg.Metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	for i := 0; i < wthreads; i++ {
		id := i
		g.Go(func() error { return pool.RunWorker(id) })
	}

	if waitErr := g.Wait(); waitErr != nil {
		tracer.Error(telemetry.ComponentOrchestrator, "run failed", telemetry.Fields{"run_id": runID, "err": waitErr})
		return nil, fmt.Errorf("engine: run failed: %w", waitErr)
	}

	snap := counters.Snapshot()
	rowsReturned := snap.RowsReturned
	if q.Tag == querylang.TagCountGreater && m.UseServerSide {
		// Preserved oddity (spec §9 open question i): this combination
		// never touches rows_returned, and the final line prints -1.
		rowsReturned = -1
	}
	summary := fmt.Sprintf("total result row count: %d / %d; nrows_processed=%d", snap.ResultCount, rowsReturned, snap.NRowsProcessed)

	tracer.Info(telemetry.ComponentOrchestrator, "run complete", telemetry.Fields{"run_id": runID, "summary": summary})

	result = &Result{RunID: runID, Diagnostic: diagnostic, Counters: snap, Summary: summary}
	return result, nil
}
