package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/uccross/skyhookdb-ceph/internal/storage"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
	"github.com/uccross/skyhookdb-ceph/internal/wire"
)

// BuildIndexConfig is the subset of Config the --build-index path
// needs: it never touches the query/dispatcher/worker-pool machinery
// at all, only the target list and a worker fan-out.
type BuildIndexConfig struct {
	Client storage.Client

	NumObjs  int
	Dir      Direction
	WThreads int
	Rand     *rand.Rand

	BatchSize int

	Tracer *telemetry.Tracer
}

// RunBuildIndex is the Go rendering of run-query.cc's worker_build_index:
// a wthreads-sized pool of goroutines popping off the same target list
// under one mutex, each invoking the "build_index" exec method against
// its object. Unlike a query run, it has no dispatcher/worker-pool
// pipeline of its own — construction happens synchronously per target,
// batch-sized by --build-index-batch-size, because the point of this
// path is to finish the index, not to overlap I/O with evaluation.
func RunBuildIndex(ctx context.Context, cfg BuildIndexConfig) error {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.New()
	}

	targets, err := BuildTargets(cfg.NumObjs, cfg.Dir, cfg.Rand)
	if err != nil {
		return err
	}

	wthreads := cfg.WThreads
	if wthreads < 1 {
		wthreads = 1
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1000
	}
	req := wire.EncodeBuildIndexRequest(batchSize)
	work := &targetFeed{targets: targets}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < wthreads; i++ {
		workerID := i
		g.Go(func() error {
			for {
				oid, ok := work.take()
				if !ok {
					return nil
				}
				if _, execErr := storage.Exec(gctx, cfg.Client, oid, storage.MethodBuildIndex, req); execErr != nil {
					return fmt.Errorf("engine: build index for %q: %w", oid, execErr)
				}
				tracer.Debug(telemetry.ComponentWorker, "build_index done", telemetry.Fields{"worker": workerID, "oid": oid})
			}
		})
	}
	return g.Wait()
}

// targetFeed is the Go rendering of worker_build_index's shared
// target-list index guarded by work_lock: every worker goroutine pops
// the next unclaimed target under one mutex instead of each owning a
// static slice partition, so a slow object doesn't leave one worker
// idle while another still has a long queue.
type targetFeed struct {
	mu      sync.Mutex
	targets []string
	next    int
}

func (f *targetFeed) take() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.targets) {
		return "", false
	}
	oid := f.targets[f.next]
	f.next++
	return oid, true
}
