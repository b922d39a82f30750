package dispatch

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uccross/skyhookdb-ceph/internal/metrics"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/queue"
	"github.com/uccross/skyhookdb-ceph/internal/storage"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
)

// slowStore delays every AioRead so the test can observe the in-flight
// window before completions start draining it.
type slowStore struct {
	delay    time.Duration
	maxSeen  atomic.Int32
	inFlight atomic.Int32
}

func (s *slowStore) AioRead(oid string, completion storage.Completion) {
	n := s.inFlight.Add(1)
	for {
		cur := s.maxSeen.Load()
		if n <= cur || s.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	go func() {
		time.Sleep(s.delay)
		s.inFlight.Add(-1)
		completion([]byte("x"), nil)
	}()
}

func (s *slowStore) AioExec(oid, method string, in []byte, completion storage.Completion) {
	completion(nil, nil)
}

func TestInFlightNeverExceedsCapacity(t *testing.T) {
	store := &slowStore{delay: 20 * time.Millisecond}
	targets := make([]string, 20)
	for i := range targets {
		targets[i] = "obj." + string(rune('a'+i))
	}

	cq := queue.New()
	q := querylang.Query{Tag: querylang.TagSelectAll}
	m := querylang.Modifiers{}
	d := New(targets, 3, store, q, m, cq, time.Now(), telemetry.New())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := store.maxSeen.Load(); got > 3 {
		t.Errorf("observed %d concurrent requests, want <= 3", got)
	}
}

func TestRunClosesQueueAfterDraining(t *testing.T) {
	store := &slowStore{delay: time.Millisecond}
	targets := []string{"obj.0", "obj.1", "obj.2"}
	cq := queue.New()
	q := querylang.Query{Tag: querylang.TagSelectAll}
	m := querylang.Modifiers{}
	d := New(targets, 2, store, q, m, cq, time.Now(), telemetry.New())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var count int
	for {
		_, ok := cq.Pop()
		if !ok {
			break
		}
		count++
	}
	if count != len(targets) {
		t.Errorf("drained %d completions, want %d", count, len(targets))
	}
}

func TestRunDispatchesEveryTargetExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	store := &countingStore{seen: seen, mu: &mu}

	targets := []string{"obj.0", "obj.1", "obj.2", "obj.3"}
	cq := queue.New()
	q := querylang.Query{Tag: querylang.TagSelectAll}
	m := querylang.Modifiers{}
	d := New(targets, 4, store, q, m, cq, time.Now(), telemetry.New())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, oid := range targets {
		if seen[oid] != 1 {
			t.Errorf("target %q dispatched %d times, want 1", oid, seen[oid])
		}
	}
}

// TestRunReportsInFlightToMetrics checks that the in_flight gauge of a
// registry passed to SetMetrics reads back 0 once the run has drained.
// It does not observe the gauge while requests are outstanding.
func TestRunReportsInFlightToMetrics(t *testing.T) {
	store := &slowStore{delay: 5 * time.Millisecond}
	targets := []string{"obj.0", "obj.1", "obj.2", "obj.3"}
	cq := queue.New()
	q := querylang.Query{Tag: querylang.TagSelectAll}
	m := querylang.Modifiers{}
	d := New(targets, 2, store, q, m, cq, time.Now(), telemetry.New())

	reg := metrics.NewRegistry()
	d.SetMetrics(reg)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "skyhook_in_flight 0") {
		t.Errorf("expected in_flight to read back 0 after drain, got:\n%s", rec.Body.String())
	}
}

// noCollaboratorStore fails every AioExec with ErrNoPushdownCollaborator
// and serves AioRead normally, mimicking an HTTP byte-range backend.
type noCollaboratorStore struct {
	read atomic.Int32
}

func (n *noCollaboratorStore) AioRead(oid string, completion storage.Completion) {
	n.read.Add(1)
	completion([]byte("row-bytes"), nil)
}

func (n *noCollaboratorStore) AioExec(oid, method string, in []byte, completion storage.Completion) {
	completion(nil, fmt.Errorf("storage: exec %q against %q: %w", method, oid, storage.ErrNoPushdownCollaborator))
}

func TestRunFallsBackToDirectReadWhenNoPushdownCollaborator(t *testing.T) {
	store := &noCollaboratorStore{}
	targets := []string{"obj.0", "obj.1", "obj.2"}
	cq := queue.New()
	q := querylang.Query{Tag: querylang.TagSelectAll}
	m := querylang.Modifiers{UseServerSide: true}
	d := New(targets, 2, store, q, m, cq, time.Now(), telemetry.New())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := store.read.Load(); got != int32(len(targets)) {
		t.Errorf("AioRead called %d times, want %d", got, len(targets))
	}

	var count int
	for {
		v, ok := cq.Pop()
		if !ok {
			break
		}
		item := v.Value.(Item)
		if item.ViaExec {
			t.Errorf("item for %q still marked ViaExec after fallback", item.OID)
		}
		if item.Err != nil {
			t.Errorf("item for %q has error %v, want nil", item.OID, item.Err)
		}
		count++
	}
	if count != len(targets) {
		t.Errorf("drained %d completions, want %d", count, len(targets))
	}
}

type countingStore struct {
	mu   *sync.Mutex
	seen map[string]int
}

func (c *countingStore) AioRead(oid string, completion storage.Completion) {
	c.mu.Lock()
	c.seen[oid]++
	c.mu.Unlock()
	completion([]byte("x"), nil)
}

func (c *countingStore) AioExec(oid, method string, in []byte, completion storage.Completion) {
	completion(nil, nil)
}
