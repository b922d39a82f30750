package workerpool

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/uccross/skyhookdb-ceph/internal/csvlog"
	"github.com/uccross/skyhookdb-ceph/internal/dispatch"
	"github.com/uccross/skyhookdb-ceph/internal/eval"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/queue"
	"github.com/uccross/skyhookdb-ceph/internal/rowcodec"
	"github.com/uccross/skyhookdb-ceph/internal/telemetry"
	"github.com/uccross/skyhookdb-ceph/internal/wire"
)

func buildRow(price float64) []byte {
	row := make([]byte, rowcodec.FullLayout.Stride)
	binary.LittleEndian.PutUint64(row[rowcodec.FullLayout.ExtendedPriceOffset:], math.Float64bits(price))
	return row
}

func TestPoolCountGreaterClientSide(t *testing.T) {
	cq := queue.New()
	var raw []byte
	for i := 0; i < 4; i++ {
		price := 50.0
		if i == 1 {
			price = 100.0
		}
		raw = append(raw, buildRow(price)...)
	}
	cq.Push(queue.Completion{Value: dispatch.Item{OID: "obj.0", Seq: 0, Payload: raw}})
	cq.Close()

	q := querylang.Query{Tag: querylang.TagCountGreater, ExtendedPrice: 75.0}
	counters := &eval.Counters{}
	pool := New(1, cq, q, querylang.Modifiers{}, nil, nil, counters, eval.NewNoopPrinter(), nil, telemetry.New())

	if err := pool.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := counters.Snapshot().ResultCount; got != 1 {
		t.Errorf("ResultCount = %d, want 1", got)
	}
}

func TestPoolDecodesPushdownPrefixAndTrustsServerCount(t *testing.T) {
	cq := queue.New()
	prefix := wire.EncodePrefix(wire.ResponsePrefix{ReadNs: 10, EvalNs: 20, NRowsServerProcessed: 7})
	countBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(countBuf, 3)
	payload := append(prefix, countBuf...)

	cq.Push(queue.Completion{Value: dispatch.Item{OID: "obj.0", Seq: 0, Payload: payload, ViaExec: true}})
	cq.Close()

	q := querylang.Query{Tag: querylang.TagCountGreater, ExtendedPrice: 75.0}
	m := querylang.Modifiers{UseServerSide: true}
	counters := &eval.Counters{}
	pool := New(1, cq, q, m, nil, nil, counters, eval.NewNoopPrinter(), nil, telemetry.New())

	if err := pool.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	snap := counters.Snapshot()
	if snap.ResultCount != 3 {
		t.Errorf("ResultCount = %d, want 3", snap.ResultCount)
	}
	if snap.NRowsProcessed != 7 {
		t.Errorf("NRowsProcessed = %d, want 7", snap.NRowsProcessed)
	}
}

func TestPoolWritesTimingRowsInCompletionOrderAcrossWorkers(t *testing.T) {
	cq := queue.New()
	const n = 30
	for i := int64(0); i < n; i++ {
		cq.Push(queue.Completion{Value: dispatch.Item{
			OID:      "obj",
			Seq:      i,
			Dispatch: i,
			Response: i + 1,
			Payload:  nil,
		}})
	}
	cq.Close()

	path := filepath.Join(t.TempDir(), "timings.csv")
	logw, err := csvlog.Open(path)
	if err != nil {
		t.Fatalf("csvlog.Open() error = %v", err)
	}

	q := querylang.Query{Tag: querylang.TagSelectAll}
	counters := &eval.Counters{}
	pool := New(8, cq, q, querylang.Modifiers{}, nil, nil, counters, eval.NewNoopPrinter(), logw, telemetry.New())

	if err := pool.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := logw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != n+1 {
		t.Fatalf("got %d lines, want %d", len(lines), n+1)
	}
	for i, line := range lines[1:] {
		got := strings.Split(line, ",")[0]
		if got != strconv.Itoa(i) {
			t.Errorf("row %d dispatch column = %s, want %d", i, got, i)
		}
	}
}
