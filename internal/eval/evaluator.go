// Package eval implements the predicate/projection evaluator: the
// single piece of logic that knows how to turn a completed object's
// payload into a contribution to the running result counters, for
// every query shape and in every combination of server-side and
// client-side filtering.
package eval

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/uccross/skyhookdb-ceph/internal/framebuf"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/rowcodec"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
)

// Kind names the three payload shapes the evaluator can be handed.
type Kind int

const (
	// RawRows is a contiguous array of fixed-width records.
	RawRows Kind = iota
	// Framed is a length-prefixed stream of self-describing buffers
	// the client must still filter and/or project.
	Framed
	// FramedPreFiltered is the same framed stream, but the server has
	// already applied every predicate; every row counts.
	FramedPreFiltered
)

// Mode selects how the payload bytes are interpreted. Only the fields
// relevant to Kind are meaningful.
type Mode struct {
	Kind Kind

	// RawRows only.
	Stride    int
	Projected bool

	// Framed / FramedPreFiltered only.
	TableSchema    tableschema.Schema
	QuerySchema    tableschema.Schema
	Projection     bool
	ServerExecuted bool // true iff this payload came back from AioExec rather than AioRead
}

// costSink absorbs the dummy work add_extra_row_cost performs, so the
// compiler has no basis for eliding the loop.
var costSink atomic.Uint64

func addExtraRowCost(cycles uint64) {
	var acc uint64
	for i := uint64(0); i < cycles; i++ {
		acc += i ^ 0x9e3779b97f4a7c15
	}
	costSink.Add(acc)
}

func rawBlob(payload []byte, mode Mode) rowcodec.Blob {
	layout := rowcodec.FullLayout
	if mode.Projected {
		layout = rowcodec.ProjectedLayout
	}
	return rowcodec.New(layout, payload)
}

// Evaluate applies query q (and modifiers m) to payload under mode,
// folding its contribution into counters and, for matching rows,
// invoking printer. It performs no I/O and is safe to call from any
// worker goroutine concurrently, provided distinct payloads.
func Evaluate(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters, printer Printer) error {
	switch q.Tag {
	case querylang.TagCountGreater:
		return evalCountGreater(payload, mode, q, m, counters)
	case querylang.TagSelectGreater:
		return evalSelectGreater(payload, mode, q, m, counters, printer)
	case querylang.TagSelectEqual:
		return evalSelectEqual(payload, mode, q, m, counters, printer)
	case querylang.TagSelectByKey:
		return evalSelectByKey(payload, mode, q, m, counters, printer)
	case querylang.TagSelectRange:
		return evalSelectRange(payload, mode, q, m, counters, printer)
	case querylang.TagSelectRegex:
		return evalSelectRegex(payload, mode, q, m, counters, printer)
	case querylang.TagSelectAll:
		return passThroughRaw(payload, mode, counters, printer)
	case querylang.TagStructured:
		return evalStructured(payload, mode, q, counters, printer)
	default:
		return fmt.Errorf("eval: unknown query %q: %w", q.Tag, querylang.ErrUnknownQuery)
	}
}

// evalCountGreater trusts a server-reported count whenever the server
// ran in pushdown mode at all, rather than only for the narrower
// raw+projected combination spec language suggests in isolation — that
// narrower reading cannot produce the documented
// use_cls=true/non-projected count-query scenario, and the original
// collaborator always returns a bare count under server-side execution
// for this query regardless of projection.
func evalCountGreater(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters) error {
	if mode.Kind == FramedPreFiltered || (mode.Kind == RawRows && m.UseServerSide) {
		if len(payload) < 8 {
			return fmt.Errorf("eval: count payload shorter than one u64: %w", ErrDecodeFailed)
		}
		counters.ResultCount.Add(int64(binary.LittleEndian.Uint64(payload[:8])))
		return nil
	}

	blob := rawBlob(payload, mode)
	for i := 0; i < blob.NumRows(); i++ {
		if blob.Row(i).ExtendedPrice() > q.ExtendedPrice {
			counters.ResultCount.Add(1)
			addExtraRowCost(m.ExtraRowCost)
		}
	}
	return nil
}

func preFilteredRaw(mode Mode, m querylang.Modifiers) bool {
	return (mode.Kind == RawRows && mode.Projected && m.UseServerSide) || m.UseIndex
}

func evalSelectGreater(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters, printer Printer) error {
	if preFilteredRaw(mode, m) {
		return passThroughRaw(payload, mode, counters, printer)
	}
	blob := rawBlob(payload, mode)
	for i := 0; i < blob.NumRows(); i++ {
		row := blob.Row(i)
		if row.ExtendedPrice() > q.ExtendedPrice {
			printer.PrintRow(row)
			counters.ResultCount.Add(1)
			addExtraRowCost(m.ExtraRowCost)
		}
	}
	return nil
}

func evalSelectEqual(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters, printer Printer) error {
	if preFilteredRaw(mode, m) {
		return passThroughRaw(payload, mode, counters, printer)
	}
	blob := rawBlob(payload, mode)
	for i := 0; i < blob.NumRows(); i++ {
		row := blob.Row(i)
		if row.ExtendedPrice() == q.ExtendedPrice {
			printer.PrintRow(row)
			counters.ResultCount.Add(1)
			addExtraRowCost(m.ExtraRowCost)
		}
	}
	return nil
}

func evalSelectByKey(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters, printer Printer) error {
	if preFilteredRaw(mode, m) {
		return passThroughRaw(payload, mode, counters, printer)
	}
	blob := rawBlob(payload, mode)
	for i := 0; i < blob.NumRows(); i++ {
		row := blob.Row(i)
		if row.OrderKey() == q.OrderKey && row.LineNumber() == q.LineNumber {
			printer.PrintRow(row)
			counters.ResultCount.Add(1)
			addExtraRowCost(m.ExtraRowCost)
		}
	}
	return nil
}

func evalSelectRange(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters, printer Printer) error {
	if preFilteredRaw(mode, m) {
		return passThroughRaw(payload, mode, counters, printer)
	}
	blob := rawBlob(payload, mode)
	for i := 0; i < blob.NumRows(); i++ {
		row := blob.Row(i)
		shipDate := row.ShipDate()
		if shipDate < q.ShipDateLow || shipDate >= q.ShipDateHigh {
			continue
		}
		discount := row.Discount()
		if discount <= q.DiscountLow || discount >= q.DiscountHigh {
			continue
		}
		if row.Quantity() >= q.Quantity {
			continue
		}
		printer.PrintRow(row)
		counters.ResultCount.Add(1)
		addExtraRowCost(m.ExtraRowCost)
	}
	return nil
}

func evalSelectRegex(payload []byte, mode Mode, q querylang.Query, m querylang.Modifiers, counters *Counters, printer Printer) error {
	if preFilteredRaw(mode, m) {
		return passThroughRaw(payload, mode, counters, printer)
	}
	re, err := regexp.Compile(q.CommentRegex)
	if err != nil {
		return fmt.Errorf("eval: bad comment regex %q: %w", q.CommentRegex, err)
	}
	blob := rawBlob(payload, mode)
	for i := 0; i < blob.NumRows(); i++ {
		row := blob.Row(i)
		if re.MatchString(row.Comment()) {
			printer.PrintRow(row)
			counters.ResultCount.Add(1)
			addExtraRowCost(m.ExtraRowCost)
		}
	}
	return nil
}

// passThroughRaw counts and prints every row in a raw-row payload with
// no predicate applied, for SelectAll and every query's
// already-filtered-by-the-server branch.
func passThroughRaw(payload []byte, mode Mode, counters *Counters, printer Printer) error {
	blob := rawBlob(payload, mode)
	n := blob.NumRows()
	for i := 0; i < n; i++ {
		printer.PrintRow(blob.Row(i))
	}
	counters.ResultCount.Add(int64(n))
	return nil
}

// evalStructured walks a framed-buffer payload frame by frame. A
// FramedPreFiltered mode means the server already applied every
// predicate and projection; every row counts as-is. Otherwise, if
// projection was requested and the server did not perform it, each
// frame is transformed from TableSchema to QuerySchema before being
// counted and printed.
func evalStructured(payload []byte, mode Mode, q querylang.Query, counters *Counters, printer Printer) error {
	cur := framebuf.NewCursor(payload)
	for cur.Remaining() {
		frame, ok, err := cur.Next()
		if err != nil {
			return fmt.Errorf("eval: decode structured frame: %w", err)
		}
		if !ok {
			break
		}

		// rows_returned counts every frame regardless of where
		// filtering/projection happened; nrows_processed only tallies
		// rows the client itself walked — when the server executed
		// the op, the response prefix already carries its own
		// server-side row count.
		counters.RowsReturned.Add(int64(frame.Header.NRows))
		if !mode.ServerExecuted {
			counters.NRowsProcessed.Add(int64(frame.Header.NRows))
		}

		if mode.Kind == FramedPreFiltered || !mode.Projection {
			counters.ResultCount.Add(int64(frame.Header.NRows))
			printer.PrintFrame(frame, mode.QuerySchema)
			continue
		}

		transformed, err := transformFrame(frame, mode.TableSchema, mode.QuerySchema)
		if err != nil {
			return fmt.Errorf("eval: project structured frame: %w", err)
		}
		counters.ResultCount.Add(int64(transformed.Header.NRows))
		printer.PrintFrame(transformed, mode.QuerySchema)
	}
	return nil
}

// transformFrame is the framed-buffer transform collaborator referred
// to in spec for the "client must apply the projection itself" path:
// (table_schema, query_schema, bytes) -> new_bytes.
func transformFrame(frame framebuf.Frame, tableSchema, querySchema tableschema.Schema) (framebuf.Frame, error) {
	nrows := int(frame.Header.NRows)
	rows, err := framebuf.DecodeRows(frame.Rows, nrows, len(tableSchema))
	if err != nil {
		return framebuf.Frame{}, err
	}

	colIndex := make(map[string]int, len(tableSchema))
	for _, col := range tableSchema {
		colIndex[col.Name] = col.Index
	}

	var out []byte
	for _, row := range rows {
		projected := make([]framebuf.Value, len(querySchema))
		for i, col := range querySchema {
			srcIdx, ok := colIndex[col.Name]
			if !ok {
				return framebuf.Frame{}, fmt.Errorf("eval: projected column %q not in table schema", col.Name)
			}
			projected[i] = row[srcIdx]
		}
		out = append(out, framebuf.EncodeRowValues(projected)...)
	}

	return framebuf.Frame{
		Header: framebuf.Header{NRows: frame.Header.NRows, SchemaTag: frame.Header.SchemaTag},
		Rows:   out,
	}, nil
}
