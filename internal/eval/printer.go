package eval

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/uccross/skyhookdb-ceph/internal/framebuf"
	"github.com/uccross/skyhookdb-ceph/internal/rowcodec"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
)

// Printer renders matching rows. Implementations must serialize their
// own writes; the evaluator calls into a shared Printer from any
// worker goroutine and relies on it not to interleave output.
type Printer interface {
	PrintRow(row rowcodec.RowView)
	PrintFrame(frame framebuf.Frame, schema tableschema.Schema)
}

// linePrinter writes one line per row to w, serialized by mu so
// multi-object output from concurrent workers is never interleaved.
type linePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLinePrinter returns a Printer that writes pipe-delimited rows to w.
func NewLinePrinter(w io.Writer) Printer {
	return &linePrinter{w: w}
}

func (p *linePrinter) PrintRow(row rowcodec.RowView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%d|%d|%v|%v|%v|%d|%s\n",
		row.OrderKey(), row.LineNumber(), row.Quantity(),
		row.ExtendedPrice(), row.Discount(), row.ShipDate(), row.Comment())
}

func (p *linePrinter) PrintFrame(frame framebuf.Frame, schema tableschema.Schema) {
	rows, err := framebuf.DecodeRows(frame.Rows, int(frame.Header.NRows), len(schema))

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		fmt.Fprintf(p.w, "<frame %s: decode error: %v>\n", frame.Header.SchemaTag, err)
		return
	}
	for _, row := range rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = formatValue(v)
		}
		fmt.Fprintln(p.w, strings.Join(parts, "|"))
	}
}

func formatValue(v framebuf.Value) string {
	if v.Null {
		return "NULL"
	}
	switch v.Kind {
	case framebuf.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case framebuf.KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case framebuf.KindString:
		return v.Str
	default:
		return ""
	}
}

// noopPrinter discards all output; used under --quiet.
type noopPrinter struct{}

// NewNoopPrinter returns a Printer that discards everything written to
// it, for --quiet runs where only counters matter.
func NewNoopPrinter() Printer {
	return noopPrinter{}
}

func (noopPrinter) PrintRow(rowcodec.RowView) {}

func (noopPrinter) PrintFrame(framebuf.Frame, tableschema.Schema) {}
