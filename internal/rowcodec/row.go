// Package rowcodec interprets a contiguous byte blob as an array of
// fixed-width lineitem records at known column offsets.
package rowcodec

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Layout describes the byte offsets of a fixed-width record. Offsets
// are parameters rather than constants so the same decoder handles the
// server-projected (order_key, line_number) layout as well as the full
// lineitem layout.
type Layout struct {
	Stride int

	OrderKeyOffset      int
	LineNumberOffset    int
	QuantityOffset      int
	ExtendedPriceOffset int
	DiscountOffset      int
	ShipDateOffset      int
	CommentOffset       int
	CommentLen          int
}

// FullLayout is the on-disk lineitem record used whenever the server
// has not transformed the bytes.
var FullLayout = Layout{
	Stride:              141,
	OrderKeyOffset:       0,
	LineNumberOffset:     12,
	QuantityOffset:       16,
	ExtendedPriceOffset:  24,
	DiscountOffset:       32,
	ShipDateOffset:       50,
	CommentOffset:        97,
	CommentLen:           44,
}

// ProjectedLayout is used when the server has pre-projected the row to
// (order_key, line_number) only. Accessors for fields outside this
// layout's two columns must not be called.
var ProjectedLayout = Layout{
	Stride:           8,
	OrderKeyOffset:   0,
	LineNumberOffset: 4,
}

// Blob wraps a byte range holding zero or more fixed-width records
// under a given layout.
type Blob struct {
	layout Layout
	data   []byte
}

// New wraps data under layout. It does not copy or validate.
func New(layout Layout, data []byte) Blob {
	return Blob{layout: layout, data: data}
}

// NumRows returns the number of complete records in the blob.
func (b Blob) NumRows() int {
	if b.layout.Stride <= 0 {
		return 0
	}
	return len(b.data) / b.layout.Stride
}

// Layout returns the layout the blob was constructed with.
func (b Blob) Layout() Layout {
	return b.layout
}

// Row returns a view over the i'th record. It performs no bounds
// checking beyond a panic on out-of-range i, matching the teacher's
// "the caller owns correctness" style for hot decode paths.
func (b Blob) Row(i int) RowView {
	off := i * b.layout.Stride
	return RowView{
		layout: b.layout,
		data:   b.data[off : off+b.layout.Stride],
	}
}

// RowView is a zero-copy typed overlay onto one record's bytes. All
// reads are explicit unaligned little-endian loads; the underlying
// buffer is never assumed to satisfy any particular alignment.
type RowView struct {
	layout Layout
	data   []byte
}

// Bytes returns the raw record bytes, e.g. for print_row-style output.
func (r RowView) Bytes() []byte {
	return r.data
}

func (r RowView) int32At(off int) int32 {
	return int32(binary.LittleEndian.Uint32(r.data[off : off+4]))
}

func (r RowView) float64At(off int) float64 {
	bits := binary.LittleEndian.Uint64(r.data[off : off+8])
	return math.Float64frombits(bits)
}

// OrderKey reads l_orderkey. Valid under both FullLayout and ProjectedLayout.
func (r RowView) OrderKey() int32 {
	return r.int32At(r.layout.OrderKeyOffset)
}

// LineNumber reads l_linenumber. Valid under both FullLayout and ProjectedLayout.
func (r RowView) LineNumber() int32 {
	return r.int32At(r.layout.LineNumberOffset)
}

// Quantity reads l_quantity. Only valid under FullLayout.
func (r RowView) Quantity() float64 {
	return r.float64At(r.layout.QuantityOffset)
}

// ExtendedPrice reads l_extendedprice. Only valid under FullLayout.
func (r RowView) ExtendedPrice() float64 {
	return r.float64At(r.layout.ExtendedPriceOffset)
}

// Discount reads l_discount. Only valid under FullLayout.
func (r RowView) Discount() float64 {
	return r.float64At(r.layout.DiscountOffset)
}

// ShipDate reads l_shipdate. Only valid under FullLayout.
func (r RowView) ShipDate() int32 {
	return r.int32At(r.layout.ShipDateOffset)
}

// Comment reads l_comment, trimmed at the first NUL within its slot.
// Only valid under FullLayout.
func (r RowView) Comment() string {
	slot := r.data[r.layout.CommentOffset : r.layout.CommentOffset+r.layout.CommentLen]
	if i := bytes.IndexByte(slot, 0); i >= 0 {
		slot = slot[:i]
	}
	return string(slot)
}
