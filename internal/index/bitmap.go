// Package index provides the roaring-bitmap bookkeeping the
// dispatcher and the build-index path use: which targets have been
// dispatched, and the row-position set an object's built index holds.
package index

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// DispatchSet tracks which target indices have been submitted to the
// storage client. It exists mainly so the dispatcher's "has this
// target already gone out" bookkeeping is O(1) and allocation-light
// even for large --num-objs runs, instead of a map[int]struct{}.
type DispatchSet struct {
	bitmap *roaring.Bitmap
}

// NewDispatchSet returns an empty set.
func NewDispatchSet() *DispatchSet {
	return &DispatchSet{bitmap: roaring.New()}
}

// Mark records targetIdx as dispatched. It reports whether the index
// was newly added (false if it was already marked).
func (d *DispatchSet) Mark(targetIdx int) bool {
	return d.bitmap.CheckedAdd(uint32(targetIdx))
}

// Contains reports whether targetIdx has been marked.
func (d *DispatchSet) Contains(targetIdx int) bool {
	return d.bitmap.Contains(uint32(targetIdx))
}

// Count returns the number of marked targets.
func (d *DispatchSet) Count() int {
	return int(d.bitmap.GetCardinality())
}

// RowBitmap is a set of row positions within an object's raw-row
// payload. storage.MemStore keeps one per object as the result of a
// build_index exec; no pushdown response carries one, and the worker
// does not read it.
type RowBitmap struct {
	bitmap *roaring.Bitmap
}

// NewRowBitmap wraps a set of matching row positions.
func NewRowBitmap(positions []uint32) *RowBitmap {
	return &RowBitmap{bitmap: roaring.BitmapOf(positions...)}
}

// EncodeRowBitmap serializes positions to the portable roaring format,
// for embedding a build-index batch's result in an object's index
// entry.
func EncodeRowBitmap(positions []uint32) []byte {
	bm := roaring.BitmapOf(positions...)
	buf, err := bm.ToBytes()
	if err != nil {
		// ToBytes only fails on a write error, which cannot happen
		// against an in-memory buffer.
		panic(err)
	}
	return buf
}

// DecodeRowBitmap parses the portable roaring format produced by
// EncodeRowBitmap.
func DecodeRowBitmap(data []byte) (*RowBitmap, error) {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &RowBitmap{bitmap: bm}, nil
}

// Positions returns the matching row positions in ascending order.
func (r *RowBitmap) Positions() []uint32 {
	return r.bitmap.ToArray()
}

// Contains reports whether row position i matched.
func (r *RowBitmap) Contains(i uint32) bool {
	return r.bitmap.Contains(i)
}

// Len returns the number of matching rows.
func (r *RowBitmap) Len() int {
	return int(r.bitmap.GetCardinality())
}
