package index

import "testing"

func TestDispatchSetMarkIsIdempotent(t *testing.T) {
	set := NewDispatchSet()
	if !set.Mark(3) {
		t.Error("first Mark(3) should report newly added")
	}
	if set.Mark(3) {
		t.Error("second Mark(3) should report already present")
	}
	if !set.Contains(3) || set.Contains(4) {
		t.Error("Contains() disagrees with Mark()")
	}
	if set.Count() != 1 {
		t.Errorf("Count() = %d, want 1", set.Count())
	}
}

func TestRowBitmapEncodeDecodeRoundTrip(t *testing.T) {
	positions := []uint32{0, 3, 7, 9}
	encoded := EncodeRowBitmap(positions)

	rb, err := DecodeRowBitmap(encoded)
	if err != nil {
		t.Fatalf("DecodeRowBitmap() error = %v", err)
	}
	if rb.Len() != len(positions) {
		t.Errorf("Len() = %d, want %d", rb.Len(), len(positions))
	}
	for _, p := range positions {
		if !rb.Contains(p) {
			t.Errorf("Contains(%d) = false, want true", p)
		}
	}
	if rb.Contains(5) {
		t.Error("Contains(5) = true, want false")
	}
}
