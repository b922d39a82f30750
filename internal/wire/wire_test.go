package wire

import (
	"testing"

	"github.com/golang/snappy"

	"github.com/uccross/skyhookdb-ceph/internal/querylang"
)

func TestEncodeDecodeQueryOpRoundTrip(t *testing.T) {
	q := querylang.Query{
		Tag:            querylang.TagSelectRange,
		ShipDateLow:    19940101,
		ShipDateHigh:   19950101,
		DiscountLow:    0.05,
		DiscountHigh:   0.07,
		Quantity:       24,
		CommentRegex:   "",
		TableSchemaStr: "order_key:int:0:1",
		QuerySchemaStr: "order_key:int:0:1",
	}
	m := querylang.Modifiers{UseIndex: false, Projection: true, ExtraRowCost: 42}

	encoded := EncodeQueryOp(q, m)
	gotQ, gotM, err := DecodeQueryOp(encoded)
	if err != nil {
		t.Fatalf("DecodeQueryOp() error = %v", err)
	}

	if gotQ != q {
		t.Errorf("DecodeQueryOp() query = %+v, want %+v", gotQ, q)
	}
	if !gotM.UseServerSide {
		t.Error("decoding a query_op must imply UseServerSide")
	}
	if gotM.Projection != m.Projection || gotM.ExtraRowCost != m.ExtraRowCost || gotM.UseIndex != m.UseIndex {
		t.Errorf("DecodeQueryOp() modifiers = %+v, want Projection/ExtraRowCost/UseIndex to match %+v", gotM, m)
	}
}

func TestDecodeQueryOpBadSnappy(t *testing.T) {
	if _, _, err := DecodeQueryOp([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("DecodeQueryOp() on garbage input should error")
	}
}

func TestEncodeDecodePrefixRoundTrip(t *testing.T) {
	p := ResponsePrefix{ReadNs: 1234, EvalNs: 5678, NRowsServerProcessed: 9}
	suffix := []byte("trailing payload")

	wire := append(EncodePrefix(p), suffix...)
	got, rest, err := DecodePrefix(wire)
	if err != nil {
		t.Fatalf("DecodePrefix() error = %v", err)
	}
	if got != p {
		t.Errorf("DecodePrefix() = %+v, want %+v", got, p)
	}
	if string(rest) != string(suffix) {
		t.Errorf("DecodePrefix() remainder = %q, want %q", rest, suffix)
	}
}

func TestEncodeDecodePrefixCompressedRoundTrip(t *testing.T) {
	p := ResponsePrefix{ReadNs: 1234, EvalNs: 5678, NRowsServerProcessed: 9, Compressed: true}
	suffix := []byte("trailing payload, compressed on the wire")

	wire := append(EncodePrefix(p), snappy.Encode(nil, suffix)...)
	got, rest, err := DecodePrefix(wire)
	if err != nil {
		t.Fatalf("DecodePrefix() error = %v", err)
	}
	if got != p {
		t.Errorf("DecodePrefix() = %+v, want %+v", got, p)
	}
	if string(rest) != string(suffix) {
		t.Errorf("DecodePrefix() decompressed remainder = %q, want %q", rest, suffix)
	}
}

func TestDecodePrefixTooShort(t *testing.T) {
	if _, _, err := DecodePrefix([]byte{1, 2, 3}); err == nil {
		t.Error("DecodePrefix() on short input should error")
	}
}

func TestDecodePrefixBadCompressedSuffix(t *testing.T) {
	p := ResponsePrefix{Compressed: true}
	wire := append(EncodePrefix(p), []byte{0xff, 0xff, 0xff}...)
	if _, _, err := DecodePrefix(wire); err == nil {
		t.Error("DecodePrefix() on garbage compressed suffix should error")
	}
}

func TestEncodeDecodeStructuredSuffixRoundTrip(t *testing.T) {
	stream := []byte("framed-buffer-stream-bytes")
	wrapped := EncodeStructuredSuffix(stream)

	got, err := DecodeStructuredSuffix(wrapped)
	if err != nil {
		t.Fatalf("DecodeStructuredSuffix() error = %v", err)
	}
	if string(got) != string(stream) {
		t.Errorf("DecodeStructuredSuffix() = %q, want %q", got, stream)
	}
}

func TestDecodeStructuredSuffixOverrun(t *testing.T) {
	// Length prefix claims 255 bytes but only 2 follow.
	bad := []byte{255, 0, 0, 0, 'a', 'b'}
	if _, err := DecodeStructuredSuffix(bad); err == nil {
		t.Error("DecodeStructuredSuffix() on overrunning length should error")
	}
}

func TestDecodeStructuredSuffixTooShort(t *testing.T) {
	if _, err := DecodeStructuredSuffix([]byte{1, 2}); err == nil {
		t.Error("DecodeStructuredSuffix() on short input should error")
	}
}
