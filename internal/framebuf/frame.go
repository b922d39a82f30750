// Package framebuf decodes and encodes the framed stream of
// self-describing buffers (SDBs) that the storage cluster returns for
// the Structured ("flatbuf") query. Each SDB is a root header —
// {nrows, schema_tag} — followed by an opaque, column-ordered row
// payload. The wire grammar for the payload itself is normally owned
// by an external self-describing-buffer reader/writer; this package
// provides the module's own compact rendering of that contract so the
// evaluator and its tests have something concrete to decode and
// transform.
package framebuf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedFrame is returned when a length prefix overruns the
// remaining bytes in the range being decoded.
var ErrMalformedFrame = errors.New("framebuf: malformed frame")

// Header is the root header exposed by every SDB.
type Header struct {
	NRows     uint32
	SchemaTag string
}

// Frame is one decoded self-describing buffer: its header plus the
// opaque, column-ordered row payload that follows it.
type Frame struct {
	Header Header
	Rows   []byte
}

// EncodeFrame serializes header and an already-encoded row payload
// into one SDB (without the outer stream length prefix).
func EncodeFrame(header Header, rows []byte) []byte {
	tag := []byte(header.SchemaTag)
	buf := make([]byte, 0, 8+len(tag)+len(rows))
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], header.NRows)
	buf = append(buf, tmp[:]...)

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(tag)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, tag...)
	buf = append(buf, rows...)
	return buf
}

// ReadHeader parses the root header from the start of an SDB and
// returns the header plus the byte offset at which the row payload
// begins.
func ReadHeader(data []byte) (Header, int, error) {
	if len(data) < 8 {
		return Header{}, 0, fmt.Errorf("framebuf: short frame header: %w", ErrMalformedFrame)
	}
	nrows := binary.LittleEndian.Uint32(data[0:4])
	tagLen := binary.LittleEndian.Uint32(data[4:8])
	end := 8 + int(tagLen)
	if end > len(data) {
		return Header{}, 0, fmt.Errorf("framebuf: schema tag overruns frame: %w", ErrMalformedFrame)
	}
	return Header{
		NRows:     nrows,
		SchemaTag: string(data[8:end]),
	}, end, nil
}

// DecodeFrame parses one complete SDB (header + rows) from data.
func DecodeFrame(data []byte) (Frame, error) {
	header, off, err := ReadHeader(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: header, Rows: data[off:]}, nil
}

// Cursor walks a length-prefixed stream of SDBs: repeatedly a 4-byte
// little-endian length prefix followed by that many payload bytes,
// until the range is exhausted. A fresh Cursor can always be built
// over the same data to restart the walk.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor constructs a cursor over a length-prefixed SDB stream.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Remaining reports whether the cursor has bytes left to decode.
func (c *Cursor) Remaining() bool {
	return c.pos < len(c.data)
}

// Next decodes the next frame in the stream, advancing the cursor. It
// returns io.EOF-free false when the stream is exhausted.
func (c *Cursor) Next() (Frame, bool, error) {
	if c.pos >= len(c.data) {
		return Frame{}, false, nil
	}
	if c.pos+4 > len(c.data) {
		return Frame{}, false, fmt.Errorf("framebuf: truncated length prefix: %w", ErrMalformedFrame)
	}
	length := int(binary.LittleEndian.Uint32(c.data[c.pos : c.pos+4]))
	start := c.pos + 4
	end := start + length
	if length < 0 || end > len(c.data) {
		return Frame{}, false, fmt.Errorf("framebuf: frame of length %d overruns range: %w", length, ErrMalformedFrame)
	}
	frame, err := DecodeFrame(c.data[start:end])
	if err != nil {
		return Frame{}, false, err
	}
	c.pos = end
	return frame, true, nil
}

// EncodeStream wraps a list of already-built SDBs into one
// length-prefixed stream, the inverse of repeatedly calling Next.
func EncodeStream(frames [][]byte) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	for _, f := range frames {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(f)))
		buf.Write(tmp[:])
		buf.Write(f)
	}
	return buf.Bytes()
}

// ValueKind identifies the type carried by an encoded column value.
type ValueKind uint8

const (
	KindInt ValueKind = iota
	KindFloat
	KindString
)

// Value is one decoded column value, or a null marker.
type Value struct {
	Null  bool
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

// EncodeRowValues serializes one row's values in column order. Each
// value is [null:1][kind:1][payload], where payload is omitted for
// null values.
func EncodeRowValues(values []Value) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		if v.Null {
			buf.WriteByte(1)
			continue
		}
		buf.WriteByte(0)
		buf.WriteByte(byte(v.Kind))
		switch v.Kind {
		case KindInt:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], uint64(v.Int))
			buf.Write(tmp[:])
		case KindFloat:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.Float))
			buf.Write(tmp[:])
		case KindString:
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(len(v.Str)))
			buf.Write(tmp[:])
			buf.WriteString(v.Str)
		}
	}
	return buf.Bytes()
}

// DecodeRowValues decodes numCols column values starting at data[0],
// returning the values and the number of bytes consumed.
func DecodeRowValues(data []byte, numCols int) ([]Value, int, error) {
	values := make([]Value, 0, numCols)
	pos := 0
	for i := 0; i < numCols; i++ {
		if pos >= len(data) {
			return nil, 0, fmt.Errorf("framebuf: truncated row value %d/%d: %w", i, numCols, ErrMalformedFrame)
		}
		null := data[pos]
		pos++
		if null == 1 {
			values = append(values, Value{Null: true})
			continue
		}
		if pos >= len(data) {
			return nil, 0, fmt.Errorf("framebuf: truncated row value kind: %w", ErrMalformedFrame)
		}
		kind := ValueKind(data[pos])
		pos++
		switch kind {
		case KindInt:
			if pos+8 > len(data) {
				return nil, 0, fmt.Errorf("framebuf: truncated int value: %w", ErrMalformedFrame)
			}
			values = append(values, Value{Kind: KindInt, Int: int64(binary.LittleEndian.Uint64(data[pos : pos+8]))})
			pos += 8
		case KindFloat:
			if pos+8 > len(data) {
				return nil, 0, fmt.Errorf("framebuf: truncated float value: %w", ErrMalformedFrame)
			}
			bits := binary.LittleEndian.Uint64(data[pos : pos+8])
			values = append(values, Value{Kind: KindFloat, Float: math.Float64frombits(bits)})
			pos += 8
		case KindString:
			if pos+4 > len(data) {
				return nil, 0, fmt.Errorf("framebuf: truncated string length: %w", ErrMalformedFrame)
			}
			strLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if pos+strLen > len(data) {
				return nil, 0, fmt.Errorf("framebuf: truncated string value: %w", ErrMalformedFrame)
			}
			values = append(values, Value{Kind: KindString, Str: string(data[pos : pos+strLen])})
			pos += strLen
		default:
			return nil, 0, fmt.Errorf("framebuf: unknown value kind %d: %w", kind, ErrMalformedFrame)
		}
	}
	return values, pos, nil
}

// DecodeRows decodes all nrows records out of an opaque row payload,
// each holding numCols column values.
func DecodeRows(rows []byte, nrows, numCols int) ([][]Value, error) {
	out := make([][]Value, 0, nrows)
	pos := 0
	for r := 0; r < nrows; r++ {
		values, n, err := DecodeRowValues(rows[pos:], numCols)
		if err != nil {
			return nil, fmt.Errorf("framebuf: row %d: %w", r, err)
		}
		out = append(out, values)
		pos += n
	}
	return out, nil
}
