// Package wire serializes the query_op sent to aio_exec and decodes the
// {read_ns, eval_ns, nrows_server_processed} prefix every pushdown-exec
// response carries.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/golang/snappy"

	"github.com/uccross/skyhookdb-ceph/internal/querylang"
)

func putUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putFloat64(buf *bytes.Buffer, v float64) {
	putUint64(buf, math.Float64bits(v))
}

func putString(buf *bytes.Buffer, s string) {
	putUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readFloat64(r *bytes.Reader) (float64, error) {
	bits, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// EncodeQueryOp serializes every scalar predicate parameter, the query
// tag, both schema strings, and the modifier flags, then snappy-
// compresses the result — the input to aio_exec's "query_op" method.
func EncodeQueryOp(q querylang.Query, m querylang.Modifiers) []byte {
	var buf bytes.Buffer

	putString(&buf, string(q.Tag))
	putFloat64(&buf, q.ExtendedPrice)
	putUint32(&buf, uint32(q.OrderKey))
	putUint32(&buf, uint32(q.LineNumber))
	putUint32(&buf, uint32(q.ShipDateLow))
	putUint32(&buf, uint32(q.ShipDateHigh))
	putFloat64(&buf, q.DiscountLow)
	putFloat64(&buf, q.DiscountHigh)
	putFloat64(&buf, q.Quantity)
	putString(&buf, q.CommentRegex)
	putString(&buf, q.TableSchemaStr)
	putString(&buf, q.QuerySchemaStr)
	putBool(&buf, q.Fastpath)

	putBool(&buf, m.UseIndex)
	putBool(&buf, m.Projection)
	putUint64(&buf, m.ExtraRowCost)

	return snappy.Encode(nil, buf.Bytes())
}

// DecodeQueryOp is the inverse of EncodeQueryOp. It exists so an
// in-memory storage fake can behave like the real pushdown collaborator
// for end-to-end tests of the dispatcher and worker pool.
func DecodeQueryOp(compressed []byte) (querylang.Query, querylang.Modifiers, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return querylang.Query{}, querylang.Modifiers{}, fmt.Errorf("wire: decompress query_op: %w", err)
	}

	r := bytes.NewReader(raw)
	var q querylang.Query
	var m querylang.Modifiers

	tag, err := readString(r)
	if err != nil {
		return q, m, fmt.Errorf("wire: decode query_op tag: %w", err)
	}
	q.Tag = querylang.Tag(tag)

	if q.ExtendedPrice, err = readFloat64(r); err != nil {
		return q, m, err
	}
	orderKey, err := readUint32(r)
	if err != nil {
		return q, m, err
	}
	q.OrderKey = int32(orderKey)
	lineNumber, err := readUint32(r)
	if err != nil {
		return q, m, err
	}
	q.LineNumber = int32(lineNumber)
	shipLow, err := readUint32(r)
	if err != nil {
		return q, m, err
	}
	q.ShipDateLow = int32(shipLow)
	shipHigh, err := readUint32(r)
	if err != nil {
		return q, m, err
	}
	q.ShipDateHigh = int32(shipHigh)
	if q.DiscountLow, err = readFloat64(r); err != nil {
		return q, m, err
	}
	if q.DiscountHigh, err = readFloat64(r); err != nil {
		return q, m, err
	}
	if q.Quantity, err = readFloat64(r); err != nil {
		return q, m, err
	}
	if q.CommentRegex, err = readString(r); err != nil {
		return q, m, err
	}
	if q.TableSchemaStr, err = readString(r); err != nil {
		return q, m, err
	}
	if q.QuerySchemaStr, err = readString(r); err != nil {
		return q, m, err
	}
	if q.Fastpath, err = readBool(r); err != nil {
		return q, m, err
	}
	if m.UseIndex, err = readBool(r); err != nil {
		return q, m, err
	}
	if m.Projection, err = readBool(r); err != nil {
		return q, m, err
	}
	if m.ExtraRowCost, err = readUint64(r); err != nil {
		return q, m, err
	}
	// UseServerSide is implicit: decoding a query_op at all means the
	// storage side is running in pushdown mode.
	m.UseServerSide = true

	return q, m, nil
}
