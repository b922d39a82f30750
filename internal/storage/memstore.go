package storage

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"sync"

	"github.com/golang/snappy"

	"github.com/uccross/skyhookdb-ceph/internal/framebuf"
	"github.com/uccross/skyhookdb-ceph/internal/index"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/rowcodec"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
	"github.com/uccross/skyhookdb-ceph/internal/wire"
)

// MemStore is an in-memory storage-cluster fake. It holds each
// target's raw bytes and, on AioExec, decodes and answers a query_op
// itself: the wire contract's server side, standing in for a real
// pushdown-capable object store so the dispatcher/worker pipeline has
// something to exercise end to end without a cluster.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	indexes map[string]*index.RowBitmap
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		indexes: make(map[string]*index.RowBitmap),
	}
}

// PutObject seeds oid with raw bytes — either a concatenation of
// fixed-width rows, or a framed-buffer stream for Structured queries.
func (m *MemStore) PutObject(oid string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[oid] = data
}

// AioRead returns oid's full byte contents, unfiltered — the
// non-pushdown path.
func (m *MemStore) AioRead(oid string, completion Completion) {
	go func() {
		m.mu.RLock()
		data, ok := m.objects[oid]
		m.mu.RUnlock()
		if !ok {
			completion(nil, fmt.Errorf("storage: unknown object %q: %w", oid, ErrStorageFailed))
			return
		}
		completion(append([]byte{}, data...), nil)
	}()
}

// AioExec invokes method against oid.
func (m *MemStore) AioExec(oid, method string, in []byte, completion Completion) {
	go func() {
		switch method {
		case MethodQueryOp:
			data, err := m.execQueryOp(oid, in)
			completion(data, err)
		case MethodBuildIndex:
			data, err := m.execBuildIndex(oid)
			completion(data, err)
		case MethodTestPar:
			completion(nil, nil)
		default:
			completion(nil, fmt.Errorf("storage: unknown exec method %q: %w", method, ErrStorageFailed))
		}
	}()
}

func (m *MemStore) object(oid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[oid]
	if !ok {
		return nil, fmt.Errorf("storage: unknown object %q: %w", oid, ErrStorageFailed)
	}
	return data, nil
}

func (m *MemStore) execQueryOp(oid string, in []byte) ([]byte, error) {
	q, mod, err := wire.DecodeQueryOp(in)
	if err != nil {
		return nil, err
	}
	raw, err := m.object(oid)
	if err != nil {
		return nil, err
	}

	if q.Tag == querylang.TagStructured {
		return m.execStructured(raw, q, mod)
	}
	return m.execRawRow(raw, q, mod)
}

func (m *MemStore) execRawRow(raw []byte, q querylang.Query, mod querylang.Modifiers) ([]byte, error) {
	blob := rowcodec.New(rowcodec.FullLayout, raw)
	nrows := blob.NumRows()

	if q.Tag == querylang.TagCountGreater {
		var count uint64
		for i := 0; i < nrows; i++ {
			if blob.Row(i).ExtendedPrice() > q.ExtendedPrice {
				count++
			}
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], count)
		return compressedResponse(uint64(nrows), buf[:]), nil
	}

	var re *regexp.Regexp
	if q.Tag == querylang.TagSelectRegex {
		compiled, err := regexp.Compile(q.CommentRegex)
		if err != nil {
			return nil, fmt.Errorf("storage: bad comment regex %q: %w", q.CommentRegex, err)
		}
		re = compiled
	}

	var out []byte
	for i := 0; i < nrows; i++ {
		row := blob.Row(i)
		if !matchesRow(row, q, re) {
			continue
		}
		if mod.Projection {
			out = append(out, projectRow(row)...)
		} else {
			out = append(out, row.Bytes()...)
		}
	}
	return compressedResponse(uint64(nrows), out), nil
}

// compressedResponse builds a pushdown-exec response by snappy-compressing
// the suffix and marking the prefix's Compressed flag, mirroring the
// compression the query_op request side already applies.
func compressedResponse(nrows uint64, suffix []byte) []byte {
	prefix := wire.EncodePrefix(wire.ResponsePrefix{NRowsServerProcessed: nrows, Compressed: true})
	return append(prefix, snappy.Encode(nil, suffix)...)
}

func matchesRow(row rowcodec.RowView, q querylang.Query, re *regexp.Regexp) bool {
	switch q.Tag {
	case querylang.TagSelectGreater:
		return row.ExtendedPrice() > q.ExtendedPrice
	case querylang.TagSelectEqual:
		return row.ExtendedPrice() == q.ExtendedPrice
	case querylang.TagSelectByKey:
		return row.OrderKey() == q.OrderKey && row.LineNumber() == q.LineNumber
	case querylang.TagSelectRange:
		shipDate := row.ShipDate()
		if shipDate < q.ShipDateLow || shipDate >= q.ShipDateHigh {
			return false
		}
		discount := row.Discount()
		if discount <= q.DiscountLow || discount >= q.DiscountHigh {
			return false
		}
		return row.Quantity() < q.Quantity
	case querylang.TagSelectRegex:
		return re != nil && re.MatchString(row.Comment())
	case querylang.TagSelectAll:
		return true
	default:
		return false
	}
}

func projectRow(row rowcodec.RowView) []byte {
	buf := make([]byte, rowcodec.ProjectedLayout.Stride)
	binary.LittleEndian.PutUint32(buf[rowcodec.ProjectedLayout.OrderKeyOffset:], uint32(row.OrderKey()))
	binary.LittleEndian.PutUint32(buf[rowcodec.ProjectedLayout.LineNumberOffset:], uint32(row.LineNumber()))
	return buf
}

func (m *MemStore) execStructured(raw []byte, q querylang.Query, mod querylang.Modifiers) ([]byte, error) {
	cur := framebuf.NewCursor(raw)
	var nrows uint64
	var frames [][]byte

	tableSchema, err := tableschema.Parse(q.TableSchemaStr)
	if err != nil {
		return nil, fmt.Errorf("storage: parse table schema: %w", err)
	}
	querySchema, err := tableschema.Parse(q.QuerySchemaStr)
	if err != nil {
		return nil, fmt.Errorf("storage: parse query schema: %w", err)
	}

	for cur.Remaining() {
		frame, ok, err := cur.Next()
		if err != nil {
			return nil, fmt.Errorf("storage: decode structured object: %w", err)
		}
		if !ok {
			break
		}
		nrows += uint64(frame.Header.NRows)

		if !mod.Projection {
			frames = append(frames, framebuf.EncodeFrame(frame.Header, frame.Rows))
			continue
		}

		transformed, err := transformFrame(frame, tableSchema, querySchema)
		if err != nil {
			return nil, fmt.Errorf("storage: server-side project: %w", err)
		}
		frames = append(frames, framebuf.EncodeFrame(transformed.Header, transformed.Rows))
	}

	suffix := wire.EncodeStructuredSuffix(framebuf.EncodeStream(frames))
	return compressedResponse(nrows, suffix), nil
}

func transformFrame(frame framebuf.Frame, tableSchema, querySchema tableschema.Schema) (framebuf.Frame, error) {
	rows, err := framebuf.DecodeRows(frame.Rows, int(frame.Header.NRows), len(tableSchema))
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
				return framebuf.Frame{}, fmt.Errorf("storage: projected column %q not in table schema", col.Name)
			}
			projected[i] = row[srcIdx]
		}
		out = append(out, framebuf.EncodeRowValues(projected)...)
	}
	return framebuf.Frame{Header: frame.Header, Rows: out}, nil
}

// execBuildIndex constructs a trivial identity row-position index over
// oid and stores it, mirroring the build-index batch worker's
// per-object unit of work.
func (m *MemStore) execBuildIndex(oid string) ([]byte, error) {
	raw, err := m.object(oid)
	if err != nil {
		return nil, err
	}
	blob := rowcodec.New(rowcodec.FullLayout, raw)
	positions := make([]uint32, blob.NumRows())
	for i := range positions {
		positions[i] = uint32(i)
	}
	encoded := index.EncodeRowBitmap(positions)

	rb, err := index.DecodeRowBitmap(encoded)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.indexes[oid] = rb
	m.mu.Unlock()

	return encoded, nil
}
