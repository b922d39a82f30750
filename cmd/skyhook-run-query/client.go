package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/uccross/skyhookdb-ceph/internal/framebuf"
	"github.com/uccross/skyhookdb-ceph/internal/querylang"
	"github.com/uccross/skyhookdb-ceph/internal/rowcodec"
	"github.com/uccross/skyhookdb-ceph/internal/storage"
	"github.com/uccross/skyhookdb-ceph/internal/tableschema"
)

// openClient picks a storage.Client for pool. A pool spelled as an
// http(s):// URL is a byte-range gateway; anything else is a RADOS
// pool name, and since the native pool-connection library is out of
// scope here (spec §1), the CLI stands up an in-memory store seeded
// with deterministic synthetic lineitem data instead of refusing to
// run at all.
func openClient(pool string, numObjs int, tag querylang.Tag) (storage.Client, error) {
	if strings.HasPrefix(pool, "http://") || strings.HasPrefix(pool, "https://") {
		return storage.NewHTTPStore(pool), nil
	}

	store := storage.NewMemStore()
	for i := 0; i < numObjs; i++ {
		oid := fmt.Sprintf("obj.%d", i)
		if tag == querylang.TagStructured {
			store.PutObject(oid, syntheticFramedObject(i))
		} else {
			store.PutObject(oid, syntheticRawObject(i))
		}
	}
	return store, nil
}

// syntheticRawObject builds ten fixed-width lineitem rows, one
// row index per object offset by i so --dir rnd/bwd runs still see
// varied data, with a single "interesting" row (extended_price=100,
// discount=0.08, comment containing "URGENT") among otherwise-uniform
// rows, mirroring the scenario shapes spec §8 walks through.
func syntheticRawObject(i int) []byte {
	var raw []byte
	for row := 0; row < 10; row++ {
		price, discount, comment := 50.0, 0.02, "ordinary packages"
		if row == 3 {
			price, discount, comment = 100.0, 0.08, "URGENT shipment request"
		}
		raw = append(raw, encodeFullRow(int32(100+i), int32(row), 10, price, discount, 19950101+int32(row), comment)...)
	}
	return raw
}

func encodeFullRow(orderKey, lineNumber int32, quantity, extendedPrice, discount float64, shipDate int32, comment string) []byte {
	row := make([]byte, rowcodec.FullLayout.Stride)
	binary.LittleEndian.PutUint32(row[rowcodec.FullLayout.OrderKeyOffset:], uint32(orderKey))
	binary.LittleEndian.PutUint32(row[rowcodec.FullLayout.LineNumberOffset:], uint32(lineNumber))
	binary.LittleEndian.PutUint64(row[rowcodec.FullLayout.QuantityOffset:], math.Float64bits(quantity))
	binary.LittleEndian.PutUint64(row[rowcodec.FullLayout.ExtendedPriceOffset:], math.Float64bits(extendedPrice))
	binary.LittleEndian.PutUint64(row[rowcodec.FullLayout.DiscountOffset:], math.Float64bits(discount))
	binary.LittleEndian.PutUint32(row[rowcodec.FullLayout.ShipDateOffset:], uint32(shipDate))
	copy(row[rowcodec.FullLayout.CommentOffset:rowcodec.FullLayout.CommentOffset+rowcodec.FullLayout.CommentLen], comment)
	return row
}

// syntheticFramedObject builds a three-frame Structured payload over
// tableschema.LineitemSchema, with 4, 2, and 3 rows per frame — the
// same frame shape spec §8 scenario 4 exercises.
func syntheticFramedObject(i int) []byte {
	var stream [][]byte
	for _, n := range []int{4, 2, 3} {
		var rows []byte
		for r := 0; r < n; r++ {
			rows = append(rows, framebuf.EncodeRowValues([]framebuf.Value{
				{Kind: framebuf.KindInt, Int: int64(100 + i)},
				{Kind: framebuf.KindInt, Int: int64(r)},
				{Kind: framebuf.KindFloat, Float: 10},
				{Kind: framebuf.KindFloat, Float: 50 + float64(r)},
				{Kind: framebuf.KindFloat, Float: 0.02},
				{Kind: framebuf.KindInt, Int: 19950101},
				{Kind: framebuf.KindString, Str: "synthetic"},
			})...)
		}
		stream = append(stream, framebuf.EncodeFrame(framebuf.Header{NRows: uint32(n), SchemaTag: tableschema.Serialize(tableschema.LineitemSchema)}, rows))
	}
	return framebuf.EncodeStream(stream)
}
