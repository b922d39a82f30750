package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// ResponsePrefix is the {read_ns, eval_ns, nrows_server_processed,
// flags} header every pushdown-exec response carries ahead of its
// payload. Compressed marks that the payload following the prefix was
// snappy-compressed by the storage side before being sent back.
type ResponsePrefix struct {
	ReadNs               uint64
	EvalNs               uint64
	NRowsServerProcessed uint64
	Compressed           bool
}

const (
	responsePrefixSize = 25

	flagCompressed byte = 1 << 0
)

// EncodePrefix serializes a ResponsePrefix.
func EncodePrefix(p ResponsePrefix) []byte {
	buf := make([]byte, responsePrefixSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.ReadNs)
	binary.LittleEndian.PutUint64(buf[8:16], p.EvalNs)
	binary.LittleEndian.PutUint64(buf[16:24], p.NRowsServerProcessed)
	if p.Compressed {
		buf[24] = flagCompressed
	}
	return buf
}

// DecodePrefix parses the prefix from the start of a pushdown-exec
// response and returns it along with the remaining suffix bytes,
// snappy-decompressed first if the prefix's compressed flag is set.
func DecodePrefix(data []byte) (ResponsePrefix, []byte, error) {
	if len(data) < responsePrefixSize {
		return ResponsePrefix{}, nil, fmt.Errorf("wire: response shorter than prefix (%d bytes): %w", len(data), io.ErrUnexpectedEOF)
	}
	p := ResponsePrefix{
		ReadNs:               binary.LittleEndian.Uint64(data[0:8]),
		EvalNs:               binary.LittleEndian.Uint64(data[8:16]),
		NRowsServerProcessed: binary.LittleEndian.Uint64(data[16:24]),
		Compressed:           data[24]&flagCompressed != 0,
	}
	suffix := data[responsePrefixSize:]
	if !p.Compressed {
		return p, suffix, nil
	}
	decoded, err := snappy.Decode(nil, suffix)
	if err != nil {
		return ResponsePrefix{}, nil, fmt.Errorf("wire: decompress response suffix: %w", err)
	}
	return p, decoded, nil
}

// EncodeStructuredSuffix wraps an already-built framed-buffer stream
// (itself a concatenation of length-prefixed SDBs) in the outer
// length-prefixed byte range the Structured response suffix uses.
func EncodeStructuredSuffix(framedStream []byte) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(framedStream)))
	buf.Write(tmp[:])
	buf.Write(framedStream)
	return buf.Bytes()
}

// DecodeStructuredSuffix is the inverse of EncodeStructuredSuffix.
func DecodeStructuredSuffix(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("wire: structured suffix shorter than length prefix: %w", io.ErrUnexpectedEOF)
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	if 4+n > len(data) {
		return nil, fmt.Errorf("wire: structured suffix of length %d overruns response (%d bytes)", n, len(data)-4)
	}
	return data[4 : 4+n], nil
}
