package wire

import "encoding/binary"

// EncodeBuildIndexRequest serializes the one parameter the build_index
// exec method takes: how many rows the server should batch into each
// index write.
func EncodeBuildIndexRequest(batchSize int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(batchSize))
	return buf
}
