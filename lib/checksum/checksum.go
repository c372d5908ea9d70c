package checksum

import (
	"crypto/sha256"
	"encoding/binary"
)

// CalculateCheckSum returns the first four bytes of the SHA-256 digest of
// data as an int. Used as a frame integrity check on the wire and as a
// cache key for chunk payloads.
func CalculateCheckSum(data []byte) int {
	digest := sha256.Sum256(data)
	return int(binary.BigEndian.Uint32(digest[:4]))
}
