package checksum

import "github.com/zeebo/xxh3"

// XXH3_64 hashes data with XXH3-64. Used by the bloom filter to hash
// FieldId keys and by the TSM writer to checksum compressed blocks.
func XXH3_64(data []byte) uint64 {
	return xxh3.Hash(data)
}

// XXH3Block computes a 32-bit block checksum over data plus a trailing
// compression-type byte, so the type byte a TSM block header stores ahead
// of the payload is covered by the checksum too.
func XXH3Block(data []byte, compressionType byte) uint32 {
	h := xxh3.New()
	_, _ = h.Write(data)
	_, _ = h.Write([]byte{compressionType})
	return uint32(h.Sum64())
}
