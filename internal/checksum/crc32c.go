// Package checksum provides the checksum algorithms used by the summary
// log and the TSM block format: CRC32C (Castagnoli) with masking for
// records that embed their own checksum, and XXH3-64 for bloom filter
// hashing and TSM block integrity.
package checksum

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// maskDelta rotates a raw CRC before storing it, so that a record
// containing another record's CRC bytes does not corrupt its own checksum
// computation.
const maskDelta = 0xa282ead8

// Value computes the CRC32C checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// Extend computes the CRC32C of concat(A, data) where initCRC is the CRC32C
// of A.
func Extend(initCRC uint32, data []byte) uint32 {
	return crc32.Update(initCRC, crc32cTable, data)
}

// Mask returns the masked representation of crc, safe to embed in the data
// it was computed over.
func Mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Unmask inverts Mask.
func Unmask(maskedCRC uint32) uint32 {
	rot := maskedCRC - maskDelta
	return (rot >> 17) | (rot << 15)
}

// MaskedValue computes the CRC32C and masks it in one call, used by the
// summary log's record framing.
func MaskedValue(data []byte) uint32 {
	return Mask(Value(data))
}
