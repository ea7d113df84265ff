// Package encoding provides the binary encoding primitives used by the
// manifest (VersionEdit) and TSM layers: little-endian fixed-width
// integers, LEB128 varints, zigzag-encoded signed varints, and
// length-prefixed byte slices.
package encoding

import (
	"encoding/binary"
	"errors"
)

// MaxVarint64Length is the maximum number of bytes a varint64 can occupy.
const MaxVarint64Length = 10

var (
	// ErrVarintTermination is returned when a varint run off the end of the
	// buffer without a terminating byte.
	ErrVarintTermination = errors.New("encoding: varint not terminated")
)

// -----------------------------------------------------------------------------
// Fixed-width encoding (little-endian)
// -----------------------------------------------------------------------------

func EncodeFixed32(dst []byte, value uint32) { binary.LittleEndian.PutUint32(dst, value) }
func DecodeFixed32(src []byte) uint32        { return binary.LittleEndian.Uint32(src) }
func EncodeFixed64(dst []byte, value uint64) { binary.LittleEndian.PutUint64(dst, value) }
func DecodeFixed64(src []byte) uint64        { return binary.LittleEndian.Uint64(src) }

func AppendFixed32(dst []byte, value uint32) []byte {
	var b [4]byte
	EncodeFixed32(b[:], value)
	return append(dst, b[:]...)
}

func AppendFixed64(dst []byte, value uint64) []byte {
	var b [8]byte
	EncodeFixed64(b[:], value)
	return append(dst, b[:]...)
}

// -----------------------------------------------------------------------------
// Varint encoding (LEB128, unsigned)
// -----------------------------------------------------------------------------

// AppendVarint64 appends value's varint encoding to dst and returns dst.
func AppendVarint64(dst []byte, value uint64) []byte {
	var buf [MaxVarint64Length]byte
	n := binary.PutUvarint(buf[:], value)
	return append(dst, buf[:n]...)
}

// DecodeVarint64 decodes a varint64 from the front of src, returning the
// value and the number of bytes consumed.
func DecodeVarint64(src []byte) (value uint64, bytesRead int, err error) {
	v, n := binary.Uvarint(src)
	if n <= 0 {
		return 0, 0, ErrVarintTermination
	}
	return v, n, nil
}

func VarintLength(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// -----------------------------------------------------------------------------
// Zigzag-encoded signed varints, used for timestamps (which may be negative).
// -----------------------------------------------------------------------------

func I64ToZigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func ZigzagToI64(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

func AppendVarsignedint64(dst []byte, v int64) []byte {
	return AppendVarint64(dst, I64ToZigzag(v))
}

func DecodeVarsignedint64(src []byte) (value int64, bytesRead int, err error) {
	u, n, err := DecodeVarint64(src)
	if err != nil {
		return 0, 0, err
	}
	return ZigzagToI64(u), n, nil
}

// -----------------------------------------------------------------------------
// Length-prefixed byte slices
// -----------------------------------------------------------------------------

func AppendLengthPrefixedSlice(dst []byte, value []byte) []byte {
	dst = AppendVarint64(dst, uint64(len(value)))
	return append(dst, value...)
}

func DecodeLengthPrefixedSlice(src []byte) (value []byte, bytesRead int, err error) {
	n, hdr, err := DecodeVarint64(src)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(src)-hdr) < n {
		return nil, 0, ErrVarintTermination
	}
	return src[hdr : hdr+int(n)], hdr + int(n), nil
}

// -----------------------------------------------------------------------------
// Slice is a cursor over a byte buffer, used by VersionEdit and TSM index
// decoders to walk a record without manual offset bookkeeping.
// -----------------------------------------------------------------------------

type Slice struct {
	data []byte
}

func NewSlice(data []byte) *Slice { return &Slice{data: data} }

func (s *Slice) Remaining() int { return len(s.data) }
func (s *Slice) Data() []byte   { return s.data }
func (s *Slice) Advance(n int)  { s.data = s.data[n:] }

func (s *Slice) GetFixed32() (uint32, bool) {
	if len(s.data) < 4 {
		return 0, false
	}
	v := DecodeFixed32(s.data)
	s.data = s.data[4:]
	return v, true
}

func (s *Slice) GetFixed64() (uint64, bool) {
	if len(s.data) < 8 {
		return 0, false
	}
	v := DecodeFixed64(s.data)
	s.data = s.data[8:]
	return v, true
}

func (s *Slice) GetVarint64() (uint64, bool) {
	v, n, err := DecodeVarint64(s.data)
	if err != nil {
		return 0, false
	}
	s.data = s.data[n:]
	return v, true
}

func (s *Slice) GetVarsignedint64() (int64, bool) {
	u, ok := s.GetVarint64()
	if !ok {
		return 0, false
	}
	return ZigzagToI64(u), true
}

func (s *Slice) GetLengthPrefixedSlice() ([]byte, bool) {
	v, n, err := DecodeLengthPrefixedSlice(s.data)
	if err != nil {
		return nil, false
	}
	s.data = s.data[n:]
	return v, true
}

func (s *Slice) GetBytes(n int) ([]byte, bool) {
	if len(s.data) < n {
		return nil, false
	}
	v := s.data[:n]
	s.data = s.data[n:]
	return v, true
}
