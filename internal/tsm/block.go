package tsm

import (
	"github.com/vnodedb/tskv/internal/encoding"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
)

// Handle is the offset and size of one block (or the index) within a TSM
// file.
type Handle struct {
	Offset uint64
	Size   uint64
}

func (h Handle) encode(dst []byte) []byte {
	dst = encoding.AppendVarint64(dst, h.Offset)
	dst = encoding.AppendVarint64(dst, h.Size)
	return dst
}

func decodeHandle(s *encoding.Slice) (Handle, bool) {
	off, ok := s.GetVarint64()
	if !ok {
		return Handle{}, false
	}
	size, ok := s.GetVarint64()
	if !ok {
		return Handle{}, false
	}
	return Handle{Offset: off, Size: size}, true
}

// BlockMeta describes one on-disk block: the field it belongs to, the time
// range and point count it covers, and where to find its bytes.
type BlockMeta struct {
	FieldID   ids.FieldId
	TimeRange tsrange.TimeRange
	Count     uint32
	Handle    Handle
}
