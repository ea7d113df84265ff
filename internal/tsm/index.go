package tsm

import (
	"errors"

	"github.com/vnodedb/tskv/internal/encoding"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
)

// ErrCorruptIndex is returned when the index block does not parse.
var ErrCorruptIndex = errors.New("tsm: corrupt index")

// encodeIndex serializes the per-field block list: field count, then per
// field its id, block count, and each block's time range/count/handle, in
// a fixed shape with no optional fields, so no tag byte is needed.
func encodeIndex(blocks map[ids.FieldId][]BlockMeta) []byte {
	buf := encoding.AppendVarint64(nil, uint64(len(blocks)))
	for fieldID, metas := range blocks {
		buf = encoding.AppendFixed64(buf, uint64(fieldID))
		buf = encoding.AppendVarint64(buf, uint64(len(metas)))
		for _, m := range metas {
			buf = encoding.AppendVarsignedint64(buf, m.TimeRange.MinTS)
			buf = encoding.AppendVarsignedint64(buf, m.TimeRange.MaxTS)
			buf = encoding.AppendVarint64(buf, uint64(m.Count))
			buf = m.Handle.encode(buf)
		}
	}
	return buf
}

func decodeIndex(data []byte) (map[ids.FieldId][]BlockMeta, error) {
	s := encoding.NewSlice(data)
	fieldCount, ok := s.GetVarint64()
	if !ok {
		return nil, ErrCorruptIndex
	}
	out := make(map[ids.FieldId][]BlockMeta, fieldCount)
	for i := uint64(0); i < fieldCount; i++ {
		fieldIDRaw, ok := s.GetFixed64()
		if !ok {
			return nil, ErrCorruptIndex
		}
		fieldID := ids.FieldId(fieldIDRaw)
		blockCount, ok := s.GetVarint64()
		if !ok {
			return nil, ErrCorruptIndex
		}
		metas := make([]BlockMeta, 0, blockCount)
		for j := uint64(0); j < blockCount; j++ {
			minTS, ok := s.GetVarsignedint64()
			if !ok {
				return nil, ErrCorruptIndex
			}
			maxTS, ok := s.GetVarsignedint64()
			if !ok {
				return nil, ErrCorruptIndex
			}
			count, ok := s.GetVarint64()
			if !ok {
				return nil, ErrCorruptIndex
			}
			handle, ok := decodeHandle(s)
			if !ok {
				return nil, ErrCorruptIndex
			}
			metas = append(metas, BlockMeta{
				FieldID:   fieldID,
				TimeRange: tsrange.New(minTS, maxTS),
				Count:     uint32(count),
				Handle:    handle,
			})
		}
		out[fieldID] = metas
	}
	return out, nil
}
