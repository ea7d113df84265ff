// Package manifest implements VersionEdit: the additive/subtractive delta
// record that describes a change to a TSeriesFamily's Version. Edits are
// serialized to the summary log and replayed during recovery.
package manifest

import (
	"errors"

	"github.com/vnodedb/tskv/internal/encoding"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
)

var (
	ErrUnexpectedEndOfInput = errors.New("manifest: unexpected end of input")
	ErrUnknownRequiredTag   = errors.New("manifest: unknown required tag")
)

// CompactMeta describes one column file as it participates in an edit:
// either a file being added (by a flush or a compaction) or one being
// removed (superseded by a compaction, or dropped with its vnode).
type CompactMeta struct {
	FileID    ids.ColumnFileId
	Level     int
	FileSize  uint64
	TimeRange tsrange.TimeRange
	IsDelta   bool
	TsfID     ids.TseriesFamilyId
	HighSeq   uint64
	LowSeq    uint64
}

// VersionEdit is one durable unit of change to a TSeriesFamily's Version.
// A flush produces one edit adding a single file; a compaction produces one
// edit deleting its inputs and adding its outputs; dropping a vnode
// produces one edit marked DelVnode.
type VersionEdit struct {
	TsfID ids.TseriesFamilyId

	AddVnode    bool
	DelVnode    bool

	AddFiles []CompactMeta
	DelFiles []CompactMeta

	HasSeqNo bool
	SeqNo    uint64

	HasMaxLevelTS bool
	MaxLevelTS    int64
}

func NewVersionEdit(tsfID ids.TseriesFamilyId) *VersionEdit {
	return &VersionEdit{TsfID: tsfID}
}

func (ve *VersionEdit) AddFile(m CompactMeta) { ve.AddFiles = append(ve.AddFiles, m) }
func (ve *VersionEdit) DelFile(m CompactMeta) { ve.DelFiles = append(ve.DelFiles, m) }

func (ve *VersionEdit) SetSeqNo(seq uint64) {
	ve.SeqNo = seq
	ve.HasSeqNo = true
}

func (ve *VersionEdit) SetMaxLevelTS(ts int64) {
	ve.MaxLevelTS = ts
	ve.HasMaxLevelTS = true
}

// Encode serializes ve as a tag+varint record, appending to dst.
func (ve *VersionEdit) Encode(dst []byte) []byte {
	dst = encoding.AppendVarint64(dst, uint64(tagTsfID))
	dst = encoding.AppendVarint64(dst, uint64(ve.TsfID))

	if ve.AddVnode {
		dst = encoding.AppendVarint64(dst, uint64(tagAddVnode))
	}
	if ve.DelVnode {
		dst = encoding.AppendVarint64(dst, uint64(tagDelVnode))
	}
	for _, m := range ve.AddFiles {
		dst = encoding.AppendVarint64(dst, uint64(tagAddColumnFile))
		dst = encodeCompactMeta(dst, m)
	}
	for _, m := range ve.DelFiles {
		dst = encoding.AppendVarint64(dst, uint64(tagDelColumnFile))
		dst = encodeCompactMeta(dst, m)
	}
	if ve.HasSeqNo {
		dst = encoding.AppendVarint64(dst, uint64(tagSetSeqNo))
		dst = encoding.AppendVarint64(dst, ve.SeqNo)
	}
	if ve.HasMaxLevelTS {
		dst = encoding.AppendVarint64(dst, uint64(tagSetMaxLevelTS))
		dst = encoding.AppendVarsignedint64(dst, ve.MaxLevelTS)
	}
	return dst
}

func encodeCompactMeta(dst []byte, m CompactMeta) []byte {
	dst = encoding.AppendVarint64(dst, uint64(m.FileID))
	dst = encoding.AppendVarint64(dst, uint64(m.Level))
	dst = encoding.AppendVarint64(dst, m.FileSize)
	dst = encoding.AppendVarsignedint64(dst, m.TimeRange.MinTS)
	dst = encoding.AppendVarsignedint64(dst, m.TimeRange.MaxTS)
	isDelta := byte(0)
	if m.IsDelta {
		isDelta = 1
	}
	dst = append(dst, isDelta)
	dst = encoding.AppendVarint64(dst, uint64(m.TsfID))
	dst = encoding.AppendVarint64(dst, m.HighSeq)
	dst = encoding.AppendVarint64(dst, m.LowSeq)
	return dst
}

// Decode parses a VersionEdit record previously written by Encode.
func Decode(data []byte) (*VersionEdit, error) {
	ve := &VersionEdit{}
	s := encoding.NewSlice(data)

	for s.Remaining() > 0 {
		rawTag, ok := s.GetVarint64()
		if !ok {
			return nil, ErrUnexpectedEndOfInput
		}
		tag := Tag(rawTag)

		switch tag {
		case tagTsfID:
			v, ok := s.GetVarint64()
			if !ok {
				return nil, ErrUnexpectedEndOfInput
			}
			ve.TsfID = ids.TseriesFamilyId(v)

		case tagAddVnode:
			ve.AddVnode = true

		case tagDelVnode:
			ve.DelVnode = true

		case tagAddColumnFile:
			m, err := decodeCompactMeta(s)
			if err != nil {
				return nil, err
			}
			ve.AddFile(m)

		case tagDelColumnFile:
			m, err := decodeCompactMeta(s)
			if err != nil {
				return nil, err
			}
			ve.DelFile(m)

		case tagSetSeqNo:
			v, ok := s.GetVarint64()
			if !ok {
				return nil, ErrUnexpectedEndOfInput
			}
			ve.SetSeqNo(v)

		case tagSetMaxLevelTS:
			v, ok := s.GetVarsignedint64()
			if !ok {
				return nil, ErrUnexpectedEndOfInput
			}
			ve.SetMaxLevelTS(v)

		default:
			if !tag.IsSafeToIgnore() {
				return nil, ErrUnknownRequiredTag
			}
		}
	}
	return ve, nil
}

func decodeCompactMeta(s *encoding.Slice) (CompactMeta, error) {
	var m CompactMeta

	fileID, ok := s.GetVarint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.FileID = ids.ColumnFileId(fileID)

	level, ok := s.GetVarint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.Level = int(level)

	fileSize, ok := s.GetVarint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.FileSize = fileSize

	minTS, ok := s.GetVarsignedint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	maxTS, ok := s.GetVarsignedint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.TimeRange = tsrange.New(minTS, maxTS)

	isDelta, ok := s.GetBytes(1)
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.IsDelta = isDelta[0] != 0

	tsfID, ok := s.GetVarint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.TsfID = ids.TseriesFamilyId(tsfID)

	highSeq, ok := s.GetVarint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.HighSeq = highSeq

	lowSeq, ok := s.GetVarint64()
	if !ok {
		return m, ErrUnexpectedEndOfInput
	}
	m.LowSeq = lowSeq

	return m, nil
}
