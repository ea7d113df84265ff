package tsm

import (
	"github.com/vnodedb/tskv/internal/checksum"
	"github.com/vnodedb/tskv/internal/compression"
	"github.com/vnodedb/tskv/internal/encoding"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

// Reader opens a TSM file's footer and index once, then serves per-field,
// time-range-restricted block reads against the backing RandomAccessFile.
type Reader struct {
	file  vfs.RandomAccessFile
	index map[ids.FieldId][]BlockMeta
}

// Open parses f's footer and index block. f is retained for subsequent
// ReadBlock calls; the caller owns closing it.
func Open(f vfs.RandomAccessFile) (*Reader, error) {
	size := f.Size()
	if size < footerEncodedLength {
		return nil, ErrBadFooter
	}

	tail := make([]byte, footerEncodedLength)
	if _, err := f.ReadAt(tail, size-footerEncodedLength); err != nil {
		return nil, err
	}
	ft, err := decodeFooter(tail)
	if err != nil {
		return nil, err
	}

	indexBuf := make([]byte, ft.IndexHandle.Size)
	if ft.IndexHandle.Size > 0 {
		if _, err := f.ReadAt(indexBuf, int64(ft.IndexHandle.Offset)); err != nil {
			return nil, err
		}
	}
	index, err := decodeIndex(indexBuf)
	if err != nil {
		return nil, err
	}

	return &Reader{file: f, index: index}, nil
}

// BlocksForField returns every block for fieldID whose time range overlaps
// tr, restricting iteration to that range instead of scanning every block
// the field has.
func (r *Reader) BlocksForField(fieldID ids.FieldId, tr tsrange.TimeRange) []BlockMeta {
	var out []BlockMeta
	for _, m := range r.index[fieldID] {
		if m.TimeRange.Overlaps(tr) {
			out = append(out, m)
		}
	}
	return out
}

// FieldIDs returns every field present in the file's index.
func (r *Reader) FieldIDs() []ids.FieldId {
	out := make([]ids.FieldId, 0, len(r.index))
	for f := range r.index {
		out = append(out, f)
	}
	return out
}

// ReadBlock reads, decompresses, checksum-verifies, and decodes the points
// named by m.
func (r *Reader) ReadBlock(m BlockMeta) ([]Point, error) {
	buf := make([]byte, m.Handle.Size)
	if _, err := r.file.ReadAt(buf, int64(m.Handle.Offset)); err != nil {
		return nil, err
	}

	s := encoding.NewSlice(buf)
	fieldIDRaw, ok := s.GetFixed64()
	if !ok {
		return nil, ErrCorruptBlock
	}
	if ids.FieldId(fieldIDRaw) != m.FieldID {
		return nil, ErrCorruptBlock
	}
	compByte, ok := s.GetBytes(1)
	if !ok {
		return nil, ErrCorruptBlock
	}
	compType := compression.Type(compByte[0])
	rawSize, ok := s.GetVarint64()
	if !ok {
		return nil, ErrCorruptBlock
	}
	payloadSize, ok := s.GetVarint64()
	if !ok {
		return nil, ErrCorruptBlock
	}
	wantSum, ok := s.GetFixed32()
	if !ok {
		return nil, ErrCorruptBlock
	}
	payload, ok := s.GetBytes(int(payloadSize))
	if !ok {
		return nil, ErrCorruptBlock
	}

	if checksum.XXH3Block(payload, byte(compType)) != wantSum {
		return nil, ErrCorruptBlock
	}

	raw, err := compression.Decompress(compType, payload, int(rawSize))
	if err != nil {
		return nil, err
	}
	return decodePoints(raw)
}

// ReadRange reads every point for fieldID across every block overlapping
// tr, filtering out points outside tr (a block's range is a superset of
// the query range at its boundary blocks).
func (r *Reader) ReadRange(fieldID ids.FieldId, tr tsrange.TimeRange) ([]Point, error) {
	var out []Point
	for _, m := range r.BlocksForField(fieldID, tr) {
		points, err := r.ReadBlock(m)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if tr.Contains(p.Ts) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// Close closes the backing file.
func (r *Reader) Close() error {
	return r.file.Close()
}
