// Package tsm implements the immutable columnar TSM file: per-field index
// entries, each referencing one or more time-ordered, compressed,
// checksummed data blocks.
package tsm

import (
	"github.com/vnodedb/tskv/internal/checksum"
	"github.com/vnodedb/tskv/internal/compression"
	"github.com/vnodedb/tskv/internal/encoding"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

// Writer streams blocks sequentially to a WritableFile and finishes the
// file with an index block plus footer, following a write-then-finish
// discipline: every block is appended as it's produced, and only the
// index/footer need the accumulated block metadata.
type Writer struct {
	file        vfs.WritableFile
	compression compression.Type

	offset uint64
	blocks map[ids.FieldId][]BlockMeta
}

// NewWriter creates a Writer over file, compressing every block it writes
// with compressionType.
func NewWriter(file vfs.WritableFile, compressionType compression.Type) *Writer {
	return &Writer{
		file:        file,
		compression: compressionType,
		blocks:      make(map[ids.FieldId][]BlockMeta),
	}
}

// WriteFieldBlock compresses and appends one block of points for fieldID.
// Points must already be sorted by Ts and share a single field; callers
// are responsible for grouping rows by field first (the flush job gathers
// every row of a cache by field and calls this once per field).
func (w *Writer) WriteFieldBlock(fieldID ids.FieldId, points []Point) (BlockMeta, error) {
	raw := encodePoints(points)
	compressed, err := compression.Compress(w.compression, raw)
	if err != nil {
		return BlockMeta{}, err
	}

	header := encoding.AppendFixed64(nil, uint64(fieldID))
	header = append(header, byte(w.compression))
	header = encoding.AppendVarint64(header, uint64(len(raw)))
	header = encoding.AppendVarint64(header, uint64(len(compressed)))
	sum := checksum.XXH3Block(compressed, byte(w.compression))
	header = encoding.AppendFixed32(header, sum)

	if err := w.file.Append(header); err != nil {
		return BlockMeta{}, err
	}
	if err := w.file.Append(compressed); err != nil {
		return BlockMeta{}, err
	}

	tr := tsrange.New(points[0].Ts, points[len(points)-1].Ts)
	meta := BlockMeta{
		FieldID:   fieldID,
		TimeRange: tr,
		Count:     uint32(len(points)),
		Handle:    Handle{Offset: w.offset, Size: uint64(len(header) + len(compressed))},
	}
	w.offset += meta.Handle.Size
	w.blocks[fieldID] = append(w.blocks[fieldID], meta)
	return meta, nil
}

// Finish writes the index block and footer, syncs the file, and returns
// the aggregate time range and block index. Empty writers (no blocks)
// still produce a valid, readable, empty file.
func (w *Writer) Finish() (tsrange.TimeRange, map[ids.FieldId][]BlockMeta, error) {
	indexPayload := encodeIndex(w.blocks)
	indexHandle := Handle{Offset: w.offset, Size: uint64(len(indexPayload))}
	if err := w.file.Append(indexPayload); err != nil {
		return tsrange.TimeRange{}, nil, err
	}
	w.offset += indexHandle.Size

	f := footer{IndexHandle: indexHandle, FormatVersion: formatVersion1}
	if err := w.file.Append(f.encode()); err != nil {
		return tsrange.TimeRange{}, nil, err
	}

	if err := w.file.Sync(); err != nil {
		return tsrange.TimeRange{}, nil, err
	}

	var ranges []tsrange.TimeRange
	for _, metas := range w.blocks {
		for _, m := range metas {
			ranges = append(ranges, m.TimeRange)
		}
	}
	return tsrange.MergeAll(ranges), w.blocks, nil
}
