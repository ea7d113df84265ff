// Package summary implements the append-only VersionEdit log ("summary
// log") used to durably record every change to a TSeriesFamily's Version
// and to recover that Version by replaying the log. This is distinct from
// the (out of scope) data write-ahead log: the summary log never records
// row data, only VersionEdits.
package summary

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/vnodedb/tskv/internal/checksum"
	"github.com/vnodedb/tskv/internal/encoding"
	tskverrors "github.com/vnodedb/tskv/internal/errors"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/vfs"
	"github.com/vnodedb/tskv/internal/version"
)

// ErrCorruptRecord is returned when a summary record is truncated or its
// checksum does not match its payload. Unlike a data WAL, summary log corruption is always
// fatal — metadata can't be trusted once a checksum fails. It wraps the
// shared errors.ErrIndexCorrupt sentinel, so callers across the module can
// check for any on-disk corruption with one errors.Is, regardless of which
// package detected it.
var ErrCorruptRecord = fmt.Errorf("summary: corrupt record: %w", tskverrors.ErrIndexCorrupt)

// Writer appends VersionEdits to a summary log file.
type Writer struct {
	fs   vfs.FS
	path string
}

// NewWriter returns a Writer appending to path, which is created if it
// does not already exist.
func NewWriter(fs vfs.FS, path string) *Writer {
	return &Writer{fs: fs, path: path}
}

// Append encodes edit as one record (masked CRC32C, varint length, then
// payload) and appends it, syncing before returning.
func (w *Writer) Append(edit *manifest.VersionEdit) error {
	if err := w.fs.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return err
	}
	f, err := w.fs.OpenAppend(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	payload := edit.Encode(nil)
	record := encoding.AppendFixed32(nil, checksum.MaskedValue(payload))
	record = encoding.AppendVarint64(record, uint64(len(payload)))
	record = append(record, payload...)

	if err := f.Append(record); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAll replays every record in path, returning the decoded edits in
// append order. A missing file yields no edits and no error — a
// TSeriesFamily's first run has nothing to replay yet.
func ReadAll(fs vfs.FS, path string) ([]*manifest.VersionEdit, error) {
	if !fs.Exists(path) {
		return nil, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := readAll(f)
	if err != nil {
		return nil, err
	}

	s := encoding.NewSlice(data)
	var edits []*manifest.VersionEdit
	for s.Remaining() > 0 {
		wantSum, ok := s.GetFixed32()
		if !ok {
			return nil, ErrCorruptRecord
		}
		length, ok := s.GetVarint64()
		if !ok {
			return nil, ErrCorruptRecord
		}
		payload, ok := s.GetBytes(int(length))
		if !ok {
			return nil, ErrCorruptRecord
		}
		if checksum.MaskedValue(payload) != wantSum {
			return nil, ErrCorruptRecord
		}
		edit, err := manifest.Decode(payload)
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit)
	}
	return edits, nil
}

func readAll(f vfs.SequentialFile) ([]byte, error) {
	var out []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// Recover replays every edit in path through a fresh Builder and
// materializes the resulting Version, along with the SeqNo of the last
// edit that carried one. A vnode with no summary log yet recovers to an empty
// Version at versionNumber.
func Recover(fs vfs.FS, path string, tsfID ids.TseriesFamilyId, storageRoot, database string, versionNumber uint64) (*version.Version, uint64, error) {
	edits, err := ReadAll(fs, path)
	if err != nil {
		return nil, 0, err
	}

	b := version.NewBuilder(nil, storageRoot, database, fs)
	for _, e := range edits {
		b.Apply(e)
	}

	v := b.SaveTo(tsfID, versionNumber)
	return v, v.LastSeq, nil
}
