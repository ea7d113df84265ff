// Package tombstone implements the per-file companion tombstone log: an
// append-only list of (field id set, time range) deletions applied at read
// time against the column file living alongside it.
package tombstone

import (
	"errors"
	"io"
	"sync"

	"github.com/vnodedb/tskv/internal/encoding"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

// ErrCorruptEntry is returned when the tombstone log does not parse.
var ErrCorruptEntry = errors.New("tombstone: corrupt entry")

// Entry is a single deletion: the fields in FieldIDs are deleted over
// TimeRange.
type Entry struct {
	FieldIDs  []ids.FieldId
	TimeRange tsrange.TimeRange
}

// Covers reports whether fieldID at timestamp ts is deleted by this entry.
func (e Entry) Covers(fieldID ids.FieldId, ts int64) bool {
	if !e.TimeRange.Contains(ts) {
		return false
	}
	for _, f := range e.FieldIDs {
		if f == fieldID {
			return true
		}
	}
	return false
}

// Log is the in-memory view of a tombstone file: the entries already on
// disk, guarded against concurrent appends by a per-file lock (the
// invariant is at-most-one writer per tombstone).
type Log struct {
	fs   vfs.FS
	path string

	mu      sync.RWMutex
	entries []Entry
}

// Open loads path's existing entries, if any, into a Log. A missing file
// is treated as an empty log.
func Open(fs vfs.FS, path string) (*Log, error) {
	l := &Log{fs: fs, path: path}
	if !fs.Exists(path) {
		return l, nil
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
	entries, err := decodeEntries(data)
	if err != nil {
		return nil, err
	}
	l.entries = entries
	return l, nil
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

// Add appends a deletion entry, persists it, and makes it visible to
// subsequent reads. Concurrency: Add acquires an exclusive per-file lock
// for the duration of the append so at most one writer touches the
// tombstone file at a time.
func (l *Log) Add(fieldIDs []ids.FieldId, tr tsrange.TimeRange) error {
	lock, err := l.fs.Lock(l.path + ".lock")
	if err != nil {
		return err
	}
	defer lock.Close()

	w, err := l.fs.OpenAppend(l.path)
	if err != nil {
		return err
	}
	defer w.Close()

	entry := Entry{FieldIDs: append([]ids.FieldId(nil), fieldIDs...), TimeRange: tr}
	if err := w.Append(encodeEntry(entry)); err != nil {
		return err
	}
	if err := w.Sync(); err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return nil
}

// Entries returns a snapshot of every entry appended so far.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Covers reports whether fieldID at timestamp ts is deleted by any entry
// in the log.
func (l *Log) Covers(fieldID ids.FieldId, ts int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.Covers(fieldID, ts) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the log has no entries.
func (l *Log) IsEmpty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries) == 0
}

func encodeEntry(e Entry) []byte {
	buf := encoding.AppendVarint64(nil, uint64(len(e.FieldIDs)))
	for _, f := range e.FieldIDs {
		buf = encoding.AppendFixed64(buf, uint64(f))
	}
	buf = encoding.AppendVarsignedint64(buf, e.TimeRange.MinTS)
	buf = encoding.AppendVarsignedint64(buf, e.TimeRange.MaxTS)
	length := encoding.AppendVarint64(nil, uint64(len(buf)))
	return append(length, buf...)
}

func decodeEntries(data []byte) ([]Entry, error) {
	s := encoding.NewSlice(data)
	var entries []Entry
	for {
		if s.Remaining() == 0 {
			return entries, nil
		}
		entryLen, ok := s.GetVarint64()
		if !ok {
			return nil, ErrCorruptEntry
		}
		body, ok := s.GetBytes(int(entryLen))
		if !ok {
			return nil, ErrCorruptEntry
		}
		bs := encoding.NewSlice(body)
		count, ok := bs.GetVarint64()
		if !ok {
			return nil, ErrCorruptEntry
		}
		fieldIDs := make([]ids.FieldId, 0, count)
		for i := uint64(0); i < count; i++ {
			raw, ok := bs.GetFixed64()
			if !ok {
				return nil, ErrCorruptEntry
			}
			fieldIDs = append(fieldIDs, ids.FieldId(raw))
		}
		minTS, ok := bs.GetVarsignedint64()
		if !ok {
			return nil, ErrCorruptEntry
		}
		maxTS, ok := bs.GetVarsignedint64()
		if !ok {
			return nil, ErrCorruptEntry
		}
		entries = append(entries, Entry{FieldIDs: fieldIDs, TimeRange: tsrange.New(minTS, maxTS)})
	}
}
