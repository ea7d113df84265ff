// Package columnfile implements ColumnFile, the handle a Version holds for
// one on-disk TSM (or delta) file: its metadata, its field-membership
// filter, its deleted/compacting flags, and the ref-counted lifecycle that
// defers physical deletion until the last reader is done.
package columnfile

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/vnodedb/tskv/internal/filter"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/logging"
	"github.com/vnodedb/tskv/internal/tombstone"
	"github.com/vnodedb/tskv/internal/tsm"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

// log is the package-level logger every ColumnFile reports reader-open
// failures through. Overridable so a process wiring a structured logger
// elsewhere can route these lines through it too.
var log logging.Logger = logging.NewDefaultLogger(logging.LevelWarn)

// SetLogger overrides the package-level logger.
func SetLogger(l logging.Logger) { log = logging.OrDefault(l) }

// ColumnFile is one physical TSM or delta file, shared by reference across
// every Version that includes it.
type ColumnFile struct {
	FileID    ids.ColumnFileId
	Level     int
	FileSize  uint64
	TimeRange tsrange.TimeRange
	IsDelta   bool
	TsfID     ids.TseriesFamilyId
	HighSeq   uint64
	LowSeq    uint64

	filterMu sync.Mutex
	filter   *filter.FieldFilter

	refs       int32
	deleted    atomic.Bool
	compacting atomic.Bool

	fs   vfs.FS
	path string
}

// New creates a ColumnFile handle with no filter loaded yet. A flush job
// calls SetFilter once it has built the filter from the fields it wrote;
// a file reconstructed by Builder during recovery leaves it nil until
// EnsureFilter rebuilds it from the file's TSM index. MayContainFieldID
// treats a nil filter as "may contain" so an unloaded filter never causes a
// false negative.
func New(fileID ids.ColumnFileId, level int, tsfID ids.TseriesFamilyId, tr tsrange.TimeRange, isDelta bool, fs vfs.FS, path string) *ColumnFile {
	return &ColumnFile{
		FileID:    fileID,
		Level:     level,
		TsfID:     tsfID,
		TimeRange: tr,
		IsDelta:   isDelta,
		fs:        fs,
		path:      path,
	}
}

// Path returns the scheme <storage_root>/<database>/<vnode_id>/tsm/<file_id>.tsm
// (or .../delta/<file_id>.delta for delta files), as laid out by the owning
// TSeriesFamily.
func Path(storageRoot, database string, vnodeID ids.TseriesFamilyId, fileID ids.ColumnFileId, isDelta bool) string {
	sub := "tsm"
	ext := "tsm"
	if isDelta {
		sub = "delta"
		ext = "delta"
	}
	return filepath.Join(storageRoot, database, fmt.Sprintf("%d", vnodeID), sub, fmt.Sprintf("%d.%s", fileID, ext))
}

// TombstonePath returns the companion tombstone log path for a TSM (or
// delta) file, laid out alongside it under the same vnode directory.
func TombstonePath(storageRoot, database string, vnodeID ids.TseriesFamilyId, fileID ids.ColumnFileId) string {
	return filepath.Join(storageRoot, database, fmt.Sprintf("%d", vnodeID), "tombstone", fmt.Sprintf("%d.tombstone", fileID))
}

// Filter returns the file's field-membership filter.
func (cf *ColumnFile) Filter() *filter.FieldFilter {
	cf.filterMu.Lock()
	defer cf.filterMu.Unlock()
	return cf.filter
}

// SetFilter replaces the file's field-membership filter, used after a
// flush builds it or a reader loads it off disk.
func (cf *ColumnFile) SetFilter(f *filter.FieldFilter) {
	cf.filterMu.Lock()
	defer cf.filterMu.Unlock()
	cf.filter = f
}

// MayContainFieldID reports whether the file's filter admits fieldIDBytes.
func (cf *ColumnFile) MayContainFieldID(fieldIDBytes []byte) bool {
	cf.filterMu.Lock()
	f := cf.filter
	cf.filterMu.Unlock()
	if f == nil {
		return true
	}
	return f.MayContainFieldID(fieldIDBytes)
}

// EnsureFilter loads the field-membership filter from the file's own TSM
// index if it has not been set yet — the path a file recovered from the
// summary log takes the first time a query probes it. A freshly flushed
// file already has its filter set by the flush job and this is a no-op.
func (cf *ColumnFile) EnsureFilter() error {
	cf.filterMu.Lock()
	loaded := cf.filter != nil
	cf.filterMu.Unlock()
	if loaded || cf.IsDelta {
		return nil
	}

	rf, err := cf.fs.OpenRandomAccess(cf.path)
	if err != nil {
		log.Errorf(logging.NSTSM+"open reader for file %d at %s: %v", cf.FileID, cf.path, err)
		return err
	}
	defer rf.Close()

	r, err := tsm.Open(rf)
	if err != nil {
		log.Errorf(logging.NSTSM+"open reader for file %d at %s: %v", cf.FileID, cf.path, err)
		return err
	}

	f := filter.New()
	for _, fieldID := range r.FieldIDs() {
		f.AddFieldID(fieldID.Bytes())
	}
	cf.SetFilter(f)
	return nil
}

// tombstonePath returns this file's companion tombstone log path: a
// "tombstone" directory alongside the file's own "tsm"/"delta" directory,
// within the same vnode directory.
func (cf *ColumnFile) tombstonePath() string {
	vnodeDir := filepath.Dir(filepath.Dir(cf.path))
	return filepath.Join(vnodeDir, "tombstone", fmt.Sprintf("%d.tombstone", cf.FileID))
}

// AddTombstone records a deletion of fieldIDs over tr against this file,
// persisting it to the file's companion tombstone log so it survives a
// restart and is honored by every subsequent ReadField call.
func (cf *ColumnFile) AddTombstone(fieldIDs []ids.FieldId, tr tsrange.TimeRange) error {
	path := cf.tombstonePath()
	if err := cf.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	log, err := tombstone.Open(cf.fs, path)
	if err != nil {
		return err
	}
	return log.Add(fieldIDs, tr)
}

// ReadField reads every point for fieldID over tr from the underlying TSM
// file, filtering out any point the file's tombstone log marks deleted.
func (cf *ColumnFile) ReadField(fieldID ids.FieldId, tr tsrange.TimeRange) ([]tsm.Point, error) {
	rf, err := cf.fs.OpenRandomAccess(cf.path)
	if err != nil {
		log.Errorf(logging.NSTSM+"open reader for file %d at %s: %v", cf.FileID, cf.path, err)
		return nil, err
	}
	defer rf.Close()

	r, err := tsm.Open(rf)
	if err != nil {
		log.Errorf(logging.NSTSM+"open reader for file %d at %s: %v", cf.FileID, cf.path, err)
		return nil, err
	}
	points, err := r.ReadRange(fieldID, tr)
	if err != nil {
		return nil, err
	}

	log, err := tombstone.Open(cf.fs, cf.tombstonePath())
	if err != nil {
		return nil, err
	}
	if log.IsEmpty() {
		return points, nil
	}

	out := points[:0:0]
	for _, p := range points {
		if !log.Covers(fieldID, p.Ts) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Ref increments the reference count. Callers must Ref before handing a
// *ColumnFile to a reader and Unref when done.
func (cf *ColumnFile) Ref() {
	atomic.AddInt32(&cf.refs, 1)
}

// Unref decrements the reference count. When it reaches zero and the file
// has been marked Deleted, the physical file is unlinked.
func (cf *ColumnFile) Unref() error {
	if atomic.AddInt32(&cf.refs, -1) == 0 && cf.deleted.Load() {
		return cf.unlink()
	}
	return nil
}

// MarkDeleted marks the file as superseded by a compaction (or vnode drop).
// It is no longer visible to new Versions, but existing readers holding a
// ref may continue reading it until they Unref.
func (cf *ColumnFile) MarkDeleted() {
	cf.deleted.Store(true)
}

// Deleted reports whether MarkDeleted has been called.
func (cf *ColumnFile) Deleted() bool { return cf.deleted.Load() }

// SetCompacting marks whether the file is currently an input to an
// in-flight compaction, so the picker does not select it twice.
func (cf *ColumnFile) SetCompacting(v bool) { cf.compacting.Store(v) }

// Compacting reports whether the file is currently a compaction input.
func (cf *ColumnFile) Compacting() bool { return cf.compacting.Load() }

func (cf *ColumnFile) unlink() error {
	if cf.fs == nil || cf.path == "" {
		return nil
	}
	return cf.fs.Remove(cf.path)
}
