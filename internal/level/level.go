// Package level implements LevelInfo: the set of ColumnFiles sharing one
// compaction level within a Version, plus the aggregate byte size and time
// range the compaction picker and query path read from.
package level

import (
	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/tsrange"
)

// LevelInfo holds every ColumnFile at one level, kept sorted by FileID
// ascending.
type LevelInfo struct {
	Level     int
	Files     []*columnfile.ColumnFile
	TimeRange tsrange.TimeRange
	CurSize   uint64
}

// New returns an empty LevelInfo for the given level.
func New(lvl int) *LevelInfo {
	return &LevelInfo{Level: lvl, TimeRange: tsrange.Empty}
}

// PushColumnFile adds cf to the level and updates the aggregate size and
// time range. Files are kept sorted by FileID ascending.
func (l *LevelInfo) PushColumnFile(cf *columnfile.ColumnFile) {
	l.Files = append(l.Files, cf)
	l.CurSize += cf.FileSize
	l.TimeRange = l.TimeRange.Merge(cf.TimeRange)
	l.sortByFileID()
}

// RemoveColumnFile removes the file with the given id, if present, and
// recomputes the aggregate size and time range from the remaining files.
func (l *LevelInfo) RemoveColumnFile(fileID uint64) (*columnfile.ColumnFile, bool) {
	for i, f := range l.Files {
		if uint64(f.FileID) == fileID {
			l.Files = append(l.Files[:i], l.Files[i+1:]...)
			l.updateTimeRange()
			return f, true
		}
	}
	return nil, false
}

// ReadColumnFile returns the file with the given id, if present.
func (l *LevelInfo) ReadColumnFile(fileID uint64) (*columnfile.ColumnFile, bool) {
	for _, f := range l.Files {
		if uint64(f.FileID) == fileID {
			return f, true
		}
	}
	return nil, false
}

// updateTimeRange recomputes CurSize and TimeRange from scratch. Called
// after any removal, since TimeRange.Merge only ever grows and cannot
// shrink incrementally.
func (l *LevelInfo) updateTimeRange() {
	l.CurSize = 0
	ranges := make([]tsrange.TimeRange, 0, len(l.Files))
	for _, f := range l.Files {
		l.CurSize += f.FileSize
		ranges = append(ranges, f.TimeRange)
	}
	l.TimeRange = tsrange.MergeAll(ranges)
}

func (l *LevelInfo) sortByFileID() {
	// Simple insertion sort: levels stay small (flush/compaction keep file
	// counts bounded) and PushColumnFile is called one file at a time, so
	// this is cheaper than re-sorting the whole slice with sort.Slice.
	files := l.Files
	for i := len(files) - 1; i > 0; i-- {
		if files[i-1].FileID <= files[i].FileID {
			break
		}
		files[i-1], files[i] = files[i], files[i-1]
	}
}

// OverlappingWith returns the files in l whose time range overlaps tr.
func (l *LevelInfo) OverlappingWith(tr tsrange.TimeRange) []*columnfile.ColumnFile {
	var out []*columnfile.ColumnFile
	for _, f := range l.Files {
		if f.TimeRange.Overlaps(tr) {
			out = append(out, f)
		}
	}
	return out
}

// EarliestFile returns the file with the smallest TimeRange.MinTS, used by
// the compaction picker's tie-break rule. Files are stored sorted by
// FileID, not MinTS, so this scans rather than assuming Files[0].
func (l *LevelInfo) EarliestFile() *columnfile.ColumnFile {
	if len(l.Files) == 0 {
		return nil
	}
	earliest := l.Files[0]
	for _, f := range l.Files[1:] {
		if f.TimeRange.MinTS < earliest.TimeRange.MinTS {
			earliest = f
		}
	}
	return earliest
}

// ToCompactMetas returns manifest.CompactMeta records for every file in the
// level, suitable for a VersionEdit that deletes the whole level.
func (l *LevelInfo) ToCompactMetas() []manifest.CompactMeta {
	out := make([]manifest.CompactMeta, 0, len(l.Files))
	for _, f := range l.Files {
		out = append(out, manifest.CompactMeta{
			FileID:    f.FileID,
			Level:     f.Level,
			FileSize:  f.FileSize,
			TimeRange: f.TimeRange,
			IsDelta:   f.IsDelta,
			TsfID:     f.TsfID,
			HighSeq:   f.HighSeq,
			LowSeq:    f.LowSeq,
		})
	}
	return out
}
