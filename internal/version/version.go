// Package version implements Version, the immutable per-TSeriesFamily
// snapshot of on-disk state, and Builder, which applies a batch of
// VersionEdits to produce the next Version without mutating the one
// readers currently hold.
package version

import (
	"sync/atomic"

	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/level"
	"github.com/vnodedb/tskv/internal/tsrange"
)

// NumLevels is the fixed number of compaction levels, 0 (newest, from
// flush) through 4 (oldest, most compacted).
const NumLevels = 5

// Version is an immutable snapshot of one TSeriesFamily's on-disk column
// files. It is shared by reference: Ref/Unref track how many readers are
// using it, and it is never mutated after construction — a new edit
// produces a new Version via Builder, leaving existing holders valid.
type Version struct {
	TsfID         ids.TseriesFamilyId
	VersionNumber uint64
	Levels        [NumLevels]*level.LevelInfo
	MaxLevelTS    int64
	LastSeq       uint64

	refs int32
}

// New returns an empty Version with every level initialized.
func New(tsfID ids.TseriesFamilyId, versionNumber uint64) *Version {
	v := &Version{TsfID: tsfID, VersionNumber: versionNumber}
	for i := range v.Levels {
		v.Levels[i] = level.New(i)
	}
	return v
}

// Ref increments the reference count.
func (v *Version) Ref() { atomic.AddInt32(&v.refs, 1) }

// Unref decrements the reference count. Callers are expected to drop all
// ColumnFile refs held through this Version's levels before the final
// Unref, since Version itself holds no file handles beyond what its levels
// reference.
func (v *Version) Unref() { atomic.AddInt32(&v.refs, -1) }

// RefCount returns the current reference count, for tests and diagnostics.
func (v *Version) RefCount() int32 { return atomic.LoadInt32(&v.refs) }

// ColumnFiles returns every file across all levels whose time range
// overlaps tr. Callers Ref each returned file for the duration of the read
// and Unref when finished.
func (v *Version) ColumnFiles(tr tsrange.TimeRange) []*columnfile.ColumnFile {
	var out []*columnfile.ColumnFile
	for _, l := range v.Levels {
		out = append(out, l.OverlappingWith(tr)...)
	}
	return out
}

// ColumnFilesForField is like ColumnFiles but additionally filters out
// files whose Bloom filter definitely does not contain fieldIDBytes.
func (v *Version) ColumnFilesForField(tr tsrange.TimeRange, fieldIDBytes []byte) []*columnfile.ColumnFile {
	var out []*columnfile.ColumnFile
	for _, f := range v.ColumnFiles(tr) {
		if f.MayContainFieldID(fieldIDBytes) {
			out = append(out, f)
		}
	}
	return out
}

// updateMaxLevelTS recomputes MaxLevelTS by scanning every level's
// TimeRange.MaxTS, called once after Builder finishes applying edits.
func (v *Version) updateMaxLevelTS() {
	max := int64(0)
	first := true
	for _, l := range v.Levels {
		if l.TimeRange.IsEmpty() {
			continue
		}
		if first || l.TimeRange.MaxTS > max {
			max = l.TimeRange.MaxTS
			first = false
		}
	}
	v.MaxLevelTS = max
}
