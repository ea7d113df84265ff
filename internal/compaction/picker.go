// Package compaction implements the leveled compaction picker: deciding
// whether a TSeriesFamily's current Version has a level overdue for
// rewrite, and if so, which files should feed the next CompactReq.
package compaction

import (
	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/level"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/version"
)

// L0FileCountTrigger is the level-0 file count that substitutes for a size
// ratio: level 0 has no configured target size (LevelMaxSize(0) is always
// 0, since it fills from flushes rather than from merges), so its fill
// ratio is file count over this constant instead of bytes over a target.
const L0FileCountTrigger = 4

// Req is one compaction's inputs and target, handed to a compaction worker:
// the vnode and database it belongs to, the Version it was picked against,
// the files to merge, and the level the merge output lands in.
type Req struct {
	TsfID       ids.TseriesFamilyId
	Database    string
	Version     *version.Version
	Inputs      []*columnfile.ColumnFile
	OutputLevel int
}

// MarkInputsCompacting sets every input file's compacting flag, serializing
// it against selection by a concurrent Pick call. Call with false once the
// compaction's resulting edit has been applied (or discarded).
func (r *Req) MarkInputsCompacting(v bool) {
	for _, f := range r.Inputs {
		f.SetCompacting(v)
	}
}

// Picker implements the leveled compaction strategy: the level with the
// greatest fill ratio compacts first, and within it the file with the
// smallest min_ts is picked, extended to every overlapping file one level
// down.
type Picker struct {
	opts *options.StorageOptions
}

// NewPicker returns a Picker sized from opts.
func NewPicker(opts *options.StorageOptions) *Picker {
	return &Picker{opts: opts}
}

// NeedsCompaction reports whether any level but the last has a fill ratio
// of at least 1.0.
func (p *Picker) NeedsCompaction(v *version.Version) bool {
	return p.bestLevel(v) >= 0
}

// Pick selects the level with the greatest cur_size/max_size ratio, then
// within that level picks the non-compacting file with the smallest
// min_ts and extends the input set to every non-compacting file one level
// down whose range overlaps the picked file's range. Returns nil if no
// level needs compaction, or if the level's only eligible files are
// already compacting.
func (p *Picker) Pick(database string, v *version.Version) *Req {
	lvl := p.bestLevel(v)
	if lvl < 0 {
		return nil
	}

	picked := earliestAvailable(v.Levels[lvl])
	if picked == nil {
		return nil
	}

	inputs := []*columnfile.ColumnFile{picked}
	outputLevel := lvl
	if lvl+1 < version.NumLevels {
		outputLevel = lvl + 1
		for _, f := range v.Levels[lvl+1].OverlappingWith(picked.TimeRange) {
			if !f.Compacting() {
				inputs = append(inputs, f)
			}
		}
	}

	return &Req{
		TsfID:       v.TsfID,
		Database:    database,
		Version:     v,
		Inputs:      inputs,
		OutputLevel: outputLevel,
	}
}

// earliestAvailable returns the non-compacting file with the smallest
// min_ts in li, or nil if every file is already a compaction input.
func earliestAvailable(li *level.LevelInfo) *columnfile.ColumnFile {
	var picked *columnfile.ColumnFile
	for _, f := range li.Files {
		if f.Compacting() {
			continue
		}
		if picked == nil || f.TimeRange.MinTS < picked.TimeRange.MinTS {
			picked = f
		}
	}
	return picked
}

// bestLevel returns the index of the level with the greatest fill ratio
// at or above 1.0, or -1 if none qualifies. Only levels 0 through
// NumLevels-2 are candidates: the last level has nowhere further to
// compact into.
func (p *Picker) bestLevel(v *version.Version) int {
	best := -1
	bestRatio := 0.0
	for lvl := 0; lvl < version.NumLevels-1; lvl++ {
		ratio := p.levelRatio(lvl, v.Levels[lvl])
		if ratio >= 1.0 && ratio > bestRatio {
			bestRatio = ratio
			best = lvl
		}
	}
	return best
}

func (p *Picker) levelRatio(lvl int, li *level.LevelInfo) float64 {
	if lvl == 0 {
		return float64(len(li.Files)) / float64(L0FileCountTrigger)
	}
	maxSize := p.opts.LevelMaxSize(lvl)
	if maxSize == 0 {
		return 0
	}
	return float64(li.CurSize) / float64(maxSize)
}
