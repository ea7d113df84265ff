package version

import (
	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/filter"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/vfs"
)

// Builder accumulates a batch of VersionEdits against a base Version and
// produces the next Version by copying the base and applying each edit. The
// base Version is never mutated, so existing readers holding it stay valid.
type Builder struct {
	base *Version

	storageRoot, database string
	fs                     vfs.FS

	added   [NumLevels]map[ids.ColumnFileId]manifest.CompactMeta
	deleted [NumLevels]map[ids.ColumnFileId]struct{}

	filters map[ids.ColumnFileId]*filter.FieldFilter

	hasSeqNo bool
	lastSeq  uint64
}

// NewBuilder creates a Builder seeded from base, which may be nil for a
// brand-new TSeriesFamily.
func NewBuilder(base *Version, storageRoot, database string, fs vfs.FS) *Builder {
	b := &Builder{base: base, storageRoot: storageRoot, database: database, fs: fs, filters: make(map[ids.ColumnFileId]*filter.FieldFilter)}
	for i := range b.added {
		b.added[i] = make(map[ids.ColumnFileId]manifest.CompactMeta)
		b.deleted[i] = make(map[ids.ColumnFileId]struct{})
	}
	if base != nil {
		b.hasSeqNo = true
		b.lastSeq = base.LastSeq
	}
	return b
}

// Apply folds one VersionEdit into the builder. Tie-break within a batch:
// add after delete — if the same file id is deleted and then re-added by
// edits in this batch, the add wins. last_seq only advances when edit
// carries HasSeqNo — matching the source's "update last_seq only when
// has_seq_no" behavior (spec §9).
func (b *Builder) Apply(edit *manifest.VersionEdit) {
	for _, m := range edit.DelFiles {
		if m.Level < 0 || m.Level >= NumLevels {
			continue
		}
		delete(b.added[m.Level], m.FileID)
		b.deleted[m.Level][m.FileID] = struct{}{}
	}
	for _, m := range edit.AddFiles {
		if m.Level < 0 || m.Level >= NumLevels {
			continue
		}
		delete(b.deleted[m.Level], m.FileID)
		b.added[m.Level][m.FileID] = m
	}
	if edit.HasSeqNo {
		b.hasSeqNo = true
		b.lastSeq = edit.SeqNo
	}
}

// SetFilter attaches the field-membership filter built while flushing
// fileID, so the ColumnFile SaveTo constructs for it starts with the
// filter already loaded instead of rebuilding it from the file's own
// index on first probe.
func (b *Builder) SetFilter(fileID ids.ColumnFileId, f *filter.FieldFilter) {
	b.filters[fileID] = f
}

// SaveTo materializes the accumulated changes as a new Version numbered
// versionNumber.
func (b *Builder) SaveTo(tsfID ids.TseriesFamilyId, versionNumber uint64) *Version {
	v := New(tsfID, versionNumber)
	if b.hasSeqNo {
		v.LastSeq = b.lastSeq
	}

	for lvl := 0; lvl < NumLevels; lvl++ {
		if b.base != nil {
			for _, f := range b.base.Levels[lvl].Files {
				if _, gone := b.deleted[lvl][f.FileID]; gone {
					f.MarkDeleted()
					continue
				}
				v.Levels[lvl].PushColumnFile(f)
			}
		}
		for _, m := range b.added[lvl] {
			path := columnfile.Path(b.storageRoot, b.database, tsfID, m.FileID, m.IsDelta)
			cf := columnfile.New(m.FileID, m.Level, m.TsfID, m.TimeRange, m.IsDelta, b.fs, path)
			cf.FileSize = m.FileSize
			cf.HighSeq = m.HighSeq
			cf.LowSeq = m.LowSeq
			if f, ok := b.filters[m.FileID]; ok {
				cf.SetFilter(f)
			}
			v.Levels[lvl].PushColumnFile(cf)
		}
	}

	v.updateMaxLevelTS()
	return v
}
