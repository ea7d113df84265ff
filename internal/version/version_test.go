package version

import (
	"testing"

	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/tsrange"
)

func addEdit(tsfID uint32, fileID uint64, level int, min, max int64) *manifest.VersionEdit {
	ve := manifest.NewVersionEdit(ids.TseriesFamilyId(tsfID))
	ve.AddFile(manifest.CompactMeta{
		FileID:    ids.ColumnFileId(fileID),
		Level:     level,
		FileSize:  100,
		TimeRange: tsrange.New(min, max),
		TsfID:     ids.TseriesFamilyId(tsfID),
	})
	return ve
}

func TestSimpleEditProducesNewVersionWithFile(t *testing.T) {
	b := NewBuilder(nil, "/data", "db", nil)
	b.Apply(addEdit(1, 1, 0, 0, 100))
	v := b.SaveTo(1, 1)

	if len(v.Levels[0].Files) != 1 {
		t.Fatalf("expected 1 file at level 0, got %d", len(v.Levels[0].Files))
	}
	if v.MaxLevelTS != 100 {
		t.Fatalf("expected MaxLevelTS 100, got %d", v.MaxLevelTS)
	}
}

func TestCompactionMergeDeletesInputsAddsOutput(t *testing.T) {
	base := NewBuilder(nil, "/data", "db", nil)
	base.Apply(addEdit(1, 1, 0, 0, 100))
	base.Apply(addEdit(1, 2, 0, 100, 200))
	v0 := base.SaveTo(1, 1)

	compact := NewBuilder(v0, "/data", "db", nil)
	ve := manifest.NewVersionEdit(ids.TseriesFamilyId(1))
	ve.DelFile(manifest.CompactMeta{FileID: ids.ColumnFileId(1), Level: 0, TimeRange: tsrange.New(0, 100), TsfID: 1})
	ve.DelFile(manifest.CompactMeta{FileID: ids.ColumnFileId(2), Level: 0, TimeRange: tsrange.New(100, 200), TsfID: 1})
	ve.AddFile(manifest.CompactMeta{FileID: ids.ColumnFileId(3), Level: 1, FileSize: 180, TimeRange: tsrange.New(0, 200), TsfID: 1})
	compact.Apply(ve)
	v1 := compact.SaveTo(1, 2)

	if len(v1.Levels[0].Files) != 0 {
		t.Fatalf("expected level 0 empty after compaction, got %d", len(v1.Levels[0].Files))
	}
	if len(v1.Levels[1].Files) != 1 || v1.Levels[1].Files[0].FileID != ids.ColumnFileId(3) {
		t.Fatalf("expected compacted output at level 1, got %v", v1.Levels[1].Files)
	}

	// The old version must remain intact: this is snapshot isolation.
	if len(v0.Levels[0].Files) != 2 {
		t.Fatalf("expected old version to still show 2 files at level 0, got %d", len(v0.Levels[0].Files))
	}
}

func TestAddAfterDeleteTieBreakWithinBatch(t *testing.T) {
	b := NewBuilder(nil, "/data", "db", nil)
	ve := manifest.NewVersionEdit(ids.TseriesFamilyId(1))
	ve.DelFile(manifest.CompactMeta{FileID: ids.ColumnFileId(5), Level: 0, TimeRange: tsrange.New(0, 1), TsfID: 1})
	ve.AddFile(manifest.CompactMeta{FileID: ids.ColumnFileId(5), Level: 0, FileSize: 50, TimeRange: tsrange.New(0, 50), TsfID: 1})
	b.Apply(ve)
	v := b.SaveTo(1, 1)

	if len(v.Levels[0].Files) != 1 {
		t.Fatalf("expected the add to win, got %d files", len(v.Levels[0].Files))
	}
	if v.Levels[0].Files[0].FileSize != 50 {
		t.Fatalf("expected the added file's size to survive, got %d", v.Levels[0].Files[0].FileSize)
	}
}

func TestSnapshotIsolationAcrossConcurrentVersions(t *testing.T) {
	b := NewBuilder(nil, "/data", "db", nil)
	b.Apply(addEdit(1, 1, 0, 0, 100))
	v0 := b.SaveTo(1, 1)
	v0.Ref()

	next := NewBuilder(v0, "/data", "db", nil)
	next.Apply(addEdit(1, 2, 0, 100, 200))
	v1 := next.SaveTo(1, 2)

	if len(v0.Levels[0].Files) != 1 {
		t.Fatal("holder of v0 must still see exactly 1 file")
	}
	if len(v1.Levels[0].Files) != 2 {
		t.Fatal("v1 must see both files")
	}
	v0.Unref()
}
