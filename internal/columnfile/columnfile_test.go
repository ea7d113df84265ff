package columnfile

import (
	"testing"

	"github.com/vnodedb/tskv/internal/compression"
	"github.com/vnodedb/tskv/internal/filter"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsm"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

func writeSingleBlockTSM(t *testing.T, fs vfs.FS, path string, fieldID ids.FieldId, points []tsm.Point) {
	t.Helper()
	file, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer file.Close()

	w := tsm.NewWriter(file, compression.SnappyCompression)
	if _, err := w.WriteFieldBlock(fieldID, points); err != nil {
		t.Fatalf("WriteFieldBlock: %v", err)
	}
	if _, _, err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestPathSchemeTSMVsDelta(t *testing.T) {
	tsm := Path("/data", "weather", 3, 42, false)
	if tsm != "/data/weather/3/tsm/42.tsm" {
		t.Fatalf("got %q", tsm)
	}
	delta := Path("/data", "weather", 3, 42, true)
	if delta != "/data/weather/3/delta/42.delta" {
		t.Fatalf("got %q", delta)
	}
}

func TestUnlinkDeferredUntilLastUnref(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	path := Path(dir, "db", 1, 1, false)
	if err := fs.MkdirAll(path[:len(path)-len("/1.tsm")], 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Create(path); err != nil {
		t.Fatal(err)
	}

	cf := New(1, 0, 1, tsrange.New(0, 100), false, fs, path)
	cf.Ref()
	cf.Ref()
	cf.MarkDeleted()

	if err := cf.Unref(); err != nil {
		t.Fatal(err)
	}
	if !fs.Exists(path) {
		t.Fatal("expected file to still exist while a reader holds a ref")
	}
	if err := cf.Unref(); err != nil {
		t.Fatal(err)
	}
	if fs.Exists(path) {
		t.Fatal("expected file to be unlinked once the last ref dropped")
	}
}

func TestFieldFilterMembership(t *testing.T) {
	cf := New(1, 0, 1, tsrange.New(0, 1), false, nil, "")
	cf.SetFilter(filter.New())
	idBytes := []byte{0, 0, 0, 0, 0, 0, 0, 5}
	cf.Filter().AddFieldID(idBytes)
	if !cf.MayContainFieldID(idBytes) {
		t.Fatal("expected filter to admit an added field id")
	}
}

func TestMayContainFieldIDWithoutFilterIsConservative(t *testing.T) {
	cf := New(1, 0, 1, tsrange.New(0, 1), false, nil, "")
	if !cf.MayContainFieldID([]byte{0}) {
		t.Fatal("expected a file with no loaded filter to be treated as may-contain")
	}
}

func TestReadFieldHonorsTombstoneAfterAdd(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	path := Path(dir, "weather", 1, 1, false)
	if err := fs.MkdirAll(path[:len(path)-len("/1.tsm")], 0755); err != nil {
		t.Fatal(err)
	}
	field0 := ids.FieldId(0)
	writeSingleBlockTSM(t, fs, path, field0, []tsm.Point{{Ts: 0, Val: tsm.Value{Kind: tsm.ValueInteger, Int: 7}}})

	cf := New(1, 0, 1, tsrange.New(0, 0), false, fs, path)

	points, err := cf.ReadField(field0, tsrange.New(0, 0))
	if err != nil {
		t.Fatalf("ReadField: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 block's point before any tombstone, got %d", len(points))
	}

	if err := cf.AddTombstone([]ids.FieldId{field0}, tsrange.New(0, 0)); err != nil {
		t.Fatalf("AddTombstone: %v", err)
	}

	points, err = cf.ReadField(field0, tsrange.New(0, 0))
	if err != nil {
		t.Fatalf("ReadField after tombstone: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected tombstoned range to read empty, got %+v", points)
	}
}

func TestCompactingFlag(t *testing.T) {
	cf := New(1, 0, 1, tsrange.New(0, 1), false, nil, "")
	if cf.Compacting() {
		t.Fatal("expected default false")
	}
	cf.SetCompacting(true)
	if !cf.Compacting() {
		t.Fatal("expected true after SetCompacting")
	}
}
