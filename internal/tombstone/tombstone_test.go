package tombstone

import (
	"path/filepath"
	"testing"

	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

func TestAddThenCoversAppliesAtRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.tombstone")
	fs := vfs.Default()

	log, err := Open(fs, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !log.IsEmpty() {
		t.Fatalf("expected new log to be empty")
	}

	field0 := ids.FieldId(0)
	if log.Covers(field0, 0) {
		t.Fatalf("expected no coverage before any tombstone is added")
	}

	if err := log.Add([]ids.FieldId{field0}, tsrange.New(0, 0)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if !log.Covers(field0, 0) {
		t.Fatalf("expected field 0 at ts=0 to be covered after add")
	}
	if log.Covers(ids.FieldId(1), 0) {
		t.Fatalf("expected field 1 to remain uncovered")
	}
	if log.Covers(field0, 1) {
		t.Fatalf("expected ts=1 to remain uncovered, outside [0,0]")
	}
}

func TestOpenReloadsPersistedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.tombstone")
	fs := vfs.Default()

	log, err := Open(fs, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := log.Add([]ids.FieldId{3, 4}, tsrange.New(10, 20)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := log.Add([]ids.FieldId{5}, tsrange.New(30, 40)); err != nil {
		t.Fatalf("add second: %v", err)
	}

	reopened, err := Open(fs, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	entries := reopened.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 persisted entries, got %d", len(entries))
	}
	if len(entries[0].FieldIDs) != 2 || entries[0].FieldIDs[0] != 3 || entries[0].FieldIDs[1] != 4 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].TimeRange.MinTS != 30 || entries[1].TimeRange.MaxTS != 40 {
		t.Fatalf("unexpected second entry range: %+v", entries[1])
	}
	if !reopened.Covers(ids.FieldId(5), 35) {
		t.Fatalf("expected reloaded log to cover field 5 at ts=35")
	}
}

func TestOpenMissingFileIsEmptyLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.tombstone")
	fs := vfs.Default()

	log, err := Open(fs, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !log.IsEmpty() {
		t.Fatalf("expected missing file to produce an empty log")
	}
}
