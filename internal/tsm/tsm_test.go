package tsm

import (
	"path/filepath"
	"testing"

	"github.com/vnodedb/tskv/internal/compression"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

func writeSample(t *testing.T, path string) map[ids.FieldId][]BlockMeta {
	t.Helper()
	fs := vfs.Default()
	wf, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := NewWriter(wf, compression.SnappyCompression)

	field0 := ids.FieldId(0)
	field1 := ids.FieldId(1)
	if _, err := w.WriteFieldBlock(field0, []Point{
		{Ts: 0, Val: Value{Kind: ValueFloat, Float: 1.5}},
		{Ts: 10, Val: Value{Kind: ValueFloat, Float: 2.5}},
	}); err != nil {
		t.Fatalf("write field0 block: %v", err)
	}
	if _, err := w.WriteFieldBlock(field0, []Point{
		{Ts: 20, Val: Value{Kind: ValueFloat, Float: 3.5}},
	}); err != nil {
		t.Fatalf("write field0 second block: %v", err)
	}
	if _, err := w.WriteFieldBlock(field1, []Point{
		{Ts: 5, Val: Value{Kind: ValueInteger, Int: -7}},
	}); err != nil {
		t.Fatalf("write field1 block: %v", err)
	}

	_, blocks, err := w.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return blocks
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.tsm")
	writeSample(t, path)

	fs := vfs.Default()
	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("open random access: %v", err)
	}
	defer rf.Close()

	r, err := Open(rf)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	field0 := ids.FieldId(0)
	points, err := r.ReadRange(field0, tsrange.New(0, 20))
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points for field0, got %d", len(points))
	}
	if points[0].Val.Float != 1.5 || points[2].Val.Float != 3.5 {
		t.Fatalf("unexpected decoded values: %+v", points)
	}

	field1 := ids.FieldId(1)
	p1, err := r.ReadRange(field1, tsrange.New(0, 20))
	if err != nil {
		t.Fatalf("read range field1: %v", err)
	}
	if len(p1) != 1 || p1[0].Val.Int != -7 {
		t.Fatalf("unexpected field1 points: %+v", p1)
	}
}

func TestReadRangeRestrictsToOverlappingBlocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.tsm")
	writeSample(t, path)

	fs := vfs.Default()
	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("open random access: %v", err)
	}
	defer rf.Close()

	r, err := Open(rf)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	field0 := ids.FieldId(0)
	blocks := r.BlocksForField(field0, tsrange.New(15, 25))
	if len(blocks) != 1 {
		t.Fatalf("expected only the second block to overlap [15,25], got %d blocks", len(blocks))
	}

	points, err := r.ReadRange(field0, tsrange.New(15, 25))
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(points) != 1 || points[0].Ts != 20 {
		t.Fatalf("expected only ts=20 in range, got %+v", points)
	}
}

func TestReadBlockDetectsTruncatedBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.tsm")
	blocks := writeSample(t, path)

	fs := vfs.Default()
	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("open random access: %v", err)
	}
	defer rf.Close()

	r, err := Open(rf)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}

	meta := blocks[ids.FieldId(0)][0]
	meta.Handle.Size-- // truncate the block by one byte so its payload reads short
	if _, err := r.ReadBlock(meta); err == nil {
		t.Fatalf("expected the truncated block to be rejected")
	}
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.tsm")
	fs := vfs.Default()
	wf, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := wf.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := wf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("open random access: %v", err)
	}
	defer rf.Close()

	if _, err := Open(rf); err != ErrBadFooter {
		t.Fatalf("expected ErrBadFooter, got %v", err)
	}
}
