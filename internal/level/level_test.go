package level

import (
	"testing"

	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
)

func cf(id uint64, min, max int64, size uint64) *columnfile.ColumnFile {
	f := columnfile.New(ids.ColumnFileId(id), 0, 1, tsrange.New(min, max), false, nil, "")
	f.FileSize = size
	return f
}

func TestPushKeepsFilesSortedByFileID(t *testing.T) {
	l := New(0)
	l.PushColumnFile(cf(3, 300, 400, 10))
	l.PushColumnFile(cf(1, 100, 200, 10))
	l.PushColumnFile(cf(2, 0, 50, 10))

	if l.Files[0].FileID != 1 || l.Files[1].FileID != 2 || l.Files[2].FileID != 3 {
		t.Fatalf("unexpected order: %v", l.Files)
	}
}

func TestAggregatesSizeAndTimeRange(t *testing.T) {
	l := New(0)
	l.PushColumnFile(cf(1, 0, 100, 10))
	l.PushColumnFile(cf(2, 50, 200, 20))
	if l.CurSize != 30 {
		t.Fatalf("got size %d", l.CurSize)
	}
	if l.TimeRange != tsrange.New(0, 200) {
		t.Fatalf("got range %v", l.TimeRange)
	}
}

func TestRemoveRecomputesAggregate(t *testing.T) {
	l := New(0)
	l.PushColumnFile(cf(1, 0, 100, 10))
	l.PushColumnFile(cf(2, 200, 300, 20))
	if _, ok := l.RemoveColumnFile(1); !ok {
		t.Fatal("expected removal to succeed")
	}
	if l.CurSize != 20 {
		t.Fatalf("got size %d", l.CurSize)
	}
	if l.TimeRange != tsrange.New(200, 300) {
		t.Fatalf("got range %v", l.TimeRange)
	}
}

func TestEarliestFileIsSmallestMinTS(t *testing.T) {
	l := New(0)
	l.PushColumnFile(cf(1, 500, 600, 10))
	l.PushColumnFile(cf(2, 0, 10, 10))
	if l.EarliestFile().FileID != 2 {
		t.Fatalf("got %v", l.EarliestFile().FileID)
	}
}

func TestOverlappingWith(t *testing.T) {
	l := New(0)
	l.PushColumnFile(cf(1, 0, 100, 10))
	l.PushColumnFile(cf(2, 500, 600, 10))
	got := l.OverlappingWith(tsrange.New(50, 550))
	if len(got) != 2 {
		t.Fatalf("got %d files", len(got))
	}
}
