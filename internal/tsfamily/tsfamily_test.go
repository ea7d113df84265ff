package tsfamily

import (
	"testing"

	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/memcache"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/version"
)

func colFile(t *testing.T, id uint64) *columnfile.ColumnFile {
	t.Helper()
	f := columnfile.New(ids.ColumnFileId(id), 0, 1, tsrange.New(0, 100), false, nil, "")
	f.FileSize = 10
	return f
}

func sampleGroup(schemaID ids.SchemaId, ts int64) memcache.RowGroup {
	return memcache.RowGroup{
		SchemaID: schemaID,
		Schema:   []ids.FieldId{ids.NewFieldId(1, 1)},
		Range:    tsrange.New(ts, ts),
		Rows: []memcache.RowData{{
			Ts:     ts,
			Fields: []*memcache.FieldVal{memcache.NewIntegerVal(7)},
		}},
		Size: 64,
	}
}

func newTestFamily(t *testing.T, bufSize uint64, maxImmuts uint32) (*TSeriesFamily, chan FlushReq) {
	t.Helper()
	ch := make(chan FlushReq, 16)
	cacheOpts := &options.CacheOptions{MaxBufferSize: bufSize, MaxImmutableNumber: maxImmuts}
	storageOpts := options.DefaultStorageOptions()
	ver := version.New(1, 0)
	tsf := New(1, "db0", t.TempDir(), storageOpts, cacheOpts, ver, 0, ch)
	return tsf, ch
}

func TestPutPointsAdvancesSeqNoAndVisibleViaSuperVersion(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)

	tsf.PutPoints(1, 5, sampleGroup(0, 10))
	if tsf.SeqNo() != 5 {
		t.Fatalf("expected seq_no 5, got %d", tsf.SeqNo())
	}

	sv := tsf.SuperVersion()
	defer sv.Unref()
	if got := sv.Caches.Mut.GetData(1, nil); len(got) != 1 {
		t.Fatalf("expected the write visible in the published mutable cache, got %d groups", len(got))
	}
}

func TestSwitchToImmutableMovesCacheAndPublishesFreshMutable(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	tsf.PutPoints(1, 1, sampleGroup(0, 10))

	before := tsf.SuperVersion()
	beforeMut := before.Caches.Mut
	before.Unref()

	tsf.SwitchToImmutable()

	after := tsf.SuperVersion()
	defer after.Unref()
	if len(after.Caches.Immuts) != 1 || after.Caches.Immuts[0] != beforeMut {
		t.Fatalf("expected the old mutable cache moved into Immuts, got %+v", after.Caches.Immuts)
	}
	if after.Caches.Mut == beforeMut {
		t.Fatal("expected a fresh mutable cache after switch_to_immutable")
	}
	if after.Caches.Mut.IsFull() {
		t.Fatal("expected the fresh mutable cache to start empty")
	}
}

func TestCheckToFlushRotatesOnceMutableFills(t *testing.T) {
	tsf, _ := newTestFamily(t, 32, 4)

	tsf.PutPoints(1, 1, sampleGroup(0, 10))
	tsf.PutPoints(1, 2, sampleGroup(0, 20))

	tsf.CheckToFlush()

	sv := tsf.SuperVersion()
	defer sv.Unref()
	if len(sv.Caches.Immuts) != 1 {
		t.Fatalf("expected the filled mutable cache rotated to immutable, got %d immutables", len(sv.Caches.Immuts))
	}
}

func TestFlushReqReturnsNilBelowThreshold(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	tsf.SwitchToImmutable()

	if req := tsf.FlushReq(false); req != nil {
		t.Fatalf("expected nil below MaxImmutableNumber, got %+v", req)
	}
}

func TestFlushReqReturnsRequestAtThresholdAndMarksFlushing(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 2)
	tsf.SwitchToImmutable()
	tsf.SwitchToImmutable()

	req := tsf.FlushReq(false)
	if req == nil {
		t.Fatal("expected a flush request once immutables reach MaxImmutableNumber")
	}
	if len(req.Caches) != 2 {
		t.Fatalf("expected 2 caches selected, got %d", len(req.Caches))
	}
	for _, c := range req.Caches {
		if !c.Flushing() {
			t.Fatal("expected every selected cache marked flushing")
		}
	}
}

func TestFlushReqForceReturnsRequestRegardlessOfThreshold(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 10)
	tsf.SwitchToImmutable()

	if req := tsf.FlushReq(false); req != nil {
		t.Fatal("expected nil without force below threshold")
	}
	req := tsf.FlushReq(true)
	if req == nil || len(req.Caches) != 1 {
		t.Fatalf("expected a forced flush request with 1 cache, got %+v", req)
	}
}

func TestFlushReqReclaimsFlushedCachesAndRepublishes(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 10)
	tsf.SwitchToImmutable()

	sv := tsf.SuperVersion()
	immut := sv.Caches.Immuts[0]
	sv.Unref()

	immut.MarkFlushed()
	tsf.FlushReq(false)

	after := tsf.SuperVersion()
	defer after.Unref()
	if len(after.Caches.Immuts) != 0 {
		t.Fatalf("expected the flushed cache reclaimed from the immutable list, got %d left", len(after.Caches.Immuts))
	}
}

func TestNewVersionInstallsVersionAndAdvancesSeqNo(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	next := version.New(1, 1)

	tsf.NewVersion(next, 42)

	if tsf.SeqNo() != 42 {
		t.Fatalf("expected seq_no advanced to 42, got %d", tsf.SeqNo())
	}
	sv := tsf.SuperVersion()
	defer sv.Unref()
	if sv.Version != next {
		t.Fatal("expected the new Version published")
	}
}

func TestNewVersionNeverRegressesSeqNo(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	tsf.PutPoints(1, 100, sampleGroup(0, 1))

	tsf.NewVersion(version.New(1, 1), 5)

	if tsf.SeqNo() != 100 {
		t.Fatalf("expected seq_no to stay at its high-water mark 100, got %d", tsf.SeqNo())
	}
}

func TestDeleteSeriesAppliesToMutableAndImmutableCaches(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	tsf.PutPoints(1, 1, sampleGroup(0, 10))
	tsf.SwitchToImmutable()
	tsf.PutPoints(1, 2, sampleGroup(0, 20))

	tsf.DeleteSeries([]ids.SeriesId{1}, tsrange.New(0, 100))

	sv := tsf.SuperVersion()
	defer sv.Unref()
	if len(sv.Caches.Mut.GetData(1, nil)) != 0 {
		t.Fatal("expected mutable cache's rows removed")
	}
	if len(sv.Caches.Immuts[0].GetData(1, nil)) != 0 {
		t.Fatal("expected immutable cache's rows removed")
	}
}

func TestVersionEditListsEveryFileAtFixedHighSeq(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	ver := version.New(1, 1)
	ver.Levels[0].PushColumnFile(colFile(t, 1))
	ver.Levels[0].PushColumnFile(colFile(t, 2))
	tsf.NewVersion(ver, 9)

	ve := tsf.VersionEdit(9)
	if !ve.AddVnode {
		t.Fatal("expected AddVnode set")
	}
	if len(ve.AddFiles) != 2 {
		t.Fatalf("expected 2 files listed, got %d", len(ve.AddFiles))
	}
	for _, m := range ve.AddFiles {
		if m.HighSeq != 9 {
			t.Fatalf("expected HighSeq fixed to 9, got %d", m.HighSeq)
		}
	}
	if !ve.HasSeqNo || ve.SeqNo != 9 {
		t.Fatalf("expected SeqNo set to 9, got %+v", ve)
	}
}

func TestDropMarksDroppedAndEmitsDelVnodeEdit(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)
	ver := version.New(1, 1)
	ver.Levels[0].PushColumnFile(colFile(t, 1))
	tsf.NewVersion(ver, 3)

	if tsf.Dropped() {
		t.Fatal("expected not dropped before Drop is called")
	}

	ve := tsf.Drop()
	if !tsf.Dropped() {
		t.Fatal("expected Dropped true after Drop")
	}
	if !ve.DelVnode {
		t.Fatal("expected DelVnode set")
	}
	if len(ve.DelFiles) != 1 || ve.DelFiles[0].FileID != 1 {
		t.Fatalf("expected the vnode's sole file listed for deletion, got %+v", ve.DelFiles)
	}
}

func TestLoggerFatalfMarksVnodeFaulted(t *testing.T) {
	tsf, _ := newTestFamily(t, 1<<20, 4)

	if tsf.Faulted() {
		t.Fatal("expected not faulted before any Fatalf call")
	}

	tsf.Logger().Fatalf("flush vnode %d: disk full", tsf.TsfID)

	if !tsf.Faulted() {
		t.Fatal("expected Faulted true after Logger().Fatalf")
	}
}
