package engine

import (
	"testing"

	tskverrors "github.com/vnodedb/tskv/internal/errors"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/memcache"
	"github.com/vnodedb/tskv/internal/meta"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/summary"
	"github.com/vnodedb/tskv/internal/tsfamily"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/vfs"
)

func sampleGroup(ts int64) memcache.RowGroup {
	field := ids.NewFieldId(1, 1)
	return memcache.RowGroup{
		SchemaID: 0,
		Schema:   []ids.FieldId{field},
		Range:    tsrange.New(ts, ts),
		Rows: []memcache.RowData{{
			Ts:     ts,
			Fields: []*memcache.FieldVal{memcache.NewIntegerVal(42)},
		}},
		Size: 64,
	}
}

func newTestEngine(t *testing.T, storageRoot string) (*Engine, *meta.Fake) {
	t.Helper()
	mc := meta.NewFake(86400)
	cacheOpts := &options.CacheOptions{MaxBufferSize: 50, MaxImmutableNumber: 1}
	storageOpts := options.DefaultStorageOptions()
	e := New(vfs.Default(), storageRoot, storageOpts, cacheOpts, mc, 1)
	return e, mc
}

func TestPutPointsTriggersFlushAndInstallsVersion(t *testing.T) {
	root := t.TempDir()
	e, _ := newTestEngine(t, root)

	if err := e.CreateDatabase("acme", "metrics"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	tsf, err := e.OpenVnode("acme", "metrics", 1)
	if err != nil {
		t.Fatalf("OpenVnode: %v", err)
	}

	if err := e.PutPoints(1, 1, 1, sampleGroup(10)); err != nil {
		t.Fatalf("PutPoints: %v", err)
	}

	var req tsfamily.FlushReq
	select {
	case req = <-e.flushCh:
	default:
		t.Fatal("expected a FlushReq enqueued once the mutable cache filled")
	}
	if len(req.Caches) != 1 {
		t.Fatalf("expected 1 cache selected, got %d", len(req.Caches))
	}

	if err := e.HandleFlushReq(req); err != nil {
		t.Fatalf("HandleFlushReq: %v", err)
	}

	if !req.Caches[0].Flushed() {
		t.Fatal("expected the cache marked flushed")
	}

	sv := tsf.SuperVersion()
	defer sv.Unref()
	if len(sv.Version.Levels[0].Files) != 1 {
		t.Fatalf("expected 1 file installed at level 0, got %d", len(sv.Version.Levels[0].Files))
	}

	edits, err := summary.ReadAll(vfs.Default(), summaryPath(root, "acme/metrics", 1))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(edits) != 1 || len(edits[0].AddFiles) != 1 {
		t.Fatalf("expected 1 recorded edit adding 1 file, got %+v", edits)
	}
}

func TestOpenVnodeRecoversAcrossEngineInstances(t *testing.T) {
	root := t.TempDir()
	e1, _ := newTestEngine(t, root)
	if err := e1.CreateDatabase("acme", "metrics"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if _, err := e1.OpenVnode("acme", "metrics", 1); err != nil {
		t.Fatalf("OpenVnode: %v", err)
	}
	if err := e1.PutPoints(1, 1, 1, sampleGroup(10)); err != nil {
		t.Fatalf("PutPoints: %v", err)
	}
	req := <-e1.flushCh
	if err := e1.HandleFlushReq(req); err != nil {
		t.Fatalf("HandleFlushReq: %v", err)
	}

	e2, _ := newTestEngine(t, root)
	if err := e2.CreateDatabase("acme", "metrics"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	tsf2, err := e2.OpenVnode("acme", "metrics", 1)
	if err != nil {
		t.Fatalf("OpenVnode on restart: %v", err)
	}

	sv := tsf2.SuperVersion()
	defer sv.Unref()
	if len(sv.Version.Levels[0].Files) != 1 {
		t.Fatalf("expected the flushed file recovered, got %d files", len(sv.Version.Levels[0].Files))
	}
	if tsf2.SeqNo() == 0 {
		t.Fatal("expected seq_no recovered from the summary log")
	}
}

func TestDropDatabaseRecordsDelVnodeEdit(t *testing.T) {
	root := t.TempDir()
	e, _ := newTestEngine(t, root)
	if err := e.CreateDatabase("acme", "metrics"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if _, err := e.OpenVnode("acme", "metrics", 1); err != nil {
		t.Fatalf("OpenVnode: %v", err)
	}

	if err := e.DropDatabase("acme", "metrics"); err != nil {
		t.Fatalf("DropDatabase: %v", err)
	}

	edits, err := summary.ReadAll(vfs.Default(), summaryPath(root, "acme/metrics", 1))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(edits) != 1 || !edits[0].DelVnode {
		t.Fatalf("expected 1 DEL_VNODE edit recorded, got %+v", edits)
	}
}

func TestFaultedVnodeRefusesWrites(t *testing.T) {
	root := t.TempDir()
	e, _ := newTestEngine(t, root)
	if err := e.CreateDatabase("acme", "metrics"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	tsf, err := e.OpenVnode("acme", "metrics", 1)
	if err != nil {
		t.Fatalf("OpenVnode: %v", err)
	}

	tsf.Logger().Fatalf("simulated flush failure")

	if err := e.PutPoints(1, 1, 1, sampleGroup(10)); !tskverrors.Is(err, tskverrors.ErrVnodeFaulted) {
		t.Fatalf("expected ErrVnodeFaulted, got %v", err)
	}
}

func TestCreateDatabaseWrapsMetaClientFailure(t *testing.T) {
	root := t.TempDir()
	mc := meta.NewFake(86400)
	mc.FailNextLookup = true
	cacheOpts := &options.CacheOptions{MaxBufferSize: 50, MaxImmutableNumber: 1}
	storageOpts := options.DefaultStorageOptions()
	e := New(vfs.Default(), root, storageOpts, cacheOpts, mc, 1)

	if err := e.CreateDatabase("acme", "metrics"); !tskverrors.Is(err, tskverrors.ErrMetaUnavailable) {
		t.Fatalf("expected ErrMetaUnavailable, got %v", err)
	}
}
