// Package engine implements Engine, the façade wiring VersionSet, the
// per-vnode flush pipeline, and the compaction picker into one entry
// point: the process-wide object a server binary constructs once and
// drives with PutPoints/OpenVnode/CreateDatabase calls.
package engine

import (
	"fmt"
	"path/filepath"

	"github.com/vnodedb/tskv/internal/compaction"
	tskverrors "github.com/vnodedb/tskv/internal/errors"
	"github.com/vnodedb/tskv/internal/flush"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/logging"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/memcache"
	"github.com/vnodedb/tskv/internal/meta"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/summary"
	"github.com/vnodedb/tskv/internal/tsfamily"
	"github.com/vnodedb/tskv/internal/version"
	"github.com/vnodedb/tskv/internal/versionset"
	"github.com/vnodedb/tskv/internal/vfs"
)

// Engine bundles VersionSet (the database/vnode registry), the shared
// process-wide file-id allocator, and the flush channel every vnode is
// wired to feed — the three collaborators a vnode needs beyond its own
// state, kept here rather than duplicated into every TSeriesFamily.
type Engine struct {
	fs          vfs.FS
	storageRoot string
	storageOpts *options.StorageOptions
	cacheOpts   *options.CacheOptions
	metaClient  meta.Client
	fileAlloc   *ids.FileIDAllocator
	picker      *compaction.Picker

	flushCh chan tsfamily.FlushReq
	vs      *versionset.VersionSet

	// Log is the engine-wide logger for events not scoped to a single
	// vnode (schema lookups, database lifecycle). Per-vnode events log
	// through the owning TSeriesFamily's own logger instead, since that is
	// also where Fatalf's vnode-faulted wiring lives.
	Log logging.Logger

	// OnCompactionPending is called whenever a flush completion leaves a
	// vnode's Version with a level ready to compact. The default engine
	// assembles the CompactReq but does not execute it — there is no
	// compaction-merge worker in this build, only the picker (spec's
	// compaction surface is the policy, not an executor) — so by default
	// this is a no-op; callers needing actual merge execution can replace
	// it with one.
	OnCompactionPending func(*compaction.Req)
}

// New constructs an Engine. fileIDStart seeds the shared file-id
// allocator, normally 1 for a fresh cluster or the recovered high-water
// mark for a restarted process.
func New(fs vfs.FS, storageRoot string, storageOpts *options.StorageOptions, cacheOpts *options.CacheOptions, metaClient meta.Client, fileIDStart uint64) *Engine {
	fileAlloc := ids.NewFileIDAllocator(fileIDStart)
	flushCh := make(chan tsfamily.FlushReq, 64)
	vs := versionset.New(storageRoot, storageOpts, cacheOpts, fileAlloc, flushCh)

	return &Engine{
		fs:          fs,
		storageRoot: storageRoot,
		storageOpts: storageOpts,
		cacheOpts:   cacheOpts,
		metaClient:  metaClient,
		fileAlloc:   fileAlloc,
		picker:      compaction.NewPicker(storageOpts),
		flushCh:     flushCh,
		vs:          vs,
		Log:         logging.NewDefaultLogger(logging.LevelWarn),
		OnCompactionPending: func(*compaction.Req) {},
	}
}

// VersionSet exposes the underlying registry for read-only queries
// (listing, by-id lookup) that don't belong on Engine itself.
func (e *Engine) VersionSet() *versionset.VersionSet { return e.vs }

func summaryPath(storageRoot, database string, tfID ids.TseriesFamilyId) string {
	return filepath.Join(storageRoot, database, fmt.Sprintf("%d", tfID), "summary", "summary.log")
}

// CreateDatabase registers tenant/database, looking up its schema from
// the metadata client (falling back to a bare default schema if the
// tenant or database isn't known there yet, mirroring how a brand-new
// database is created before its metadata entry propagates).
func (e *Engine) CreateDatabase(tenant, database string) error {
	schema, ok, err := e.metaClient.GetDBSchema(tenant, database)
	if err != nil {
		return fmt.Errorf("engine: look up schema for %s/%s: %v: %w", tenant, database, err, tskverrors.ErrMetaUnavailable)
	}
	if !ok {
		e.Log.Warnf(logging.NSMeta+"no schema registered for %s/%s yet, creating with a bare default schema", tenant, database)
		schema = meta.DatabaseSchema{Tenant: tenant, Database: database}
	}
	return e.vs.CreateDatabase(schema)
}

// DropDatabase removes tenant/database and every vnode within it from the
// registry, then appends a DEL_VNODE edit to each dropped vnode's summary
// log.
func (e *Engine) DropDatabase(tenant, database string) error {
	edits, err := e.vs.DropDatabase(tenant, database)
	if err != nil {
		return err
	}
	owner := tenant + "/" + database
	for _, edit := range edits {
		path := summaryPath(e.storageRoot, owner, edit.TsfID)
		if err := summary.NewWriter(e.fs, path).Append(edit); err != nil {
			return fmt.Errorf("engine: record drop for vnode %d: %w", edit.TsfID, err)
		}
	}
	return nil
}

// OpenVnode recovers tfID's Version (and the sequence it was last applied
// through) from its summary log, registers it with VersionSet, and
// advances the shared file-id allocator past every file id the recovered
// Version references so new flushes never reuse one.
func (e *Engine) OpenVnode(tenant, database string, tfID ids.TseriesFamilyId) (*tsfamily.TSeriesFamily, error) {
	owner := tenant + "/" + database
	path := summaryPath(e.storageRoot, owner, tfID)

	ver, lastSeq, err := summary.Recover(e.fs, path, tfID, e.storageRoot, owner, 0)
	if err != nil {
		return nil, fmt.Errorf("engine: recover vnode %d: %w", tfID, err)
	}
	for _, lvl := range ver.Levels {
		for _, f := range lvl.Files {
			e.fileAlloc.Observe(f.FileID)
		}
	}

	return e.vs.OpenTSFamily(tenant, database, tfID, ver, lastSeq)
}

// PutPoints writes group into tfID's mutable cache and, if that crosses a
// flush threshold, enqueues the resulting FlushReq onto the flush
// channel for RunFlushWorker to pick up.
func (e *Engine) PutPoints(tfID ids.TseriesFamilyId, sid ids.SeriesId, seq uint64, group memcache.RowGroup) error {
	tsf, ok := e.vs.GetTSFamilyByID(tfID)
	if !ok {
		return fmt.Errorf("engine: vnode %d not open", tfID)
	}
	if tsf.Faulted() {
		return fmt.Errorf("engine: vnode %d: %w", tfID, tskverrors.ErrVnodeFaulted)
	}
	tsf.PutPoints(sid, seq, group)
	if req := tsf.CheckToFlush(); req != nil {
		e.flushCh <- *req
	}
	return nil
}

// RunFlushWorker drains the flush channel until it's closed, handling
// each FlushReq as it arrives. A production server runs this in its own
// goroutine; tests call HandleFlushReq directly for determinism instead.
func (e *Engine) RunFlushWorker() error {
	for req := range e.flushCh {
		if err := e.HandleFlushReq(req); err != nil {
			return err
		}
	}
	return nil
}

// HandleFlushReq writes every cache in req out as a TSM file, folds the
// resulting edits into tfID's Version, records them in the summary log,
// marks each cache flushed, and checks whether the new Version has a
// level ready to compact.
func (e *Engine) HandleFlushReq(req tsfamily.FlushReq) error {
	tsf, ok := e.vs.GetTSFamilyByID(req.TsfID)
	if !ok {
		return fmt.Errorf("engine: vnode %d not open", req.TsfID)
	}
	if tsf.Dropped() {
		return nil
	}
	if tsf.Faulted() {
		return fmt.Errorf("engine: vnode %d: %w", req.TsfID, tskverrors.ErrVnodeFaulted)
	}

	owner := tsf.Database
	job := flush.NewJob(e.fs, e.storageRoot, owner, req.TsfID, e.fileAlloc, e.storageOpts.Compression)
	path := summaryPath(e.storageRoot, owner, req.TsfID)
	writer := summary.NewWriter(e.fs, path)

	sv := tsf.SuperVersion()
	baseVer := sv.Version
	builder := version.NewBuilder(baseVer, e.storageRoot, owner, e.fs)
	sv.Unref()

	flushedAny := false
	for _, cache := range req.Caches {
		result, err := job.Run(cache)
		if err == flush.ErrNoOutput {
			cache.MarkFlushed()
			continue
		}
		if err != nil {
			// A flush failure leaves this cache un-flushed and is not
			// recoverable by retrying within this request: mark the vnode
			// faulted (refusing further writes and flushes) rather than
			// returning an error that would kill RunFlushWorker for every
			// other vnode sharing the flush channel.
			tsf.Logger().Fatalf(logging.NSFlush+"flush vnode %d: %v", req.TsfID, err)
			return nil
		}
		if err := writer.Append(result.Edit); err != nil {
			tsf.Logger().Fatalf(logging.NSFlush+"record flush edit for vnode %d: %v", req.TsfID, err)
			return nil
		}
		builder.Apply(result.Edit)
		builder.SetFilter(result.FileID, result.Filter)
		cache.MarkFlushed()
		flushedAny = true
	}

	if flushedAny {
		nextVersion := builder.SaveTo(req.TsfID, baseVer.VersionNumber+1)
		if tsf.Dropped() {
			return nil
		}
		tsf.NewVersion(nextVersion, nextVersion.LastSeq)

		if e.picker.NeedsCompaction(nextVersion) {
			if compactReq := e.picker.Pick(owner, nextVersion); compactReq != nil {
				compactReq.MarkInputsCompacting(true)
				e.OnCompactionPending(compactReq)
			}
		}
	}

	tsf.FlushReq(false)
	return nil
}

// CompactMetaFromEdit is a convenience accessor tests use to inspect one
// added file from an applied flush edit without reaching into
// manifest.VersionEdit's internals directly.
func CompactMetaFromEdit(edit *manifest.VersionEdit, fileID ids.ColumnFileId) (manifest.CompactMeta, bool) {
	for _, m := range edit.AddFiles {
		if m.FileID == fileID {
			return m, true
		}
	}
	return manifest.CompactMeta{}, false
}
