// Package tsfamily implements TSeriesFamily, the per-vnode owner of a
// mutable cache, its ordered immutable predecessors, and the current
// on-disk Version, publishing all three together as a SuperVersion every
// time any of them changes.
package tsfamily

import (
	"sync"
	"sync/atomic"

	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/logging"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/memcache"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/superversion"
	"github.com/vnodedb/tskv/internal/tsrange"
	"github.com/vnodedb/tskv/internal/version"
)

// FlushReq is one vnode's flushable work: its id and the immutable caches
// selected to be written out, handed to a flush worker by flush_req.
type FlushReq struct {
	TsfID  ids.TseriesFamilyId
	Caches []*memcache.MemCache
}

// TSeriesFamily owns one vnode's write buffers and current Version. All
// mutation of the mutable cache, the immutable list, and the published
// Version happens under mu, so switch_to_immutable/flush_req/new_version
// never race each other; concurrent readers never touch mu at all, since
// they only ever go through a Load()'d SuperVersion.
type TSeriesFamily struct {
	TsfID    ids.TseriesFamilyId
	Database string

	storageRoot string
	cacheOpts   *options.CacheOptions
	storageOpts *options.StorageOptions

	mu     sync.Mutex
	mut    *memcache.MemCache
	immuts []*memcache.MemCache // oldest -> newest

	holder *superversion.Holder

	seqNo      atomic.Uint64
	immutTsMin atomic.Int64
	mutTsMax   atomic.Int64
	dropped    atomic.Bool
	faulted    atomic.Bool

	log *logging.DefaultLogger

	flushSender chan<- FlushReq
}

// New creates a TSeriesFamily over ver (which may be an empty, freshly
// allocated Version) with a fresh mutable cache seeded at seqNo, and
// publishes the initial SuperVersion.
func New(
	tsfID ids.TseriesFamilyId,
	database, storageRoot string,
	storageOpts *options.StorageOptions,
	cacheOpts *options.CacheOptions,
	ver *version.Version,
	seqNo uint64,
	flushSender chan<- FlushReq,
) *TSeriesFamily {
	mut := memcache.New(tsfID, cacheOpts.MaxBufferSize, seqNo)
	sv := superversion.New(tsfID, storageOpts, superversion.CacheGroup{Mut: mut}, ver, ver.VersionNumber)

	tsf := &TSeriesFamily{
		TsfID:       tsfID,
		Database:    database,
		storageRoot: storageRoot,
		cacheOpts:   cacheOpts,
		storageOpts: storageOpts,
		mut:         mut,
		holder:      superversion.NewHolder(sv),
		flushSender: flushSender,
	}
	tsf.seqNo.Store(seqNo)

	tsf.log = logging.NewDefaultLogger(logging.LevelWarn)
	tsf.log.SetFatalHandler(func(msg string) { tsf.faulted.Store(true) })
	return tsf
}

// Logger returns the logger this vnode's owner (the flush and compaction
// workers) should report errors through. Calling Fatalf on it marks the
// vnode Faulted, matching the "flush worker must re-enqueue or mark the
// vnode faulted" requirement: once faulted, Engine.PutPoints and
// Engine.HandleFlushReq refuse the vnode. Nothing clears the flag.
func (tsf *TSeriesFamily) Logger() logging.Logger { return tsf.log }

// Faulted reports whether this vnode's logger has ever had Fatalf called
// on it.
func (tsf *TSeriesFamily) Faulted() bool { return tsf.faulted.Load() }

// SuperVersion returns the currently published SuperVersion with an extra
// reference taken on the caller's behalf; the caller must Unref when done.
func (tsf *TSeriesFamily) SuperVersion() *superversion.SuperVersion {
	return tsf.holder.Load()
}

// SeqNo returns the highest sequence number this vnode has applied.
func (tsf *TSeriesFamily) SeqNo() uint64 { return tsf.seqNo.Load() }

// PutPoints writes group into the mutable cache under sid. Callers must
// guarantee seq is monotonically non-decreasing for this vnode across
// calls; PutPoints does not itself enforce it.
func (tsf *TSeriesFamily) PutPoints(sid ids.SeriesId, seq uint64, group memcache.RowGroup) {
	tsf.mu.Lock()
	tsf.mut.WriteGroup(sid, seq, group)
	tsf.mu.Unlock()

	for {
		cur := tsf.mutTsMax.Load()
		if group.Range.MaxTS <= cur {
			break
		}
		if tsf.mutTsMax.CompareAndSwap(cur, group.Range.MaxTS) {
			break
		}
	}
	for {
		cur := tsf.seqNo.Load()
		if seq <= cur {
			break
		}
		if tsf.seqNo.CompareAndSwap(cur, seq) {
			break
		}
	}
}

// CheckToFlush rotates the mutable cache to immutable if it has filled,
// and returns a FlushReq if the immutable list has also crossed its
// threshold. It is the non-forced path; callers on a flush-interval timer
// use FlushReq(true) instead to force a flush regardless of threshold.
func (tsf *TSeriesFamily) CheckToFlush() *FlushReq {
	tsf.mu.Lock()
	full := tsf.mut.IsFull()
	tsf.mu.Unlock()

	if full {
		tsf.SwitchToImmutable()
	}
	return tsf.FlushReq(false)
}

// SwitchToImmutable moves the current mutable cache onto the immutable
// list and allocates a fresh mutable cache at the current seq_no,
// publishing a new SuperVersion reflecting both changes.
func (tsf *TSeriesFamily) SwitchToImmutable() {
	tsf.mu.Lock()
	defer tsf.mu.Unlock()

	seq := tsf.seqNo.Load()
	tsf.immuts = append(tsf.immuts, tsf.mut)
	tsf.mut = memcache.New(tsf.TsfID, tsf.cacheOpts.MaxBufferSize, seq)
	tsf.mutTsMax.Store(0)

	tsf.publishLocked()
}

// FlushReq reclaims already-flushed immutable caches, then — if force is
// true, or the number of not-yet-flushing immutables has reached
// MaxImmutableNumber — marks every not-yet-flushing immutable as flushing
// and returns the request for a flush worker to execute. Returns nil if no
// flush is due.
func (tsf *TSeriesFamily) FlushReq(force bool) *FlushReq {
	tsf.mu.Lock()
	defer tsf.mu.Unlock()

	kept := tsf.immuts[:0:0]
	reclaimed := false
	for _, c := range tsf.immuts {
		if c.Flushed() {
			reclaimed = true
			continue
		}
		kept = append(kept, c)
	}
	tsf.immuts = kept
	tsf.immutTsMin.Store(tsf.mutTsMax.Load())
	if reclaimed {
		tsf.publishLocked()
	}

	var candidates []*memcache.MemCache
	for _, c := range tsf.immuts {
		if !c.Flushing() {
			candidates = append(candidates, c)
		}
	}
	if !force && uint32(len(candidates)) < tsf.cacheOpts.MaxImmutableNumber {
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, c := range candidates {
		c.SetFlushing(true)
	}
	return &FlushReq{TsfID: tsf.TsfID, Caches: candidates}
}

// NewVersion installs ver as the current Version, advances seq_no to
// lastSeq (the sequence number the edits producing ver were applied
// through), and publishes a new SuperVersion.
func (tsf *TSeriesFamily) NewVersion(ver *version.Version, lastSeq uint64) {
	tsf.mu.Lock()
	defer tsf.mu.Unlock()

	for {
		cur := tsf.seqNo.Load()
		if lastSeq <= cur {
			break
		}
		if tsf.seqNo.CompareAndSwap(cur, lastSeq) {
			break
		}
	}
	tsf.publishLockedWithVersion(ver)
}

// publishLocked republishes the current mutable/immutable caches against
// the already-published Version. Callers must hold mu.
func (tsf *TSeriesFamily) publishLocked() {
	cur := tsf.holder.Load()
	ver := cur.Version
	cur.Unref()
	tsf.holder.Publish(tsf.TsfID, tsf.storageOpts, superversion.CacheGroup{Mut: tsf.mut, Immuts: append([]*memcache.MemCache(nil), tsf.immuts...)}, ver)
}

// publishLockedWithVersion republishes with ver as the new current
// Version. Callers must hold mu.
func (tsf *TSeriesFamily) publishLockedWithVersion(ver *version.Version) {
	tsf.holder.Publish(tsf.TsfID, tsf.storageOpts, superversion.CacheGroup{Mut: tsf.mut, Immuts: append([]*memcache.MemCache(nil), tsf.immuts...)}, ver)
}

// DeleteSeries forwards a tombstone to every cache still in memory: the
// mutable cache and every immutable one, so a read through any of them
// stays consistent with an already-written tombstone record.
func (tsf *TSeriesFamily) DeleteSeries(sids []ids.SeriesId, tr tsrange.TimeRange) {
	tsf.forEachCache(func(mc *memcache.MemCache) { mc.DeleteSeries(sids, tr) })
}

// AddColumn forwards a schema-add to every in-memory cache.
func (tsf *TSeriesFamily) AddColumn(sids []ids.SeriesId, newField ids.FieldId) {
	tsf.forEachCache(func(mc *memcache.MemCache) { mc.AddColumn(sids, newField) })
}

// ChangeColumn forwards a schema-rename to every in-memory cache.
func (tsf *TSeriesFamily) ChangeColumn(sids []ids.SeriesId, oldField, newField ids.FieldId) {
	tsf.forEachCache(func(mc *memcache.MemCache) { mc.ChangeColumn(sids, oldField, newField) })
}

// DeleteColumns forwards a schema-drop to every in-memory cache.
func (tsf *TSeriesFamily) DeleteColumns(fieldIDs []ids.FieldId) {
	tsf.forEachCache(func(mc *memcache.MemCache) { mc.DeleteColumns(fieldIDs) })
}

func (tsf *TSeriesFamily) forEachCache(fn func(*memcache.MemCache)) {
	tsf.mu.Lock()
	defer tsf.mu.Unlock()
	fn(tsf.mut)
	for _, c := range tsf.immuts {
		fn(c)
	}
}

// VersionEdit snapshots the current Version as an ADD_VNODE edit
// listing every file it currently holds, with HighSeq fixed to lastSeq —
// the edit a fresh summary-log checkpoint writes so recovery can
// reconstruct this vnode without replaying every edit since its creation.
func (tsf *TSeriesFamily) VersionEdit(lastSeq uint64) *manifest.VersionEdit {
	sv := tsf.SuperVersion()
	defer sv.Unref()

	ve := manifest.NewVersionEdit(tsf.TsfID)
	ve.AddVnode = true
	for _, lvl := range sv.Version.Levels {
		for _, f := range lvl.Files {
			ve.AddFile(manifest.CompactMeta{
				FileID:    f.FileID,
				Level:     f.Level,
				FileSize:  f.FileSize,
				TimeRange: f.TimeRange,
				IsDelta:   f.IsDelta,
				TsfID:     f.TsfID,
				HighSeq:   lastSeq,
				LowSeq:    f.LowSeq,
			})
		}
	}
	ve.SetSeqNo(lastSeq)
	return ve
}

// Drop marks this vnode removed: it returns a DEL_VNODE edit listing every
// file currently held (for the summary log to record, and for a caller to
// schedule physical file deletion from), and sets dropped so any
// in-flight flush or compaction result for this vnode is discarded on
// completion instead of installed.
func (tsf *TSeriesFamily) Drop() *manifest.VersionEdit {
	tsf.dropped.Store(true)

	sv := tsf.SuperVersion()
	defer sv.Unref()

	ve := manifest.NewVersionEdit(tsf.TsfID)
	ve.DelVnode = true
	for _, lvl := range sv.Version.Levels {
		for _, f := range lvl.Files {
			ve.DelFile(manifest.CompactMeta{
				FileID:    f.FileID,
				Level:     f.Level,
				FileSize:  f.FileSize,
				TimeRange: f.TimeRange,
				IsDelta:   f.IsDelta,
				TsfID:     f.TsfID,
				HighSeq:   f.HighSeq,
				LowSeq:    f.LowSeq,
			})
		}
	}
	return ve
}

// Dropped reports whether Drop has been called, the signal a flush or
// compaction worker checks before installing its result's VersionEdit.
func (tsf *TSeriesFamily) Dropped() bool { return tsf.dropped.Load() }
