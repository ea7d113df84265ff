// Package superversion implements SuperVersion, the atomically-swappable
// snapshot a query takes a single reference to so it is immune to
// concurrent cache rotations and compactions: a reader holds its own
// reference to the current SuperVersion for the duration of the read.
package superversion

import (
	"sync/atomic"

	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/memcache"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/version"
)

// CacheGroup bundles the mutable cache with the ordered (oldest-first)
// immutable list, as published together in one SuperVersion.
type CacheGroup struct {
	Mut    *memcache.MemCache
	Immuts []*memcache.MemCache
}

// SuperVersion is an immutable, reference-counted snapshot of one vnode's
// full read state: its storage options, its cache group, and its current
// Version. Holding a SuperVersion keeps the embedded Version ref'd for as
// long as the reader is active, so a reader's single reference to the
// current SuperVersion is enough to keep its whole read view alive.
type SuperVersion struct {
	TsfID         ids.TseriesFamilyId
	StorageOpts   *options.StorageOptions
	Caches        CacheGroup
	Version       *version.Version
	VersionNumber uint64

	refs int32
}

// New creates a SuperVersion with one reference already held on behalf of
// the caller (mirroring version.New's refs=1 convention) and takes its own
// reference on ver so the SuperVersion's lifetime keeps ver alive
// independent of whoever else is holding it.
func New(tsfID ids.TseriesFamilyId, storageOpts *options.StorageOptions, caches CacheGroup, ver *version.Version, versionNumber uint64) *SuperVersion {
	ver.Ref()
	return &SuperVersion{
		TsfID:         tsfID,
		StorageOpts:   storageOpts,
		Caches:        caches,
		Version:       ver,
		VersionNumber: versionNumber,
		refs:          1,
	}
}

// Ref increments the reference count. Callers must Ref before handing a
// *SuperVersion to a new reader and Unref when that reader is done.
func (sv *SuperVersion) Ref() {
	atomic.AddInt32(&sv.refs, 1)
}

// Unref decrements the reference count. When it reaches zero, the
// SuperVersion releases its own reference on the embedded Version.
func (sv *SuperVersion) Unref() {
	if atomic.AddInt32(&sv.refs, -1) == 0 {
		sv.Version.Unref()
	}
}

// RefCount reports the current reference count, for tests and diagnostics.
func (sv *SuperVersion) RefCount() int32 {
	return atomic.LoadInt32(&sv.refs)
}

// Holder is the atomic publication point a TSeriesFamily owns: one pointer
// swapped on every switch_to_immutable/flush_req/new_version call, plus a
// monotonically increasing super_version_id.
type Holder struct {
	ptr    atomic.Pointer[SuperVersion]
	nextID uint64
}

// NewHolder creates a Holder already publishing initial, which must come
// with its own reference (as returned by New).
func NewHolder(initial *SuperVersion) *Holder {
	h := &Holder{}
	h.nextID = initial.VersionNumber
	h.ptr.Store(initial)
	return h
}

// Load returns the currently published SuperVersion with an extra
// reference taken on the caller's behalf; the caller must Unref when done.
func (h *Holder) Load() *SuperVersion {
	sv := h.ptr.Load()
	sv.Ref()
	return sv
}

// Publish builds a new SuperVersion from tsfID/storageOpts/caches/ver,
// assigns it the next super_version_id, atomically swaps it in, and
// releases the holder's own reference on the previous one. Returns the
// newly published SuperVersion (with the holder's reference; it does not
// carry an extra reference for the caller — call Load if a reader needs
// one).
func (h *Holder) Publish(tsfID ids.TseriesFamilyId, storageOpts *options.StorageOptions, caches CacheGroup, ver *version.Version) *SuperVersion {
	id := atomic.AddUint64(&h.nextID, 1)
	next := New(tsfID, storageOpts, caches, ver, id)
	old := h.ptr.Swap(next)
	if old != nil {
		old.Unref()
	}
	return next
}
