// Package options collects the per-package Options struct + Default*Options
// constructor convention this codebase follows throughout: StorageOptions
// governs on-disk layout and compaction sizing, CacheOptions governs
// MemCache/immutable-list sizing.
package options

import "github.com/vnodedb/tskv/internal/compression"

// StorageOptions configures where and how column files are laid out and
// compacted for one database.
type StorageOptions struct {
	// Path names a storage root. Engine and VersionSet take their storage
	// root as a separate argument and do not read this field; files are laid
	// out as <root>/<database>/<vnode_id>/{tsm,delta}/<file_id>.{tsm,delta}.
	Path string

	// MaxLevelFileSizeBase is the target total file size for level 1;
	// level N's target is MaxLevelFileSizeBase * MaxLevelFileSizeMultiplier^(N-1).
	MaxLevelFileSizeBase uint64

	// MaxLevelFileSizeMultiplier is the per-level size growth factor.
	MaxLevelFileSizeMultiplier float64

	// Compression is the block compression algorithm new TSM files are
	// written with.
	Compression compression.Type
}

// DefaultStorageOptions returns sensible defaults for a new database.
func DefaultStorageOptions() *StorageOptions {
	return &StorageOptions{
		Path:                       "/var/lib/tskv/data",
		MaxLevelFileSizeBase:       256 * 1024 * 1024,
		MaxLevelFileSizeMultiplier: 10,
		Compression:                compression.ZstdCompression,
	}
}

// LevelMaxSize returns the target aggregate size for the given level
// (0-indexed; level 0 has no target, it flushes on immutable-count alone).
func (o *StorageOptions) LevelMaxSize(level int) uint64 {
	if level <= 0 {
		return 0
	}
	size := float64(o.MaxLevelFileSizeBase)
	for i := 1; i < level; i++ {
		size *= o.MaxLevelFileSizeMultiplier
	}
	return uint64(size)
}

// CacheOptions configures MemCache sizing and flush scheduling.
type CacheOptions struct {
	// MaxBufferSize is the approximate byte size at which MemCache.IsFull
	// starts returning true.
	MaxBufferSize uint64

	// MaxImmutableNumber is the number of not-yet-flushing immutable
	// caches that triggers an automatic (non-forced) FlushReq.
	MaxImmutableNumber uint32
}

// DefaultCacheOptions returns sensible defaults for a new database.
func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		MaxBufferSize:      128 * 1024 * 1024,
		MaxImmutableNumber: 4,
	}
}
