// Package flush implements the flush job: writing an immutable MemCache
// out as a TSM file and producing the VersionEdit that installs it.
package flush

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vnodedb/tskv/internal/columnfile"
	"github.com/vnodedb/tskv/internal/compression"
	"github.com/vnodedb/tskv/internal/filter"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/memcache"
	"github.com/vnodedb/tskv/internal/tsm"
	"github.com/vnodedb/tskv/internal/vfs"
)

// ErrNoOutput is returned when a cache has no buffered rows to flush.
var ErrNoOutput = errors.New("flush: no output")

// Result is what a flush job produces: the VersionEdit to install and the
// filter built while writing, so the caller can attach it directly to the
// ColumnFile Builder.SaveTo constructs instead of paying to rebuild it
// from the file's index on first read.
type Result struct {
	Edit   *manifest.VersionEdit
	FileID ids.ColumnFileId
	Filter *filter.FieldFilter
}

// Job writes one immutable MemCache out as a single TSM file at level 0.
type Job struct {
	fs          vfs.FS
	storageRoot string
	database    string
	tsfID       ids.TseriesFamilyId
	fileAlloc   *ids.FileIDAllocator
	compression compression.Type
}

// NewJob creates a Job that allocates file ids from fileAlloc and writes
// under storageRoot/database/<tsfID>/tsm/.
func NewJob(fs vfs.FS, storageRoot, database string, tsfID ids.TseriesFamilyId, fileAlloc *ids.FileIDAllocator, compressionType compression.Type) *Job {
	return &Job{
		fs:          fs,
		storageRoot: storageRoot,
		database:    database,
		tsfID:       tsfID,
		fileAlloc:   fileAlloc,
		compression: compressionType,
	}
}

// Run writes cache's buffered rows to a new level-0 TSM file and returns
// the VersionEdit that installs it plus the filter built while writing.
// It does not mark the cache flushed, forward the edit to the summary log,
// or trigger a compaction — the caller (Engine.HandleFlushReq) does those
// once the edit is durable. The caller should attach
// Result.Filter to the ColumnFile the version builder constructs for
// Result.FileID, so the first query against the file skips the rebuild
// ColumnFile.EnsureFilter would otherwise do from the file's own index.
func (j *Job) Run(cache *memcache.MemCache) (*Result, error) {
	byField := make(map[ids.FieldId][]tsm.Point)
	for _, g := range cache.AllGroups() {
		for _, row := range g.Rows {
			for i, val := range row.Fields {
				if val == nil {
					continue
				}
				fieldID := g.Schema[i]
				byField[fieldID] = append(byField[fieldID], tsm.Point{Ts: row.Ts, Val: toTSMValue(val)})
			}
		}
	}
	if len(byField) == 0 {
		return nil, ErrNoOutput
	}

	fileID := j.fileAlloc.Next()
	path := columnfile.Path(j.storageRoot, j.database, j.tsfID, fileID, false)
	if err := j.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("flush: create tsm directory: %w", err)
	}

	file, err := j.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("flush: create tsm file: %w", err)
	}
	defer file.Close()

	w := tsm.NewWriter(file, j.compression)
	bloom := filter.New()
	for fieldID, points := range byField {
		sort.Slice(points, func(a, b int) bool { return points[a].Ts < points[b].Ts })
		if _, err := w.WriteFieldBlock(fieldID, points); err != nil {
			return nil, fmt.Errorf("flush: write field %d block: %w", fieldID, err)
		}
		bloom.AddFieldID(fieldID.Bytes())
	}

	tr, _, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("flush: finish tsm file: %w", err)
	}

	fileSize, err := file.Size()
	if err != nil {
		return nil, fmt.Errorf("flush: stat tsm file: %w", err)
	}

	if err := j.fs.SyncDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("flush: sync tsm directory: %w", err)
	}

	ve := manifest.NewVersionEdit(j.tsfID)
	ve.AddFile(manifest.CompactMeta{
		FileID:    fileID,
		Level:     0,
		FileSize:  uint64(fileSize),
		TimeRange: tr,
		IsDelta:   false,
		TsfID:     j.tsfID,
		HighSeq:   cache.HighSeq(),
		LowSeq:    cache.LowSeq(),
	})
	ve.SetSeqNo(cache.HighSeq())

	return &Result{Edit: ve, FileID: fileID, Filter: bloom}, nil
}

func toTSMValue(v *memcache.FieldVal) tsm.Value {
	switch v.Kind {
	case memcache.FieldValFloat:
		return tsm.Value{Kind: tsm.ValueFloat, Float: v.Float}
	case memcache.FieldValInteger:
		return tsm.Value{Kind: tsm.ValueInteger, Int: v.Int}
	case memcache.FieldValUnsigned:
		return tsm.Value{Kind: tsm.ValueUnsigned, Uint: v.Uint}
	case memcache.FieldValBoolean:
		return tsm.Value{Kind: tsm.ValueBoolean, Bool: v.Bool}
	default:
		return tsm.Value{Kind: tsm.ValueBytes, Bytes: v.Bytes}
	}
}
