// Package memcache implements MemCache, the per-vnode mutable row buffer
// that TSeriesFamily.put_points writes into before a flush persists it as a
// TSM file. A MemCache is single-writer (TSeriesFamily.PutPoints holds the
// series-family lock while it calls WriteGroup) but multi-reader:
// queries hold a SuperVersion and read concurrently with writes landing in
// a newer, unrelated partition.
package memcache

import (
	"sync"
	"sync/atomic"

	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
)

// MemCache is the mutable (or, once rotated, immutable) write buffer owned
// by one TSeriesFamily. Its lifecycle moves through distinct states:
// Mutable -> Immutable (switch_to_immutable) -> Flushing (flush_req
// selection) -> Flushed (flush worker) -> Reclaimed (next flush_req sweep
// drops it from the immutable list).
type MemCache struct {
	TsfID   ids.TseriesFamilyId
	maxSize uint64

	mu         sync.RWMutex
	partitions map[seriesSchemaKey]*seriesPartition

	size     atomic.Uint64
	lowSeq   atomic.Uint64
	highSeq  atomic.Uint64
	flushed  atomic.Bool
	flushing atomic.Bool
}

// New creates an empty MemCache. minSeq seeds LowSeq so a cache that never
// receives a write still reports a well-defined (if empty) sequence range.
func New(tsfID ids.TseriesFamilyId, maxSize uint64, minSeq uint64) *MemCache {
	mc := &MemCache{
		TsfID:      tsfID,
		maxSize:    maxSize,
		partitions: make(map[seriesSchemaKey]*seriesPartition),
	}
	mc.lowSeq.Store(minSeq)
	mc.highSeq.Store(minSeq)
	return mc
}

// WriteGroup merges group into the per-(series,schema) vector. Callers
// must guarantee seq is monotonically non-decreasing per vnode; WriteGroup
// does not itself enforce it.
func (mc *MemCache) WriteGroup(sid ids.SeriesId, seq uint64, group RowGroup) {
	mc.mu.Lock()
	key := seriesSchemaKey{SeriesID: sid, SchemaID: group.SchemaID}
	p, ok := mc.partitions[key]
	if !ok {
		p = &seriesPartition{Range: group.Range}
		mc.partitions[key] = p
	} else {
		p.Range = p.Range.Merge(group.Range)
	}
	p.Groups = append(p.Groups, group)
	mc.mu.Unlock()

	mc.size.Add(uint64(group.Size))
	for {
		cur := mc.lowSeq.Load()
		if cur != 0 && cur <= seq {
			break
		}
		if mc.lowSeq.CompareAndSwap(cur, seq) {
			break
		}
	}
	for {
		cur := mc.highSeq.Load()
		if cur >= seq {
			break
		}
		if mc.highSeq.CompareAndSwap(cur, seq) {
			break
		}
	}
}

// IsFull reports whether accumulated RowGroup.Size has crossed maxSize,
// the signal TSeriesFamily.check_to_flush uses to rotate this cache to
// immutable.
func (mc *MemCache) IsFull() bool {
	return mc.size.Load() >= mc.maxSize
}

// Size returns the accumulated approximate byte size of all writes.
func (mc *MemCache) Size() uint64 { return mc.size.Load() }

// LowSeq and HighSeq report the inclusive sequence-number range of this
// cache: the minSeq it was created with, widened by every write's seq (a
// minSeq of 0 is replaced by the first write's seq). The flush worker uses
// them to populate a flushed file's CompactMeta.LowSeq/HighSeq.
func (mc *MemCache) LowSeq() uint64  { return mc.lowSeq.Load() }
func (mc *MemCache) HighSeq() uint64 { return mc.highSeq.Load() }

// Flushed and Flushing are the monotone phase flags the flush worker and
// flush_req sweep drive: Flushing is set true when a cache is selected into
// a FlushReq; Flushed is set true once the worker finishes writing it out.
func (mc *MemCache) Flushed() bool  { return mc.flushed.Load() }
func (mc *MemCache) Flushing() bool { return mc.flushing.Load() }

// SetFlushing marks the cache as selected into an in-flight FlushReq.
func (mc *MemCache) SetFlushing(v bool) { mc.flushing.Store(v) }

// MarkFlushed marks the cache as durably persisted; flush_req's next sweep
// will drop it from the immutable list.
func (mc *MemCache) MarkFlushed() { mc.flushed.Store(true) }

// SeriesIDs returns the distinct series with at least one non-empty
// RowGroup currently buffered.
func (mc *MemCache) SeriesIDs() []ids.SeriesId {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	seen := make(map[ids.SeriesId]struct{})
	var out []ids.SeriesId
	for key, p := range mc.partitions {
		if len(p.Groups) == 0 {
			continue
		}
		if _, ok := seen[key.SeriesID]; ok {
			continue
		}
		seen[key.SeriesID] = struct{}{}
		out = append(out, key.SeriesID)
	}
	return out
}

// GetData returns every buffered RowGroup for sid whose Schema contains at
// least one field accepted by fieldFilter. A nil fieldFilter accepts
// everything.
func (mc *MemCache) GetData(sid ids.SeriesId, fieldFilter func(ids.FieldId) bool) []RowGroup {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var out []RowGroup
	for key, p := range mc.partitions {
		if key.SeriesID != sid {
			continue
		}
		for _, g := range p.Groups {
			if len(g.Rows) == 0 {
				continue
			}
			if fieldFilter == nil || groupHasField(g, fieldFilter) {
				out = append(out, g)
			}
		}
	}
	return out
}

func groupHasField(g RowGroup, fieldFilter func(ids.FieldId) bool) bool {
	for _, f := range g.Schema {
		if fieldFilter(f) {
			return true
		}
	}
	return false
}

// AllGroups returns every non-empty RowGroup buffered across every series
// and schema, the view a flush job walks to write out a TSM file: a
// RowGroup's Schema entries are FieldIds, which already encode their
// owning series, so flush needs no further series grouping.
func (mc *MemCache) AllGroups() []RowGroup {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var out []RowGroup
	for _, p := range mc.partitions {
		for _, g := range p.Groups {
			if len(g.Rows) == 0 {
				continue
			}
			out = append(out, g)
		}
	}
	return out
}

// DeleteSeries tombstones every row of every matching series whose
// timestamp falls inside tr: it is dropped from memory immediately rather
// than carried as an on-disk tombstone, since nothing has been flushed
// yet. The surviving rows are copied into new slices, so the deleted rows
// are released as soon as nothing else references the old ones.
func (mc *MemCache) DeleteSeries(sids []ids.SeriesId, tr tsrange.TimeRange) {
	want := make(map[ids.SeriesId]struct{}, len(sids))
	for _, s := range sids {
		want[s] = struct{}{}
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, p := range mc.partitions {
		if _, ok := want[key.SeriesID]; !ok {
			continue
		}
		var kept []RowGroup
		for _, g := range p.Groups {
			rows := g.Rows[:0:0]
			for _, r := range g.Rows {
				if tr.Contains(r.Ts) {
					continue
				}
				rows = append(rows, r)
			}
			if len(rows) == 0 {
				continue
			}
			g.Rows = rows
			kept = append(kept, g)
		}
		if len(kept) == 0 {
			delete(mc.partitions, key)
			continue
		}
		p.Groups = kept
	}
}

// AddColumn appends newField to the schema of every RowGroup belonging to
// one of sids, with a nil value in every existing row.
func (mc *MemCache) AddColumn(sids []ids.SeriesId, newField ids.FieldId) {
	want := seriesSet(sids)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, p := range mc.partitions {
		if _, ok := want[key.SeriesID]; !ok {
			continue
		}
		for gi := range p.Groups {
			g := &p.Groups[gi]
			g.Schema = append(g.Schema, newField)
			for ri := range g.Rows {
				g.Rows[ri].Fields = append(g.Rows[ri].Fields, nil)
			}
		}
	}
}

// ChangeColumn renames oldField to newField in place, for every matching
// series, preserving already-written values.
func (mc *MemCache) ChangeColumn(sids []ids.SeriesId, oldField, newField ids.FieldId) {
	want := seriesSet(sids)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, p := range mc.partitions {
		if _, ok := want[key.SeriesID]; !ok {
			continue
		}
		for gi := range p.Groups {
			g := &p.Groups[gi]
			for i, f := range g.Schema {
				if f == oldField {
					g.Schema[i] = newField
				}
			}
		}
	}
}

// DeleteColumns removes fieldIDs from every RowGroup in the cache,
// regardless of series — it applies atomically across every row group
// buffered in the cache.
func (mc *MemCache) DeleteColumns(fieldIDs []ids.FieldId) {
	drop := make(map[ids.FieldId]struct{}, len(fieldIDs))
	for _, f := range fieldIDs {
		drop[f] = struct{}{}
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, p := range mc.partitions {
		for gi := range p.Groups {
			p.Groups[gi] = dropFields(p.Groups[gi], drop)
		}
	}
}

func dropFields(g RowGroup, drop map[ids.FieldId]struct{}) RowGroup {
	keepIdx := make([]int, 0, len(g.Schema))
	schema := make([]ids.FieldId, 0, len(g.Schema))
	for i, f := range g.Schema {
		if _, gone := drop[f]; gone {
			continue
		}
		keepIdx = append(keepIdx, i)
		schema = append(schema, f)
	}
	if len(keepIdx) == len(g.Schema) {
		return g
	}
	g.Schema = schema
	for ri := range g.Rows {
		fields := make([]*FieldVal, len(keepIdx))
		for j, idx := range keepIdx {
			if idx < len(g.Rows[ri].Fields) {
				fields[j] = g.Rows[ri].Fields[idx]
			}
		}
		g.Rows[ri].Fields = fields
	}
	return g
}

func seriesSet(sids []ids.SeriesId) map[ids.SeriesId]struct{} {
	m := make(map[ids.SeriesId]struct{}, len(sids))
	for _, s := range sids {
		m[s] = struct{}{}
	}
	return m
}
