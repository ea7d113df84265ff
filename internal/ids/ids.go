// Package ids defines the identifier types shared across the storage engine
// and the per-process monotonic counter that allocates column-file ids.
//
// SeriesId, ColumnId, and SchemaId are supplied by the schema layer
// (out of scope, consumed only by value here); TseriesFamilyId names a
// vnode; ColumnFileId is allocated by FileIDAllocator and is unique across
// the process's lifetime.
package ids

import (
	"encoding/binary"
	"sync/atomic"
)

type (
	SeriesId        uint64
	ColumnId        uint32
	SchemaId        uint32
	TseriesFamilyId uint32
	ColumnFileId    uint64
)

// FieldId identifies a (series, column) pair. The schema layer is
// responsible for allocating these; the core only stores and probes them.
type FieldId uint64

// NewFieldId packs a series id and column id into a single FieldId the way
// the schema layer does, high bits first — the core never needs to unpack
// this, only to compare and hash it.
func NewFieldId(sid SeriesId, cid ColumnId) FieldId {
	return FieldId(uint64(sid)<<32 | uint64(cid))
}

// Bytes returns the big-endian encoding of f, the form the bloom filter
// and checksum hash it under.
func (f FieldId) Bytes() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(f))
	return buf[:]
}

// FileIDAllocator is the process-wide global file-id counter: the Engine
// holds it and passes it by reference to every flush job rather than
// keeping it as hidden global state, so file ids stay unique
// across the whole process regardless of how many vnodes are writing.
type FileIDAllocator struct {
	next uint64
}

// NewFileIDAllocator creates an allocator that will hand out ids starting at
// start; a start of 0 is treated as 1.
func NewFileIDAllocator(start uint64) *FileIDAllocator {
	if start == 0 {
		start = 1
	}
	return &FileIDAllocator{next: start}
}

// Next allocates and returns the next ColumnFileId.
func (a *FileIDAllocator) Next() ColumnFileId {
	return ColumnFileId(atomic.AddUint64(&a.next, 1) - 1)
}

// Observe advances the allocator so that it never hands out an id <= seen.
// Used during summary-log recovery to avoid reusing a file id that was
// already durably recorded.
func (a *FileIDAllocator) Observe(seen ColumnFileId) {
	for {
		cur := atomic.LoadUint64(&a.next)
		if uint64(seen) < cur {
			return
		}
		if atomic.CompareAndSwapUint64(&a.next, cur, uint64(seen)+1) {
			return
		}
	}
}
