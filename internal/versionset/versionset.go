// Package versionset implements VersionSet, the process-wide registry of
// every open database and the vnodes (TSeriesFamily) within it: the
// single point the storage engine's façade goes through to create,
// locate, and drop vnodes.
package versionset

import (
	"errors"
	"fmt"
	"sync"

	tskverrors "github.com/vnodedb/tskv/internal/errors"
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/manifest"
	"github.com/vnodedb/tskv/internal/meta"
	"github.com/vnodedb/tskv/internal/options"
	"github.com/vnodedb/tskv/internal/tsfamily"
	"github.com/vnodedb/tskv/internal/version"
)

var (
	// ErrDatabaseExists is returned by CreateDatabase for an owner already
	// registered.
	ErrDatabaseExists = errors.New("versionset: database already exists")
	// ErrDatabaseNotFound is returned by lookups and OpenTSFamily for an
	// owner not yet created. It wraps the shared errors.ErrTenantOrDbNotFound
	// sentinel so callers above this package can check for it without
	// depending on versionset directly.
	ErrDatabaseNotFound = fmt.Errorf("versionset: database not found: %w", tskverrors.ErrTenantOrDbNotFound)
	// ErrTSFamilyExists is returned by OpenTSFamily for a vnode id already
	// registered within its database.
	ErrTSFamilyExists = errors.New("versionset: vnode already exists")
)

func owner(tenant, database string) string { return tenant + "/" + database }

// GlobalSequenceContext reports the lowest sequence number any open vnode
// has applied, and each vnode's own sequence, so a WAL (out of scope here)
// can safely garbage-collect segments below the minimum.
type GlobalSequenceContext struct {
	MinSeq uint64
	PerTsf map[ids.TseriesFamilyId]uint64
}

// database is one registered tenant/database: its schema and the vnodes
// (TSeriesFamily) currently open within it.
type database struct {
	schema meta.DatabaseSchema
	tsfs   map[ids.TseriesFamilyId]*tsfamily.TSeriesFamily
}

// VersionSet owns every open database, keyed by "tenant/database", and
// the shared resources it was built with. Every vnode it creates is wired
// with the storage root, the storage/cache options and the flush channel;
// the file-id allocator is held here but not passed to vnodes.
type VersionSet struct {
	storageRoot string
	storageOpts *options.StorageOptions
	cacheOpts   *options.CacheOptions
	fileAlloc   *ids.FileIDAllocator
	flushSender chan<- tsfamily.FlushReq

	mu  sync.RWMutex
	dbs map[string]*database
}

// New returns an empty VersionSet sharing the given resources across every
// vnode it will go on to create.
func New(
	storageRoot string,
	storageOpts *options.StorageOptions,
	cacheOpts *options.CacheOptions,
	fileAlloc *ids.FileIDAllocator,
	flushSender chan<- tsfamily.FlushReq,
) *VersionSet {
	return &VersionSet{
		storageRoot: storageRoot,
		storageOpts: storageOpts,
		cacheOpts:   cacheOpts,
		fileAlloc:   fileAlloc,
		flushSender: flushSender,
		dbs:         make(map[string]*database),
	}
}

// CreateDatabase registers schema's owner, if not already present.
func (vs *VersionSet) CreateDatabase(schema meta.DatabaseSchema) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	key := owner(schema.Tenant, schema.Database)
	if _, ok := vs.dbs[key]; ok {
		return ErrDatabaseExists
	}
	vs.dbs[key] = &database{schema: schema, tsfs: make(map[ids.TseriesFamilyId]*tsfamily.TSeriesFamily)}
	return nil
}

// DatabaseExists reports whether tenant/database has been created.
func (vs *VersionSet) DatabaseExists(tenant, database string) bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	_, ok := vs.dbs[owner(tenant, database)]
	return ok
}

// GetDBSchema returns the schema tenant/database was created with.
func (vs *VersionSet) GetDBSchema(tenant, database string) (meta.DatabaseSchema, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	db, ok := vs.dbs[owner(tenant, database)]
	if !ok {
		return meta.DatabaseSchema{}, false
	}
	return db.schema, true
}

// DropDatabase removes tenant/database and every vnode within it,
// returning one DEL_VNODE edit per dropped vnode for the summary log to
// record. Returns ErrDatabaseNotFound if the database isn't registered.
func (vs *VersionSet) DropDatabase(tenant, database string) ([]*manifest.VersionEdit, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	key := owner(tenant, database)
	db, ok := vs.dbs[key]
	if !ok {
		return nil, ErrDatabaseNotFound
	}
	delete(vs.dbs, key)

	edits := make([]*manifest.VersionEdit, 0, len(db.tsfs))
	for _, tsf := range db.tsfs {
		edits = append(edits, tsf.Drop())
	}
	return edits, nil
}

// DropTSFamily removes a single vnode from its database, returning the
// DEL_VNODE edit produced by TSeriesFamily.Drop.
func (vs *VersionSet) DropTSFamily(tenant, database string, tfID ids.TseriesFamilyId) (*manifest.VersionEdit, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	db, ok := vs.dbs[owner(tenant, database)]
	if !ok {
		return nil, ErrDatabaseNotFound
	}
	tsf, ok := db.tsfs[tfID]
	if !ok {
		return nil, ErrDatabaseNotFound
	}
	delete(db.tsfs, tfID)
	return tsf.Drop(), nil
}

// OpenTSFamily creates and registers a new vnode within tenant/database,
// seeded from ver (the Version recovered from the summary log, or a fresh
// empty one) and seqNo (the sequence it was last applied through).
// Returns ErrDatabaseNotFound if the database hasn't been created, and
// ErrTSFamilyExists if tfID is already registered within it.
func (vs *VersionSet) OpenTSFamily(tenant, database string, tfID ids.TseriesFamilyId, ver *version.Version, seqNo uint64) (*tsfamily.TSeriesFamily, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	key := owner(tenant, database)
	db, ok := vs.dbs[key]
	if !ok {
		return nil, ErrDatabaseNotFound
	}
	if _, exists := db.tsfs[tfID]; exists {
		return nil, ErrTSFamilyExists
	}

	tsf := tsfamily.New(tfID, key, vs.storageRoot, vs.storageOpts, vs.cacheOpts, ver, seqNo, vs.flushSender)
	db.tsfs[tfID] = tsf
	return tsf, nil
}

// GetTSFamilyByID scans every database for a vnode with id tfID. Vnode ids
// are unique process-wide, so at most one match can exist.
func (vs *VersionSet) GetTSFamilyByID(tfID ids.TseriesFamilyId) (*tsfamily.TSeriesFamily, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	for _, db := range vs.dbs {
		if tsf, ok := db.tsfs[tfID]; ok {
			return tsf, true
		}
	}
	return nil, false
}

// GetTSFamilyByNameID looks up a vnode within a specific tenant/database.
func (vs *VersionSet) GetTSFamilyByNameID(tenant, database string, tfID ids.TseriesFamilyId) (*tsfamily.TSeriesFamily, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	db, ok := vs.dbs[owner(tenant, database)]
	if !ok {
		return nil, false
	}
	tsf, ok := db.tsfs[tfID]
	return tsf, ok
}

// TSFamilyCount returns the number of vnodes open across every database.
func (vs *VersionSet) TSFamilyCount() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	n := 0
	for _, db := range vs.dbs {
		n += len(db.tsfs)
	}
	return n
}

// GetVersionEdits snapshots every open vnode as an ADD_VNODE edit fixed to
// lastSeq, the set a summary-log checkpoint writes as its new base instead
// of replaying every edit since each vnode's creation.
func (vs *VersionSet) GetVersionEdits(lastSeq uint64) []*manifest.VersionEdit {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	var edits []*manifest.VersionEdit
	for _, db := range vs.dbs {
		for _, tsf := range db.tsfs {
			edits = append(edits, tsf.VersionEdit(lastSeq))
		}
	}
	return edits
}

// GlobalSequenceContext reports the minimum applied sequence across every
// open vnode, and each vnode's own sequence. Intended to be called once,
// after recovery completes.
func (vs *VersionSet) GlobalSequenceContext() GlobalSequenceContext {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	perTsf := make(map[ids.TseriesFamilyId]uint64)
	var minSeq uint64
	first := true
	for _, db := range vs.dbs {
		for id, tsf := range db.tsfs {
			seq := tsf.SeqNo()
			perTsf[id] = seq
			if first || seq < minSeq {
				minSeq = seq
				first = false
			}
		}
	}
	return GlobalSequenceContext{MinSeq: minSeq, PerTsf: perTsf}
}
