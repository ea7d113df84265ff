// Package meta defines the narrow capability the storage engine consumes
// from the cluster metadata service: table schemas, bucket placement, and
// replication-set lookup. The service itself (a Raft-replicated catalog of
// tenants, databases, tables, buckets, and data-node membership) is out of
// scope; Client is the interface the engine is coded against, and Fake is
// an in-memory stand-in for tests.
package meta

import (
	"fmt"
	"sync"

	"github.com/vnodedb/tskv/internal/ids"
)

// DatabaseSchema describes one tenant's database by name; it carries no
// storage options. The engine falls back to a default
// schema when the tenant or database is unknown, rather than failing.
type DatabaseSchema struct {
	Tenant   string
	Database string
}

// TskvTableSchema names the fields a table's rows carry, in column order.
// Column-to-FieldId mapping is the schema layer's responsibility; the
// engine only ever consumes the resulting FieldId list.
type TskvTableSchema struct {
	Database string
	Table    string
	SchemaID ids.SchemaId
	Fields   []ids.FieldId
}

// BucketInfo is one time-bounded shard of a database: the vnodes that own
// its data and the replication set serving writes to it.
type BucketInfo struct {
	ID             uint32
	StartTime      int64
	EndTime        int64
	VnodeIDs       []ids.TseriesFamilyId
	ReplicationSet ReplicationSet
}

// ReplicationSet is the group of vnodes that replicate one bucket's writes.
// LeaderVnode is the vnode a local write should land in.
type ReplicationSet struct {
	ID          uint32
	LeaderVnode ids.TseriesFamilyId
	VnodeIDs    []ids.TseriesFamilyId
}

// ErrNotFound is returned by lookups that find nothing, distinct from the
// ok=false, nil-error "not present but not an error" return used by the
// schema lookups where absence is an expected, handled case.
var ErrNotFound = fmt.Errorf("meta: not found")

// Client is the capability interface the core is coded against. A real
// implementation talks to the Raft-replicated catalog; Fake backs tests.
type Client interface {
	// GetDBSchema returns database's schema, or ok=false if the tenant or
	// database is unknown.
	GetDBSchema(tenant, database string) (schema DatabaseSchema, ok bool, err error)
	// GetTSKVTableSchema returns table's column schema within database.
	GetTSKVTableSchema(database, table string) (schema TskvTableSchema, ok bool, err error)
	// ListTables returns every table name defined in database.
	ListTables(database string) ([]string, error)
	// CreateBucket allocates (or returns the existing) bucket covering ts
	// in database.
	CreateBucket(database string, ts int64) (BucketInfo, error)
	// MappingBucket returns every bucket in database overlapping [start, end).
	MappingBucket(database string, start, end int64) ([]BucketInfo, error)
	// LocateReplicationSetForWrite resolves which replication set a write
	// to database at timestamp ts, hashed to hashID, should land in.
	LocateReplicationSetForWrite(database string, hashID uint64, ts int64) (ReplicationSet, error)
}

// Fake is an in-memory Client: one bucket per fixed-width time window, one
// replication set per database (the only vnode configuration this engine's
// own tests need), used in place of the Raft-replicated catalog.
type Fake struct {
	mu sync.RWMutex

	bucketDuration int64
	schemas        map[string]DatabaseSchema           // tenant/db owner -> schema
	tables         map[string]map[string]TskvTableSchema // database -> table -> schema
	buckets        map[string]map[uint32]BucketInfo    // database -> bucket id -> bucket
	replicas       map[string]ReplicationSet            // database -> its one replication set
	nextBucketID   uint32

	// FailNextLookup, when true, makes the next GetDBSchema call return an
	// error instead of a lookup result, then resets to false. Simulates a
	// transient metadata-service outage for tests exercising that path.
	FailNextLookup bool
}

// NewFake returns an empty Fake with buckets of width bucketDuration
// (nanoseconds, matching the engine's timestamp unit).
func NewFake(bucketDuration int64) *Fake {
	return &Fake{
		bucketDuration: bucketDuration,
		schemas:        make(map[string]DatabaseSchema),
		tables:         make(map[string]map[string]TskvTableSchema),
		buckets:        make(map[string]map[uint32]BucketInfo),
		replicas:       make(map[string]ReplicationSet),
		nextBucketID:   1,
	}
}

func owner(tenant, database string) string { return tenant + "/" + database }

// PutDBSchema registers schema, making it discoverable by GetDBSchema.
func (f *Fake) PutDBSchema(schema DatabaseSchema) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas[owner(schema.Tenant, schema.Database)] = schema
}

// PutTableSchema registers a table's schema within its database.
func (f *Fake) PutTableSchema(schema TskvTableSchema) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tables, ok := f.tables[schema.Database]
	if !ok {
		tables = make(map[string]TskvTableSchema)
		f.tables[schema.Database] = tables
	}
	tables[schema.Table] = schema
}

// SetReplicationSet fixes the single replication set database's writes
// are routed to.
func (f *Fake) SetReplicationSet(database string, rs ReplicationSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replicas[database] = rs
}

func (f *Fake) GetDBSchema(tenant, database string) (DatabaseSchema, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNextLookup {
		f.FailNextLookup = false
		return DatabaseSchema{}, false, fmt.Errorf("meta: fake lookup failure")
	}
	s, ok := f.schemas[owner(tenant, database)]
	return s, ok, nil
}

func (f *Fake) GetTSKVTableSchema(database, table string) (TskvTableSchema, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tables, ok := f.tables[database]
	if !ok {
		return TskvTableSchema{}, false, nil
	}
	s, ok := tables[table]
	return s, ok, nil
}

func (f *Fake) ListTables(database string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tables := f.tables[database]
	out := make([]string, 0, len(tables))
	for name := range tables {
		out = append(out, name)
	}
	return out, nil
}

func (f *Fake) CreateBucket(database string, ts int64) (BucketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start, end := f.bucketBounds(ts)
	buckets, ok := f.buckets[database]
	if !ok {
		buckets = make(map[uint32]BucketInfo)
		f.buckets[database] = buckets
	}
	for _, b := range buckets {
		if b.StartTime == start {
			return b, nil
		}
	}

	rs := f.replicas[database]
	b := BucketInfo{
		ID:             f.nextBucketID,
		StartTime:      start,
		EndTime:        end,
		VnodeIDs:       rs.VnodeIDs,
		ReplicationSet: rs,
	}
	f.nextBucketID++
	buckets[b.ID] = b
	return b, nil
}

func (f *Fake) MappingBucket(database string, start, end int64) ([]BucketInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []BucketInfo
	for _, b := range f.buckets[database] {
		if b.StartTime < end && b.EndTime > start {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *Fake) LocateReplicationSetForWrite(database string, hashID uint64, ts int64) (ReplicationSet, error) {
	f.mu.RLock()
	rs, ok := f.replicas[database]
	f.mu.RUnlock()
	if !ok {
		return ReplicationSet{}, ErrNotFound
	}
	return rs, nil
}

func (f *Fake) bucketBounds(ts int64) (int64, int64) {
	start := (ts / f.bucketDuration) * f.bucketDuration
	if ts < 0 && ts%f.bucketDuration != 0 {
		start -= f.bucketDuration
	}
	return start, start + f.bucketDuration
}
