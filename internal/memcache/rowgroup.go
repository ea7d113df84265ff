package memcache

import (
	"github.com/vnodedb/tskv/internal/ids"
	"github.com/vnodedb/tskv/internal/tsrange"
)

// RowData is one timestamped row: one optional value per field in the
// owning RowGroup's Schema, same index position.
type RowData struct {
	Ts     int64
	Fields []*FieldVal
}

// Size approximates RowData's memory footprint.
func (r RowData) Size() int {
	n := 8
	for _, f := range r.Fields {
		n += f.Size()
	}
	return n
}

// RowGroup is a batch of rows sharing one field schema, written together by
// a single put_points call for one (SeriesID, SchemaID) pair.
type RowGroup struct {
	SchemaID ids.SchemaId
	Schema   []ids.FieldId
	Range    tsrange.TimeRange
	Rows     []RowData
	Size     int
}

// seriesSchemaKey is the map key MemCache partitions writes by: the pair
// of series id and schema id a RowGroup belongs to.
type seriesSchemaKey struct {
	SeriesID ids.SeriesId
	SchemaID ids.SchemaId
}

// seriesPartition is the per-series vector of RowGroups that write_group
// appends to, and the state delete_series/add_column/change_column/
// delete_columns mutate in place.
type seriesPartition struct {
	Range  tsrange.TimeRange
	Groups []RowGroup
}
