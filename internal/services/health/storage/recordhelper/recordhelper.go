// Package recordhelper describes how each record type is laid out in SQLite:
// its table, payload columns, schema history and retention deletes.
package recordhelper

import (
	"fmt"
	"time"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/schema"
)

// Tables owned by the shared migrations and referenced by record tables.
const (
	ApplicationInfoTable = "application_info_table"
	DeviceInfoTable      = "device_info_table"
)

// Helper maps one record type onto its table.
type Helper struct {
	recordType     storage.RecordType
	table          string
	payloadColumns []schema.Column
	bind           func(storage.Payload) ([]any, error)
	scan           func() ([]any, func() storage.Payload)
}

// RecordType returns the record type the helper serves.
func (h Helper) RecordType() storage.RecordType {
	return h.recordType
}

// TableName returns the record table name.
func (h Helper) TableName() string {
	return h.table
}

// PayloadColumns returns the type-specific column names in bind order.
func (h Helper) PayloadColumns() []string {
	names := make([]string, len(h.payloadColumns))
	for i, column := range h.payloadColumns {
		names[i] = column.Name
	}
	return names
}

// PayloadValues returns the bind values of payload.
func (h Helper) PayloadValues(payload storage.Payload) ([]any, error) {
	if payload == nil || payload.RecordType() != h.recordType {
		return nil, fmt.Errorf("%s table cannot bind %T", h.table, payload)
	}
	return h.bind(payload)
}

// PayloadScanner returns scan destinations for the payload columns and a
// function that builds the payload once a row has been scanned.
func (h Helper) PayloadScanner() ([]any, func() storage.Payload) {
	return h.scan()
}

// RetentionDeleteRequest deletes every record that started more than days
// before now.
func (h Helper) RetentionDeleteRequest(days int, now time.Time) (request.DeleteTableRequest, error) {
	if days <= 0 {
		return request.DeleteTableRequest{}, fmt.Errorf("retention days must be positive: %d", days)
	}
	cutoff := now.AddDate(0, 0, -days).UnixMilli()
	where := clause.New(clause.And).LessThan(request.ColumnStartTime, cutoff)
	return request.NewDeleteTableRequest(h.table, h.recordType).WithWhere(where), nil
}

// createTableRequest describes the original table layout.
func (h Helper) createTableRequest() schema.CreateTableRequest {
	columns := []schema.Column{
		{Name: request.ColumnRowID, Type: schema.TypePrimaryAutoincrement},
		{Name: request.ColumnUUID, Type: schema.TypeTextNotNullUnique},
		{Name: request.ColumnPackageName, Type: schema.TypeTextNotNull},
		{Name: request.ColumnAppInfoID, Type: schema.TypeInteger},
		{Name: request.ColumnDeviceInfoID, Type: schema.TypeInteger},
		{Name: request.ColumnClientRecordID, Type: schema.TypeText},
		{Name: request.ColumnClientRecordVersion, Type: schema.TypeIntegerDefaultZero},
		{Name: request.ColumnStartTime, Type: schema.TypeIntegerNotNull},
		{Name: request.ColumnEndTime, Type: schema.TypeInteger},
		{Name: request.ColumnLastModifiedTime, Type: schema.TypeIntegerNotNull},
	}
	columns = append(columns, h.payloadColumns...)

	return schema.NewCreateTableRequest(h.table, columns).
		WithForeignKey(schema.ForeignKey{
			Columns:           []string{request.ColumnAppInfoID},
			ReferencedTable:   ApplicationInfoTable,
			ReferencedColumns: []string{"row_id"},
			OnDelete:          "SET NULL",
		}).
		WithForeignKey(schema.ForeignKey{
			Columns:           []string{request.ColumnDeviceInfoID},
			ReferencedTable:   DeviceInfoTable,
			ReferencedColumns: []string{"row_id"},
			OnDelete:          "SET NULL",
		}).
		WithIndex(schema.MustCreateIndexRequest(h.table, "idx_"+h.table+"_start_time", false, request.ColumnStartTime))
}

// zoneOffsetUpgrade adds the zone offset column and the client record index
// to tables created with the original layout.
func (h Helper) zoneOffsetUpgrade() ([]string, error) {
	alter := schema.NewAlterTableRequest(h.table, []schema.Column{
		{Name: request.ColumnZoneOffset, Type: schema.TypeIntegerDefaultZero},
	})
	statements, err := alter.Statements()
	if err != nil {
		return nil, fmt.Errorf("alter %s: %w", h.table, err)
	}
	index, err := schema.NewCreateIndexRequest(h.table, "idx_"+h.table+"_client_record", false,
		[]string{request.ColumnPackageName, request.ColumnClientRecordID})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", h.table, err)
	}
	return append(statements, index.IfNotExistsCommand()), nil
}
