// Package request turns read, delete and upsert intents into the statements
// the transaction manager executes. Builders are pure and never touch the store.
package request

import (
	"fmt"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
)

// Columns shared by every record table.
const (
	ColumnRowID               = "row_id"
	ColumnUUID                = "uuid"
	ColumnPackageName         = "package_name"
	ColumnAppInfoID           = "app_info_id"
	ColumnDeviceInfoID        = "device_info_id"
	ColumnClientRecordID      = "client_record_id"
	ColumnClientRecordVersion = "client_record_version"
	ColumnStartTime           = "start_time"
	ColumnEndTime             = "end_time"
	ColumnZoneOffset          = "zone_offset"
	ColumnLastModifiedTime    = "last_modified_time"
)

// upsertColumns are the shared columns written by an upsert, in bind order.
var upsertColumns = []string{
	ColumnUUID,
	ColumnPackageName,
	ColumnAppInfoID,
	ColumnDeviceInfoID,
	ColumnClientRecordID,
	ColumnClientRecordVersion,
	ColumnStartTime,
	ColumnEndTime,
	ColumnZoneOffset,
	ColumnLastModifiedTime,
}

// SelectColumns returns the shared columns a read selects, in scan order.
func SelectColumns() []string {
	return append([]string{ColumnRowID}, upsertColumns...)
}

// RecordTable maps one record type onto its table.
type RecordTable interface {
	RecordType() storage.RecordType
	TableName() string
	// PayloadColumns lists the type-specific columns in bind order.
	PayloadColumns() []string
	// PayloadValues returns the bind values for PayloadColumns.
	PayloadValues(payload storage.Payload) ([]any, error)
}

// Tables resolves record tables by type.
type Tables interface {
	Table(recordType storage.RecordType) (RecordTable, error)
}

func resolveTable(tables Tables, recordType storage.RecordType) (RecordTable, error) {
	if tables == nil {
		return nil, fmt.Errorf("record tables are not configured")
	}
	table, err := tables.Table(recordType)
	if err != nil {
		return nil, apperrors.WrapWithMetadata(
			apperrors.CodeRequestUnknownRecordType,
			"resolve record table",
			map[string]string{"record_type": recordType.String()},
			err,
		)
	}
	return table, nil
}

func validateRecordType(recordType storage.RecordType) error {
	if !recordType.Valid() {
		return apperrors.WithMetadata(
			apperrors.CodeRequestUnknownRecordType,
			"unknown record type",
			map[string]string{"record_type": fmt.Sprint(int32(recordType))},
		)
	}
	return nil
}

func validatePackageName(packageName string) error {
	if packageName == "" {
		return apperrors.New(apperrors.CodeRequestInvalidArgument, "package name is required")
	}
	return nil
}

// sortedRecordTypes returns the set members ordered by record type id.
func sortedRecordTypes(set map[storage.RecordType]struct{}) []storage.RecordType {
	recordTypes := make([]storage.RecordType, 0, len(set))
	for _, recordType := range storage.RecordTypes() {
		if _, ok := set[recordType]; ok {
			recordTypes = append(recordTypes, recordType)
		}
	}
	return recordTypes
}
