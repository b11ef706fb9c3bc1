package request

import (
	"time"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
)

// recordIDNamespace scopes name-based record ids.
var recordIDNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("records.healthrecords"))

// UpsertOptions carries the metadata shared by every record of a batch.
type UpsertOptions struct {
	Device storage.Device
	// GenerateIDs assigns ids to records: name based when a client record id
	// is present, random otherwise. When false every record must carry an id.
	GenerateIDs bool
	// Now stamps last modified times; defaults to the current time.
	Now time.Time
}

// UpsertTransactionRequest writes a batch of records for one package.
type UpsertTransactionRequest struct {
	packageName string
	device      storage.Device
	records     []storage.Record
	requests    []UpsertTableRequest
	recordTypes []storage.RecordType
}

// NewUpsertTransactionRequest builds one upsert per record. Package and
// device are resolved once for the batch.
func NewUpsertTransactionRequest(packageName string, records []storage.Record, tables Tables, opts UpsertOptions) (UpsertTransactionRequest, error) {
	if err := validatePackageName(packageName); err != nil {
		return UpsertTransactionRequest{}, err
	}
	if len(records) == 0 {
		return UpsertTransactionRequest{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "at least one record is required")
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	resolved := make([]storage.Record, 0, len(records))
	requests := make([]UpsertTableRequest, 0, len(records))
	typeSet := make(map[storage.RecordType]struct{})
	for i, record := range records {
		recordType := record.Type()
		if err := validateRecordType(recordType); err != nil {
			return UpsertTransactionRequest{}, err
		}
		if record.StartTime.IsZero() {
			return UpsertTransactionRequest{}, apperrors.Errorf(apperrors.CodeRequestInvalidArgument, "record %d is missing a start time", i)
		}
		if !record.EndTime.IsZero() && record.EndTime.Before(record.StartTime) {
			return UpsertTransactionRequest{}, apperrors.Errorf(apperrors.CodeRequestInvalidArgument, "record %d ends before it starts", i)
		}

		id, err := resolveRecordID(packageName, record, opts.GenerateIDs)
		if err != nil {
			return UpsertTransactionRequest{}, err
		}
		record.ID = id
		record.PackageName = packageName
		record.Device = opts.Device
		record.LastModifiedTime = now

		table, err := resolveTable(tables, recordType)
		if err != nil {
			return UpsertTransactionRequest{}, err
		}
		request, err := newUpsertTableRequest(table, record)
		if err != nil {
			return UpsertTransactionRequest{}, err
		}

		resolved = append(resolved, record)
		requests = append(requests, request)
		typeSet[recordType] = struct{}{}
	}

	return UpsertTransactionRequest{
		packageName: packageName,
		device:      opts.Device,
		records:     resolved,
		requests:    requests,
		recordTypes: sortedRecordTypes(typeSet),
	}, nil
}

func resolveRecordID(packageName string, record storage.Record, generate bool) (string, error) {
	if !generate {
		parsed, err := uuid.Parse(record.ID)
		if err != nil {
			return "", apperrors.WrapWithMetadata(apperrors.CodeRequestInvalidArgument, "record id must be a uuid",
				map[string]string{"id": record.ID}, err)
		}
		return parsed.String(), nil
	}
	if record.ClientRecordID == "" {
		return uuid.NewString(), nil
	}
	return RecordID(packageName, record.Type(), record.ClientRecordID), nil
}

// RecordID derives the stable id of a record from its owner's client record id.
func RecordID(packageName string, recordType storage.RecordType, clientRecordID string) string {
	name := packageName + "\x00" + recordType.String() + "\x00" + clientRecordID
	return uuid.NewSHA1(recordIDNamespace, []byte(name)).String()
}

func newUpsertTableRequest(table RecordTable, record storage.Record) (UpsertTableRequest, error) {
	payloadValues, err := table.PayloadValues(record.Payload)
	if err != nil {
		return UpsertTableRequest{}, apperrors.Wrap(apperrors.CodeRequestInvalidArgument, "bind record payload", err)
	}
	payloadColumns := table.PayloadColumns()
	if len(payloadValues) != len(payloadColumns) {
		return UpsertTableRequest{}, apperrors.Errorf(apperrors.CodeRequestInvalidArgument,
			"%s payload has %d values for %d columns", table.TableName(), len(payloadValues), len(payloadColumns))
	}

	values := []any{
		record.ID,
		record.PackageName,
		nil, // app_info_id
		nil, // device_info_id
		nullableString(record.ClientRecordID),
		record.ClientRecordVersion,
		record.StartTime.UnixMilli(),
		nullableMillis(record.EndTime),
		int64(record.ZoneOffsetSeconds),
		record.LastModifiedTime.UnixMilli(),
	}
	values = append(values, payloadValues...)

	return UpsertTableRequest{
		Table:      table.TableName(),
		RecordType: record.Type(),
		RecordID:   record.ID,
		Columns:    append(append([]string(nil), upsertColumns...), payloadColumns...),
		values:     values,
	}, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableMillis(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UnixMilli()
}

// PackageName returns the requesting package.
func (r UpsertTransactionRequest) PackageName() string {
	return r.packageName
}

// Device returns the device shared by the batch.
func (r UpsertTransactionRequest) Device() storage.Device {
	return r.device
}

// RecordTypes returns the distinct record types of the batch.
func (r UpsertTransactionRequest) RecordTypes() []storage.RecordType {
	return append([]storage.RecordType(nil), r.recordTypes...)
}

// UpsertRequests returns one table request per input record.
func (r UpsertTransactionRequest) UpsertRequests() []UpsertTableRequest {
	return append([]UpsertTableRequest(nil), r.requests...)
}

// Records returns the batch with ids, package and device resolved.
func (r UpsertTransactionRequest) Records() []storage.Record {
	return append([]storage.Record(nil), r.records...)
}
