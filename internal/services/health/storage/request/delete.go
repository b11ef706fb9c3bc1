package request

import (
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
)

// DeleteFilter selects records to delete by type, time and origin.
type DeleteFilter struct {
	// RecordTypes defaults to every record type when empty.
	RecordTypes []storage.RecordType
	TimeRange   *storage.TimeRange
	DataOrigins []string
}

// DeleteSelection is DeleteByIDs, DeleteByFilter or RetentionDelete.
type DeleteSelection interface {
	isDeleteSelection()
}

// DeleteByIDs deletes records the requesting package owns by id or client
// record id.
type DeleteByIDs struct {
	IDs []storage.RecordIDFilter
}

// DeleteByFilter deletes every record matching the filter.
type DeleteByFilter struct {
	Filter DeleteFilter
}

// RetentionDelete runs pre-built table deletes on behalf of the platform.
type RetentionDelete struct {
	Requests []DeleteTableRequest
}

func (DeleteByIDs) isDeleteSelection()     {}
func (DeleteByFilter) isDeleteSelection()  {}
func (RetentionDelete) isDeleteSelection() {}

// DeleteTransactionRequest is a delete intent.
type DeleteTransactionRequest struct {
	packageName string
	selection   DeleteSelection
}

// NewDeleteByIDs deletes the listed records of packageName.
func NewDeleteByIDs(packageName string, ids []storage.RecordIDFilter) (DeleteTransactionRequest, error) {
	if err := validatePackageName(packageName); err != nil {
		return DeleteTransactionRequest{}, err
	}
	if len(ids) == 0 {
		return DeleteTransactionRequest{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "at least one record id is required")
	}
	for _, id := range ids {
		if err := validateRecordType(id.RecordType); err != nil {
			return DeleteTransactionRequest{}, err
		}
		if (id.ID == "") == (id.ClientRecordID == "") {
			return DeleteTransactionRequest{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "record id filter needs exactly one of id or client record id")
		}
	}
	return DeleteTransactionRequest{
		packageName: packageName,
		selection:   DeleteByIDs{IDs: append([]storage.RecordIDFilter(nil), ids...)},
	}, nil
}

// NewDeleteByFilter deletes records matching f.
func NewDeleteByFilter(packageName string, f DeleteFilter) (DeleteTransactionRequest, error) {
	if err := validatePackageName(packageName); err != nil {
		return DeleteTransactionRequest{}, err
	}
	for _, recordType := range f.RecordTypes {
		if err := validateRecordType(recordType); err != nil {
			return DeleteTransactionRequest{}, err
		}
	}
	if f.TimeRange != nil {
		if err := f.TimeRange.Validate(); err != nil {
			return DeleteTransactionRequest{}, apperrors.Wrap(apperrors.CodeRequestInvalidArgument, "invalid time range", err)
		}
	}
	copied := DeleteFilter{
		RecordTypes: append([]storage.RecordType(nil), f.RecordTypes...),
		DataOrigins: append([]string(nil), f.DataOrigins...),
	}
	if f.TimeRange != nil {
		timeRange := *f.TimeRange
		copied.TimeRange = &timeRange
	}
	return DeleteTransactionRequest{
		packageName: packageName,
		selection:   DeleteByFilter{Filter: copied},
	}, nil
}

// NewRetentionDelete wraps table deletes produced by record helpers. The
// request is attributed to the platform package.
func NewRetentionDelete(requests []DeleteTableRequest) DeleteTransactionRequest {
	return DeleteTransactionRequest{
		packageName: storage.PlatformPackageName,
		selection:   RetentionDelete{Requests: append([]DeleteTableRequest(nil), requests...)},
	}
}

// PackageName returns the requesting package, or the platform package for
// retention deletes.
func (r DeleteTransactionRequest) PackageName() string {
	return r.packageName
}

// Selection returns the active selection mode.
func (r DeleteTransactionRequest) Selection() DeleteSelection {
	return r.selection
}

// RecordTypes returns the record types the delete touches. Retention
// deletes report none since they address tables directly.
func (r DeleteTransactionRequest) RecordTypes() []storage.RecordType {
	set := make(map[storage.RecordType]struct{})
	switch selection := r.selection.(type) {
	case DeleteByIDs:
		for _, id := range selection.IDs {
			set[id.RecordType] = struct{}{}
		}
	case DeleteByFilter:
		if len(selection.Filter.RecordTypes) == 0 {
			return storage.RecordTypes()
		}
		for _, recordType := range selection.Filter.RecordTypes {
			set[recordType] = struct{}{}
		}
	default:
		return nil
	}
	return sortedRecordTypes(set)
}

// TableRequests renders the table deletes for the request.
func (r DeleteTransactionRequest) TableRequests(tables Tables) ([]DeleteTableRequest, error) {
	switch selection := r.selection.(type) {
	case DeleteByIDs:
		return selection.tableRequests(r.packageName, tables)
	case DeleteByFilter:
		return selection.tableRequests(r.RecordTypes(), tables)
	case RetentionDelete:
		return append([]DeleteTableRequest(nil), selection.Requests...), nil
	default:
		return nil, apperrors.New(apperrors.CodeRequestWrongMode, "delete request has no selection")
	}
}

func (s DeleteByIDs) tableRequests(packageName string, tables Tables) ([]DeleteTableRequest, error) {
	uuids := make(map[storage.RecordType][]string)
	clientIDs := make(map[storage.RecordType][]string)
	for _, id := range s.IDs {
		if id.ID != "" {
			uuids[id.RecordType] = append(uuids[id.RecordType], id.ID)
		} else {
			clientIDs[id.RecordType] = append(clientIDs[id.RecordType], id.ClientRecordID)
		}
	}

	owned := clause.New(clause.And).Equal(ColumnPackageName, packageName)
	var requests []DeleteTableRequest
	for _, recordType := range storage.RecordTypes() {
		if len(uuids[recordType]) == 0 && len(clientIDs[recordType]) == 0 {
			continue
		}
		table, err := resolveTable(tables, recordType)
		if err != nil {
			return nil, err
		}
		base := NewDeleteTableRequest(table.TableName(), recordType).WithWhere(owned)
		if ids := uuids[recordType]; len(ids) > 0 {
			requests = append(requests, base.WithIDs(ColumnUUID, ids))
		}
		if ids := clientIDs[recordType]; len(ids) > 0 {
			requests = append(requests, base.WithIDs(ColumnClientRecordID, ids))
		}
	}
	return requests, nil
}

func (s DeleteByFilter) tableRequests(recordTypes []storage.RecordType, tables Tables) ([]DeleteTableRequest, error) {
	where := clause.New(clause.And)
	if s.Filter.TimeRange != nil {
		if !s.Filter.TimeRange.Start.IsZero() {
			where = where.GreaterThanOrEqual(ColumnStartTime, s.Filter.TimeRange.Start.UnixMilli())
		}
		if !s.Filter.TimeRange.End.IsZero() {
			where = where.LessThan(ColumnStartTime, s.Filter.TimeRange.End.UnixMilli())
		}
	}
	if len(s.Filter.DataOrigins) > 0 {
		where = where.In(ColumnPackageName, s.Filter.DataOrigins)
	}

	requests := make([]DeleteTableRequest, 0, len(recordTypes))
	for _, recordType := range recordTypes {
		table, err := resolveTable(tables, recordType)
		if err != nil {
			return nil, err
		}
		requests = append(requests, NewDeleteTableRequest(table.TableName(), recordType).WithWhere(where))
	}
	return requests, nil
}
