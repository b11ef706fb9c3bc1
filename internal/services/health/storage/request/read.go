package request

import (
	"maps"
	"slices"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/platform/pagination"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/filter"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/pagetoken"
)

// ReadFilter describes a filtered, paged read of one record type.
type ReadFilter struct {
	RecordType  storage.RecordType
	TimeRange   *storage.TimeRange
	DataOrigins []string
	PageSize    int
	// PageToken is the opaque token returned by a previous page, if any.
	PageToken string
	Order     pagination.SortOrder
	// Expression is an optional AIP-160 filter over data_origin,
	// client_record_id, start_time and end_time.
	Expression string
}

// ReadSelection is either ReadByIDs or ReadByFilter.
type ReadSelection interface {
	isReadSelection()
}

// ReadByIDs selects records by id, grouped by record type.
type ReadByIDs struct {
	IDs map[storage.RecordType][]string
}

// ReadByFilter selects one page of records of a single type.
type ReadByFilter struct {
	RecordType  storage.RecordType
	TimeRange   *storage.TimeRange
	DataOrigins []string
	PageSize    int
	Token       pagetoken.PageToken
	Where       clause.WhereClauses
}

func (ReadByIDs) isReadSelection()    {}
func (ReadByFilter) isReadSelection() {}

// ReadTransactionRequest is a read intent from one package.
type ReadTransactionRequest struct {
	packageName string
	selection   ReadSelection
}

// NewReadByIDs reads ids of a single record type.
func NewReadByIDs(packageName string, recordType storage.RecordType, ids []string) (ReadTransactionRequest, error) {
	return NewReadByIDMap(packageName, map[storage.RecordType][]string{recordType: ids})
}

// NewReadByIDMap reads ids across record types.
func NewReadByIDMap(packageName string, ids map[storage.RecordType][]string) (ReadTransactionRequest, error) {
	if err := validatePackageName(packageName); err != nil {
		return ReadTransactionRequest{}, err
	}
	if len(ids) == 0 {
		return ReadTransactionRequest{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "at least one record type is required")
	}
	copied := make(map[storage.RecordType][]string, len(ids))
	for recordType, recordIDs := range ids {
		if err := validateRecordType(recordType); err != nil {
			return ReadTransactionRequest{}, err
		}
		copied[recordType] = append([]string{}, recordIDs...)
	}
	return ReadTransactionRequest{
		packageName: packageName,
		selection:   ReadByIDs{IDs: copied},
	}, nil
}

// NewReadByFilter reads one page of a record type.
func NewReadByFilter(packageName string, f ReadFilter, cfg pagination.PageSizeConfig) (ReadTransactionRequest, error) {
	if err := validatePackageName(packageName); err != nil {
		return ReadTransactionRequest{}, err
	}
	if err := validateRecordType(f.RecordType); err != nil {
		return ReadTransactionRequest{}, err
	}
	if f.TimeRange != nil {
		if err := f.TimeRange.Validate(); err != nil {
			return ReadTransactionRequest{}, apperrors.Wrap(apperrors.CodeRequestInvalidArgument, "invalid time range", err)
		}
	}
	if f.PageSize < 0 {
		return ReadTransactionRequest{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "page size must not be negative")
	}

	token, err := resolvePageToken(f.PageToken, f.Order)
	if err != nil {
		return ReadTransactionRequest{}, err
	}

	where, err := filter.ParseRecordFilter(f.Expression)
	if err != nil {
		return ReadTransactionRequest{}, err
	}

	var timeRange *storage.TimeRange
	if f.TimeRange != nil {
		copied := *f.TimeRange
		timeRange = &copied
	}

	return ReadTransactionRequest{
		packageName: packageName,
		selection: ReadByFilter{
			RecordType:  f.RecordType,
			TimeRange:   timeRange,
			DataOrigins: append([]string(nil), f.DataOrigins...),
			PageSize:    pagination.ClampPageSize(int32(min(f.PageSize, 1<<30)), cfg),
			Token:       token,
			Where:       where,
		},
	}, nil
}

// resolvePageToken decodes the incoming token, or starts the sequence in the
// requested order. An explicit order must agree with the token direction.
func resolvePageToken(value string, order pagination.SortOrder) (pagetoken.PageToken, error) {
	if value == "" {
		return pagetoken.OfAscending(order != pagination.SortOrderDescending), nil
	}
	token, err := pagetoken.Decode(value)
	if err != nil {
		return pagetoken.PageToken{}, err
	}
	switch {
	case order == pagination.SortOrderAscending && !token.Ascending,
		order == pagination.SortOrderDescending && token.Ascending:
		return pagetoken.PageToken{}, apperrors.New(apperrors.CodePageTokenInvalid, "page token was issued for a different sort order")
	}
	return token, nil
}

// PackageName returns the requesting package.
func (r ReadTransactionRequest) PackageName() string {
	return r.packageName
}

// Selection returns the active selection mode.
func (r ReadTransactionRequest) Selection() ReadSelection {
	return r.selection
}

// ByIDs returns the id selection when the request is id based.
func (r ReadTransactionRequest) ByIDs() (ReadByIDs, bool) {
	selection, ok := r.selection.(ReadByIDs)
	return selection, ok
}

// ByFilter returns the filter selection when the request is filter based.
func (r ReadTransactionRequest) ByFilter() (ReadByFilter, bool) {
	selection, ok := r.selection.(ReadByFilter)
	return selection, ok
}

// PageToken returns the incoming page token; absent for id reads.
func (r ReadTransactionRequest) PageToken() (pagetoken.PageToken, bool) {
	selection, ok := r.ByFilter()
	if !ok {
		return pagetoken.PageToken{}, false
	}
	return selection.Token, true
}

// PageSize returns the clamped page size; absent for id reads.
func (r ReadTransactionRequest) PageSize() (int, bool) {
	selection, ok := r.ByFilter()
	if !ok {
		return 0, false
	}
	return selection.PageSize, true
}

// RecordTypes returns the record types the request touches.
func (r ReadTransactionRequest) RecordTypes() []storage.RecordType {
	switch selection := r.selection.(type) {
	case ReadByIDs:
		set := make(map[storage.RecordType]struct{}, len(selection.IDs))
		for recordType := range selection.IDs {
			set[recordType] = struct{}{}
		}
		return sortedRecordTypes(set)
	case ReadByFilter:
		return []storage.RecordType{selection.RecordType}
	default:
		return nil
	}
}

// IsReadingSelfData reports whether the read is limited to the requesting
// package's own records.
//
// Id reads are always reported as self reads: reads of another package's
// records by id are not yet told apart.
func (r ReadTransactionRequest) IsReadingSelfData() bool {
	switch selection := r.selection.(type) {
	case ReadByIDs:
		return true
	case ReadByFilter:
		if len(selection.DataOrigins) == 0 {
			return false
		}
		for _, origin := range selection.DataOrigins {
			if origin != r.packageName {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// TableRequests renders one SELECT per record type.
func (r ReadTransactionRequest) TableRequests(tables Tables) ([]ReadTableRequest, error) {
	switch selection := r.selection.(type) {
	case ReadByIDs:
		return selection.tableRequests(tables)
	case ReadByFilter:
		request, err := selection.tableRequest(tables)
		if err != nil {
			return nil, err
		}
		return []ReadTableRequest{request}, nil
	default:
		return nil, apperrors.New(apperrors.CodeRequestWrongMode, "read request has no selection")
	}
}

func (s ReadByIDs) tableRequests(tables Tables) ([]ReadTableRequest, error) {
	recordTypes := slices.Sorted(maps.Keys(s.IDs))
	requests := make([]ReadTableRequest, 0, len(recordTypes))
	for _, recordType := range recordTypes {
		table, err := resolveTable(tables, recordType)
		if err != nil {
			return nil, err
		}
		requests = append(requests, ReadTableRequest{
			Table:      table.TableName(),
			RecordType: recordType,
			Columns:    append(SelectColumns(), table.PayloadColumns()...),
			Where:      clause.New(clause.And).In(ColumnUUID, s.IDs[recordType]),
		})
	}
	return requests, nil
}

func (s ReadByFilter) tableRequest(tables Tables) (ReadTableRequest, error) {
	table, err := resolveTable(tables, s.RecordType)
	if err != nil {
		return ReadTableRequest{}, err
	}

	where := clause.New(clause.And)
	if s.TimeRange != nil {
		if !s.TimeRange.Start.IsZero() {
			where = where.GreaterThanOrEqual(ColumnStartTime, s.TimeRange.Start.UnixMilli())
		}
		if !s.TimeRange.End.IsZero() {
			where = where.LessThan(ColumnStartTime, s.TimeRange.End.UnixMilli())
		}
	}
	if len(s.DataOrigins) > 0 {
		origins := clause.New(clause.Or)
		for _, origin := range s.DataOrigins {
			origins = origins.Equal(ColumnPackageName, origin)
		}
		where = where.Nested(origins)
	}
	where = where.Nested(s.Where)

	direction := pagination.SortOrderAscending
	if !s.Token.Ascending {
		direction = pagination.SortOrderDescending
	}
	offset := 0
	if !s.Token.IsStart() {
		if s.Token.Ascending {
			where = where.GreaterThanOrEqual(ColumnStartTime, s.Token.TimeMillis)
		} else {
			where = where.LessThanOrEqual(ColumnStartTime, s.Token.TimeMillis)
		}
		offset = int(s.Token.Offset)
	}

	return ReadTableRequest{
		Table:      table.TableName(),
		RecordType: s.RecordType,
		Columns:    append(SelectColumns(), table.PayloadColumns()...),
		Where:      where,
		OrderBy:    ColumnStartTime + " " + direction.String() + ", " + ColumnRowID + " " + direction.String(),
		// One extra row tells the manager whether another page exists.
		Limit:  s.PageSize + 1,
		Offset: offset,
	}, nil
}
