package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/pagetoken"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/recordhelper"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"go.opentelemetry.io/otel/attribute"
)

// scannedRecord is a record plus the row metadata needed after the scan.
type scannedRecord struct {
	record       storage.Record
	deviceInfoID sql.NullInt64
}

// ReadRecordsByIDs returns the records named by an id read.
func (m *TransactionManager) ReadRecordsByIDs(ctx context.Context, req request.ReadTransactionRequest) ([]storage.Record, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	if _, ok := req.ByIDs(); !ok {
		return nil, apperrors.New(apperrors.CodeRequestWrongMode, "read by ids requires an id request")
	}
	tableRequests, err := req.TableRequests(m.tables)
	if err != nil {
		return nil, err
	}

	var records []storage.Record
	err = m.inTransaction(ctx, "read_records_by_ids", func(ctx context.Context, tx *sql.Tx) error {
		for _, tableRequest := range tableRequests {
			scanned, err := m.queryRecords(ctx, tx, tableRequest)
			if err != nil {
				return err
			}
			resolved, err := attachDevices(ctx, tx, scanned)
			if err != nil {
				return err
			}
			records = append(records, resolved...)
		}
		return nil
	}, attribute.String("healthrecords.package_name", req.PackageName()))
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadRecordsAndPageToken returns one page of a filtered read and the token
// of the next page, empty at the end of the sequence.
func (m *TransactionManager) ReadRecordsAndPageToken(ctx context.Context, req request.ReadTransactionRequest) (storage.RecordPage, error) {
	if err := m.ready(ctx); err != nil {
		return storage.RecordPage{}, err
	}
	selection, ok := req.ByFilter()
	if !ok {
		return storage.RecordPage{}, apperrors.New(apperrors.CodeRequestWrongMode, "paged read requires a filter request")
	}
	tableRequests, err := req.TableRequests(m.tables)
	if err != nil {
		return storage.RecordPage{}, err
	}
	if len(tableRequests) != 1 {
		return storage.RecordPage{}, fmt.Errorf("paged read expects one table request, got %d", len(tableRequests))
	}

	var page storage.RecordPage
	err = m.inTransaction(ctx, "read_records_and_page_token", func(ctx context.Context, tx *sql.Tx) error {
		scanned, err := m.queryRecords(ctx, tx, tableRequests[0])
		if err != nil {
			return err
		}
		hasMore := len(scanned) > selection.PageSize
		if hasMore {
			scanned = scanned[:selection.PageSize]
		}
		records, err := attachDevices(ctx, tx, scanned)
		if err != nil {
			return err
		}
		page.Records = records
		if hasMore {
			times := make([]int64, len(records))
			for i, record := range records {
				times[i] = toMillis(record.StartTime)
			}
			page.NextPageToken = pagetoken.Next(selection.Token, times).Encode()
		}
		return nil
	},
		attribute.String("healthrecords.package_name", req.PackageName()),
		attribute.String("healthrecords.record_type", selection.RecordType.String()),
		attribute.Int("healthrecords.page_size", selection.PageSize),
	)
	if err != nil {
		return storage.RecordPage{}, err
	}
	return page, nil
}

func (m *TransactionManager) queryRecords(ctx context.Context, tx *sql.Tx, tableRequest request.ReadTableRequest) ([]scannedRecord, error) {
	helper, err := m.tables.Helper(tableRequest.RecordType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRequestUnknownRecordType, "resolve record helper", err)
	}

	rows, err := tx.QueryContext(ctx, tableRequest.Command())
	if err != nil {
		return nil, storeError("query "+tableRequest.Table, err)
	}
	defer rows.Close()

	var scanned []scannedRecord
	for rows.Next() {
		row, err := scanRecord(rows, helper)
		if err != nil {
			return nil, storeError("scan "+tableRequest.Table, err)
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate "+tableRequest.Table, err)
	}
	return scanned, nil
}

// scanRecord reads request.SelectColumns followed by the payload columns.
func scanRecord(rows *sql.Rows, helper recordhelper.Helper) (scannedRecord, error) {
	var (
		row                 scannedRecord
		rowID               int64
		appInfoID           sql.NullInt64
		clientRecordID      sql.NullString
		startTime, modified int64
		endTime             sql.NullInt64
		zoneOffset          int64
	)
	payloadDest, buildPayload := helper.PayloadScanner()
	dest := []any{
		&rowID,
		&row.record.ID,
		&row.record.PackageName,
		&appInfoID,
		&row.deviceInfoID,
		&clientRecordID,
		&row.record.ClientRecordVersion,
		&startTime,
		&endTime,
		&zoneOffset,
		&modified,
	}
	if err := rows.Scan(append(dest, payloadDest...)...); err != nil {
		return scannedRecord{}, err
	}

	row.record.ClientRecordID = clientRecordID.String
	row.record.StartTime = fromMillis(startTime)
	if endTime.Valid {
		row.record.EndTime = fromMillis(endTime.Int64)
	}
	row.record.ZoneOffsetSeconds = int32(zoneOffset)
	row.record.LastModifiedTime = fromMillis(modified)
	row.record.Payload = buildPayload()
	return row, nil
}

// attachDevices resolves device rows for the scanned records.
func attachDevices(ctx context.Context, tx *sql.Tx, scanned []scannedRecord) ([]storage.Record, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, row := range scanned {
		if !row.deviceInfoID.Valid {
			continue
		}
		if _, ok := seen[row.deviceInfoID.Int64]; ok {
			continue
		}
		seen[row.deviceInfoID.Int64] = struct{}{}
		ids = append(ids, row.deviceInfoID.Int64)
	}

	devices := make(map[int64]storage.Device, len(ids))
	if len(ids) > 0 {
		where := clause.New(clause.And).InInts("row_id", ids)
		rows, err := tx.QueryContext(ctx, "SELECT row_id, manufacturer, model, device_type FROM "+recordhelper.DeviceInfoTable+" "+where.String())
		if err != nil {
			return nil, storeError("query devices", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id         int64
				device     storage.Device
				deviceType int64
			)
			if err := rows.Scan(&id, &device.Manufacturer, &device.Model, &deviceType); err != nil {
				return nil, storeError("scan device", err)
			}
			device.Type = storage.DeviceType(deviceType)
			devices[id] = device
		}
		if err := rows.Err(); err != nil {
			return nil, storeError("iterate devices", err)
		}
	}

	records := make([]storage.Record, len(scanned))
	for i, row := range scanned {
		records[i] = row.record
		if row.deviceInfoID.Valid {
			records[i].Device = devices[row.deviceInfoID.Int64]
		}
	}
	return records, nil
}
