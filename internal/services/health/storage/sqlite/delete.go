package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"go.opentelemetry.io/otel/attribute"
)

// DeleteAll executes a delete request and returns the number of removed rows.
// Every removed row gets its own change-log entry in the same transaction.
func (m *TransactionManager) DeleteAll(ctx context.Context, req request.DeleteTransactionRequest) (int, error) {
	if err := m.ready(ctx); err != nil {
		return 0, err
	}
	tableRequests, err := req.TableRequests(m.tables)
	if err != nil {
		return 0, err
	}

	var deleted int
	err = m.inTransaction(ctx, "delete_all", func(ctx context.Context, tx *sql.Tx) error {
		deleted, err = m.deleteTables(ctx, tx, tableRequests, req.PackageName(), storage.ResourceKindRecord)
		return err
	}, attribute.String("healthrecords.package_name", req.PackageName()))
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (m *TransactionManager) deleteTables(ctx context.Context, tx *sql.Tx, tableRequests []request.DeleteTableRequest, packageName string, kind storage.ResourceKind) (int, error) {
	var total int
	for _, tableRequest := range tableRequests {
		deleted, err := m.deleteTable(ctx, tx, tableRequest, packageName, kind)
		if err != nil {
			return 0, err
		}
		total += deleted
	}
	return total, nil
}

// deleteTable enumerates matching rows a batch at a time by row id, deletes
// each batch by uuid and logs every removed row.
func (m *TransactionManager) deleteTable(ctx context.Context, tx *sql.Tx, tableRequest request.DeleteTableRequest, packageName string, kind storage.ResourceKind) (int, error) {
	batchSize := m.cfg.DeleteBatchSize
	uuidColumn := tableRequest.UUIDColumn
	if uuidColumn == "" {
		uuidColumn = request.ColumnUUID
	}

	var (
		total     int
		afterRow  int64
		createdAt = m.now()
	)
	for {
		rowIDs, uuids, err := readDeleteBatch(ctx, tx, tableRequest, afterRow, batchSize)
		if err != nil {
			return 0, err
		}
		if len(uuids) == 0 {
			break
		}

		chunk := request.NewDeleteTableRequest(tableRequest.Table, tableRequest.RecordType).WithIDs(uuidColumn, uuids)
		result, err := tx.ExecContext(ctx, chunk.DeleteCommand())
		if err != nil {
			return 0, storeError("delete from "+tableRequest.Table, err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return 0, storeError("delete from "+tableRequest.Table, err)
		}
		if int(removed) != len(uuids) {
			return 0, storeError("delete from "+tableRequest.Table, fmt.Errorf("removed %d rows, enumerated %d", removed, len(uuids)))
		}

		entries := make([]storage.ChangeLogEntry, len(uuids))
		for i, id := range uuids {
			entries[i] = storage.ChangeLogEntry{
				RecordID:    id,
				RecordType:  tableRequest.RecordType,
				Kind:        kind,
				Operation:   storage.ChangeOperationDelete,
				PackageName: packageName,
				CreatedAt:   createdAt,
			}
		}
		if err := appendChangeLogs(ctx, tx, entries); err != nil {
			return 0, err
		}

		total += len(uuids)
		afterRow = rowIDs[len(rowIDs)-1]
		if len(uuids) < batchSize {
			break
		}
	}
	return total, nil
}

func readDeleteBatch(ctx context.Context, tx *sql.Tx, tableRequest request.DeleteTableRequest, afterRow int64, limit int) ([]int64, []string, error) {
	rows, err := tx.QueryContext(ctx, tableRequest.ReadCommand(afterRow, limit))
	if err != nil {
		return nil, nil, storeError("enumerate "+tableRequest.Table, err)
	}
	defer rows.Close()

	var (
		rowIDs []int64
		uuids  []string
	)
	for rows.Next() {
		var (
			rowID int64
			id    string
		)
		if err := rows.Scan(&rowID, &id); err != nil {
			return nil, nil, storeError("scan "+tableRequest.Table, err)
		}
		rowIDs = append(rowIDs, rowID)
		uuids = append(uuids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storeError("enumerate "+tableRequest.Table, err)
	}
	return rowIDs, uuids, nil
}
