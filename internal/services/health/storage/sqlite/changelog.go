package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
)

const insertChangeLogQuery = `
INSERT INTO change_logs (record_uuid, record_type, resource_kind, operation, package_name, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

// ChangeLogsRequest pages change-log rows written after Token.
type ChangeLogsRequest struct {
	Token    int64
	PageSize int
	// RecordTypes restricts record entries; medical resource entries are
	// always included.
	RecordTypes []storage.RecordType
}

// ChangeLogCount is the number of change-log rows of one kind, record type
// and operation.
type ChangeLogCount struct {
	Kind       storage.ResourceKind
	RecordType storage.RecordType
	Operation  storage.ChangeOperation
	Count      int64
}

// appendChangeLogs writes entries with one prepared statement.
func appendChangeLogs(ctx context.Context, tx *sql.Tx, entries []storage.ChangeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertChangeLogQuery)
	if err != nil {
		return storeError("prepare change log insert", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx,
			entry.RecordID,
			int64(entry.RecordType),
			int64(entry.Kind),
			int64(entry.Operation),
			entry.PackageName,
			toMillis(entry.CreatedAt),
		); err != nil {
			return storeError("insert change log", err)
		}
	}
	return nil
}

// ReadChangeLogs returns change-log rows after req.Token in write order.
func (m *TransactionManager) ReadChangeLogs(ctx context.Context, req ChangeLogsRequest) (storage.ChangeLogPage, error) {
	if err := m.ready(ctx); err != nil {
		return storage.ChangeLogPage{}, err
	}
	if req.Token < 0 {
		return storage.ChangeLogPage{}, apperrors.New(apperrors.CodePageTokenInvalid, "change log token must not be negative")
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = m.cfg.PageSize.Default
	}
	if pageSize > m.cfg.PageSize.Max {
		pageSize = m.cfg.PageSize.Max
	}

	where := clause.New(clause.And).GreaterThan("row_id", req.Token)
	if len(req.RecordTypes) > 0 {
		recordTypes := make([]int64, len(req.RecordTypes))
		for i, recordType := range req.RecordTypes {
			recordTypes[i] = int64(recordType)
		}
		where = where.Nested(clause.New(clause.Or).
			InInts("record_type", recordTypes).
			EqualInt("resource_kind", int64(storage.ResourceKindMedicalResource)))
	}
	query := fmt.Sprintf(`
SELECT row_id, record_uuid, record_type, resource_kind, operation, package_name, created_at
FROM change_logs
%s
ORDER BY row_id ASC
LIMIT %d
`, where.String(), pageSize+1)

	rows, err := m.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return storage.ChangeLogPage{}, storeError("read change logs", err)
	}
	defer rows.Close()

	page := storage.ChangeLogPage{NextToken: req.Token}
	for rows.Next() {
		var (
			entry                       storage.ChangeLogEntry
			recordType, kind, operation int64
			createdAt                   int64
		)
		if err := rows.Scan(&entry.Token, &entry.RecordID, &recordType, &kind, &operation, &entry.PackageName, &createdAt); err != nil {
			return storage.ChangeLogPage{}, storeError("scan change log", err)
		}
		entry.RecordType = storage.RecordType(recordType)
		entry.Kind = storage.ResourceKind(kind)
		entry.Operation = storage.ChangeOperation(operation)
		entry.CreatedAt = fromMillis(createdAt)
		page.Entries = append(page.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return storage.ChangeLogPage{}, storeError("iterate change logs", err)
	}

	if len(page.Entries) > pageSize {
		page.HasMore = true
		page.Entries = page.Entries[:pageSize]
	}
	if len(page.Entries) > 0 {
		page.NextToken = page.Entries[len(page.Entries)-1].Token
	}
	return page, nil
}

// LatestChangeLogToken returns the token of the newest change-log row, or
// zero when the log is empty.
func (m *TransactionManager) LatestChangeLogToken(ctx context.Context) (int64, error) {
	if err := m.ready(ctx); err != nil {
		return 0, err
	}
	var token int64
	if err := m.sqlDB.QueryRowContext(ctx, "SELECT COALESCE(MAX(row_id), 0) FROM change_logs").Scan(&token); err != nil {
		return 0, storeError("read latest change log token", err)
	}
	return token, nil
}

// ChangeLogCounts groups change-log rows written at or after since.
func (m *TransactionManager) ChangeLogCounts(ctx context.Context, since time.Time) ([]ChangeLogCount, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := m.sqlDB.QueryContext(ctx, `
SELECT resource_kind, record_type, operation, COUNT(*)
FROM change_logs
WHERE created_at >= ?
GROUP BY resource_kind, record_type, operation
ORDER BY resource_kind, record_type, operation
`, toMillis(since))
	if err != nil {
		return nil, storeError("count change logs", err)
	}
	defer rows.Close()

	var counts []ChangeLogCount
	for rows.Next() {
		var kind, recordType, operation, count int64
		if err := rows.Scan(&kind, &recordType, &operation, &count); err != nil {
			return nil, storeError("scan change log count", err)
		}
		counts = append(counts, ChangeLogCount{
			Kind:       storage.ResourceKind(kind),
			RecordType: storage.RecordType(recordType),
			Operation:  storage.ChangeOperation(operation),
			Count:      count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate change log counts", err)
	}
	return counts, nil
}

func pruneChangeLogs(ctx context.Context, tx *sql.Tx, before time.Time) (int, error) {
	result, err := tx.ExecContext(ctx, "DELETE FROM change_logs WHERE created_at < ?", toMillis(before))
	if err != nil {
		return 0, storeError("prune change logs", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("prune change logs", err)
	}
	return int(pruned), nil
}
