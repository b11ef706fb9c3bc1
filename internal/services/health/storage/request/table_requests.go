package request

import (
	"fmt"
	"strings"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
)

// DeleteTableRequest deletes rows of one table selected by an id list and/or
// extra where clauses.
type DeleteTableRequest struct {
	Table    string
	IDColumn string
	// IDs restricts the delete to IDColumn IN (IDs) when non-nil.
	IDs   []string
	Where clause.WhereClauses
	// RecordType attributes change-log entries for the removed rows.
	RecordType storage.RecordType
	// UUIDColumn names the column read back for change-log entries; defaults
	// to uuid.
	UUIDColumn string
}

// NewDeleteTableRequest returns a request that deletes every row of table.
func NewDeleteTableRequest(table string, recordType storage.RecordType) DeleteTableRequest {
	return DeleteTableRequest{Table: table, RecordType: recordType, Where: clause.New(clause.And)}
}

// WithIDs returns a copy restricted to idColumn IN (ids).
func (r DeleteTableRequest) WithIDs(idColumn string, ids []string) DeleteTableRequest {
	r.IDColumn = idColumn
	r.IDs = append([]string{}, ids...)
	return r
}

// WithWhere returns a copy carrying the extra where clauses.
func (r DeleteTableRequest) WithWhere(where clause.WhereClauses) DeleteTableRequest {
	r.Where = where
	return r
}

func (r DeleteTableRequest) uuidColumn() string {
	if r.UUIDColumn == "" {
		return ColumnUUID
	}
	return r.UUIDColumn
}

// whereClauses joins the extra clauses and the id clause, extra first.
func (r DeleteTableRequest) whereClauses() clause.WhereClauses {
	where := clause.New(clause.And).Nested(r.Where)
	if r.IDs != nil {
		where = where.In(r.IDColumn, r.IDs)
	}
	return where
}

// DeleteCommand renders the DELETE statement.
func (r DeleteTableRequest) DeleteCommand() string {
	return appendClause("DELETE FROM "+r.Table, r.whereClauses().String())
}

// ReadCommand renders the SELECT that enumerates the rows DeleteCommand would
// remove, limit rows at a time after the given row id.
func (r DeleteTableRequest) ReadCommand(afterRowID int64, limit int) string {
	where := r.whereClauses().GreaterThan(ColumnRowID, afterRowID)
	return fmt.Sprintf("SELECT %s, %s FROM %s %s ORDER BY %s ASC LIMIT %d",
		ColumnRowID, r.uuidColumn(), r.Table, where.String(), ColumnRowID, limit)
}

// ReadTableRequest selects records of one table.
type ReadTableRequest struct {
	Table      string
	RecordType storage.RecordType
	Columns    []string
	Where      clause.WhereClauses
	// OrderBy is empty for id reads.
	OrderBy string
	// Limit is zero for unbounded reads.
	Limit  int
	Offset int
}

// Command renders the SELECT statement.
func (r ReadTableRequest) Command() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(r.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(r.Table)
	if where := r.Where.String(); where != "" {
		b.WriteString(" ")
		b.WriteString(where)
	}
	if r.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(r.OrderBy)
	}
	if r.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", r.Limit)
		if r.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", r.Offset)
		}
	}
	return b.String()
}

// UpsertTableRequest inserts or replaces one record row.
type UpsertTableRequest struct {
	Table      string
	RecordType storage.RecordType
	RecordID   string
	Columns    []string
	// values holds the bind values for Columns with the app and device ids
	// left as placeholders until the manager resolves them.
	values []any
}

// Command renders the INSERT ... ON CONFLICT statement. An existing row is
// only replaced by its owning package and when the incoming client record
// version is not lower. Ownership itself never changes.
func (r UpsertTableRequest) Command() string {
	placeholders := make([]string, len(r.Columns))
	updates := make([]string, 0, len(r.Columns))
	for i, column := range r.Columns {
		placeholders[i] = "?"
		if column == ColumnUUID || column == ColumnPackageName {
			continue
		}
		updates = append(updates, column+" = excluded."+column)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s WHERE %s.%s = excluded.%s AND excluded.%s >= %s.%s",
		r.Table,
		strings.Join(r.Columns, ", "),
		strings.Join(placeholders, ", "),
		ColumnUUID,
		strings.Join(updates, ", "),
		r.Table, ColumnPackageName, ColumnPackageName,
		ColumnClientRecordVersion,
		r.Table, ColumnClientRecordVersion,
	)
}

// Args returns the bind values with the resolved application and device row ids.
func (r UpsertTableRequest) Args(appInfoID int64, deviceInfoID *int64) []any {
	args := append([]any(nil), r.values...)
	for i, column := range r.Columns {
		switch column {
		case ColumnAppInfoID:
			args[i] = appInfoID
		case ColumnDeviceInfoID:
			if deviceInfoID == nil {
				args[i] = nil
			} else {
				args[i] = *deviceInfoID
			}
		}
	}
	return args
}

func appendClause(statement, where string) string {
	if where == "" {
		return statement
	}
	return statement + " " + where
}
