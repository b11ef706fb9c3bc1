package schema

import (
	"fmt"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
)

// AlterTableRequest adds columns to an existing table.
type AlterTableRequest struct {
	table   string
	columns []Column
}

// NewAlterTableRequest returns a request adding columns to table in order.
func NewAlterTableRequest(table string, columns []Column) AlterTableRequest {
	return AlterTableRequest{
		table:   table,
		columns: append([]Column(nil), columns...),
	}
}

// Table returns the altered table name.
func (r AlterTableRequest) Table() string {
	return r.table
}

// Columns returns a copy of the columns to add.
func (r AlterTableRequest) Columns() []Column {
	return append([]Column(nil), r.columns...)
}

// Statements returns one ADD COLUMN statement per column. SQLite accepts a
// single column per ALTER TABLE, so each statement is independently executable.
func (r AlterTableRequest) Statements() ([]string, error) {
	if err := ValidateIdentifier(r.table); err != nil {
		return nil, err
	}
	if len(r.columns) == 0 {
		return nil, apperrors.WithMetadata(
			apperrors.CodeSchemaAlterTableColumnsEmpty,
			"alter table requires at least one column",
			map[string]string{"table": r.table},
		)
	}
	if err := validateColumns(r.columns); err != nil {
		return nil, err
	}
	for _, column := range r.columns {
		if RequiresDefault(column.Type) {
			return nil, apperrors.WithMetadata(
				apperrors.CodeSchemaNotNullWithoutDefault,
				fmt.Sprintf("column %s.%s is NOT NULL without a default", r.table, column.Name),
				map[string]string{"table": r.table, "column": column.Name},
			)
		}
	}

	statements := make([]string, 0, len(r.columns))
	for _, column := range r.columns {
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", r.table, column.Name, NormalizeType(column.Type)))
	}
	return statements, nil
}
