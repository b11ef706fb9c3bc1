package schema

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
)

// ForeignKey references rows of another table.
type ForeignKey struct {
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
}

// CreateTableRequest describes a table together with its indexes.
type CreateTableRequest struct {
	table       string
	columns     []Column
	foreignKeys []ForeignKey
	indexes     []CreateIndexRequest
}

// NewCreateTableRequest returns a request for table with columns in order.
func NewCreateTableRequest(table string, columns []Column) CreateTableRequest {
	return CreateTableRequest{
		table:   table,
		columns: append([]Column(nil), columns...),
	}
}

// Table returns the table name.
func (r CreateTableRequest) Table() string {
	return r.table
}

// Columns returns a copy of the column definitions.
func (r CreateTableRequest) Columns() []Column {
	return append([]Column(nil), r.columns...)
}

// WithForeignKey returns a copy with fk appended.
func (r CreateTableRequest) WithForeignKey(fk ForeignKey) CreateTableRequest {
	r.foreignKeys = append(append([]ForeignKey(nil), r.foreignKeys...), fk)
	return r
}

// WithIndex returns a copy with index appended.
func (r CreateTableRequest) WithIndex(index CreateIndexRequest) CreateTableRequest {
	r.indexes = append(append([]CreateIndexRequest(nil), r.indexes...), index)
	return r
}

// Statements renders the CREATE TABLE statement followed by its indexes.
func (r CreateTableRequest) Statements() ([]string, error) {
	if err := ValidateIdentifier(r.table); err != nil {
		return nil, err
	}
	if len(r.columns) == 0 {
		return nil, apperrors.WithMetadata(
			apperrors.CodeSchemaTableColumnsEmpty,
			"table requires at least one column",
			map[string]string{"table": r.table},
		)
	}
	if err := validateColumns(r.columns); err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(r.columns)+len(r.foreignKeys))
	for _, column := range r.columns {
		parts = append(parts, column.Name+" "+NormalizeType(column.Type))
	}
	for _, fk := range r.foreignKeys {
		if err := ValidateIdentifier(fk.ReferencedTable); err != nil {
			return nil, err
		}
		clause := fmt.Sprintf(
			"FOREIGN KEY (%s) REFERENCES %s(%s)",
			strings.Join(fk.Columns, ", "),
			fk.ReferencedTable,
			strings.Join(fk.ReferencedColumns, ", "),
		)
		if fk.OnDelete != "" {
			clause += " ON DELETE " + fk.OnDelete
		}
		parts = append(parts, clause)
	}

	statements := make([]string, 0, 1+len(r.indexes))
	statements = append(statements, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", r.table, strings.Join(parts, ", ")))
	for _, index := range r.indexes {
		statements = append(statements, index.IfNotExistsCommand())
	}
	return statements, nil
}
