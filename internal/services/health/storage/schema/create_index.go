package schema

import (
	"strings"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
)

// CreateIndexRequest renders a single CREATE [UNIQUE] INDEX statement.
type CreateIndexRequest struct {
	table     string
	indexName string
	unique    bool
	columns   []string
}

// NewCreateIndexRequest validates and returns an index request. Column order
// is preserved since composite index semantics depend on it.
func NewCreateIndexRequest(table, indexName string, unique bool, columns []string) (CreateIndexRequest, error) {
	if len(columns) == 0 {
		return CreateIndexRequest{}, apperrors.WithMetadata(
			apperrors.CodeSchemaIndexColumnsEmpty,
			"index requires at least one column",
			map[string]string{"table": table, "index": indexName},
		)
	}
	for _, name := range append([]string{table, indexName}, columns...) {
		if err := ValidateIdentifier(name); err != nil {
			return CreateIndexRequest{}, err
		}
	}
	return CreateIndexRequest{
		table:     table,
		indexName: indexName,
		unique:    unique,
		columns:   append([]string(nil), columns...),
	}, nil
}

// MustCreateIndexRequest is NewCreateIndexRequest for static definitions.
func MustCreateIndexRequest(table, indexName string, unique bool, columns ...string) CreateIndexRequest {
	request, err := NewCreateIndexRequest(table, indexName, unique, columns)
	if err != nil {
		panic(err)
	}
	return request
}

// Name returns the index name.
func (r CreateIndexRequest) Name() string {
	return r.indexName
}

// Command renders the CREATE INDEX statement.
func (r CreateIndexRequest) Command() string {
	return r.render(false)
}

// IfNotExistsCommand renders the idempotent variant used by schema upgrades.
func (r CreateIndexRequest) IfNotExistsCommand() string {
	return r.render(true)
}

func (r CreateIndexRequest) render(ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if r.unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(r.indexName)
	b.WriteString(" ON ")
	b.WriteString(r.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(r.columns, ", "))
	b.WriteString(")")
	return b.String()
}
