// Package schema renders DDL for record tables and validates the constraints
// SQLite rejects at execution time, so upgrades fail before reaching the store.
package schema

import (
	"regexp"
	"strings"
	"unicode"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
)

// Column type strings shared by the record tables.
const (
	TypeText                 = "TEXT"
	TypeTextNotNull          = "TEXT NOT NULL"
	TypeTextNotNullUnique    = "TEXT NOT NULL UNIQUE"
	TypeInteger              = "INTEGER"
	TypeIntegerNotNull       = "INTEGER NOT NULL"
	TypeIntegerDefaultZero   = "INTEGER NOT NULL DEFAULT 0"
	TypeReal                 = "REAL"
	TypeRealNotNull          = "REAL NOT NULL"
	TypeBlob                 = "BLOB"
	TypePrimaryAutoincrement = "INTEGER PRIMARY KEY AUTOINCREMENT"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columnTypeRe is the accepted column type grammar after NormalizeType: a
// storage class followed by column constraints.
var columnTypeRe = regexp.MustCompile(
	`^(TEXT|INTEGER|REAL|BLOB|NUMERIC)` +
		`( (NOT NULL|UNIQUE|PRIMARY KEY|AUTOINCREMENT|DEFAULT (-?[0-9]+(\.[0-9]+)?|'[^']*'|NULL)))*$`,
)

// Column is one (name, type) pair.
type Column struct {
	Name string
	Type string
}

// ValidateIdentifier rejects table, column and index names that would need quoting.
func ValidateIdentifier(name string) error {
	if len(name) > 128 || !identifierRe.MatchString(name) {
		return apperrors.WithMetadata(
			apperrors.CodeSchemaInvalidIdentifier,
			"invalid sql identifier: "+name,
			map[string]string{"identifier": name},
		)
	}
	return nil
}

// NormalizeType collapses whitespace runs to one space and upper-cases
// keywords. Quoted literals are kept as written.
func NormalizeType(columnType string) string {
	var (
		b       strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range strings.TrimSpace(columnType) {
		if !quoted && unicode.IsSpace(r) {
			pending = true
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		if r == '\'' {
			quoted = !quoted
		}
		if !quoted {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidateType rejects column types outside the storage class and
// constraint grammar the record tables use.
func ValidateType(columnType string) error {
	if !columnTypeRe.MatchString(NormalizeType(columnType)) {
		return apperrors.WithMetadata(
			apperrors.CodeSchemaInvalidColumnType,
			"invalid column type: "+columnType,
			map[string]string{"type": columnType},
		)
	}
	return nil
}

// RequiresDefault reports whether a column type declares NOT NULL without a
// DEFAULT, which SQLite refuses when adding the column to an existing table.
func RequiresDefault(columnType string) bool {
	normalized := " " + NormalizeType(columnType) + " "
	return strings.Contains(normalized, " NOT NULL ") && !strings.Contains(normalized, " DEFAULT ")
}

func validateColumns(columns []Column) error {
	for _, column := range columns {
		if err := ValidateIdentifier(column.Name); err != nil {
			return err
		}
		if err := ValidateType(column.Type); err != nil {
			return err
		}
	}
	return nil
}
