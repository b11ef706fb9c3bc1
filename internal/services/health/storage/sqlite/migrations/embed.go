// Package migrations contains embedded SQL migrations for the shared
// health record tables. Record tables are created from record helpers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
