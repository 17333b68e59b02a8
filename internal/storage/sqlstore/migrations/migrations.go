package migrations

import "embed"

// FS holds the schema migrations shared by the PostgreSQL and SQLite stores.
//
//go:embed *.sql
var FS embed.FS
