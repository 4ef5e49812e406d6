package migrations

import "embed"

// FS contains embedded SQLite migrations for the vault transaction log.
//
//go:embed *.sql
var FS embed.FS
