package migrations

import "embed"

// FS contains embedded SQLite migrations for notification storage.
//
//go:embed *.sql
var FS embed.FS
