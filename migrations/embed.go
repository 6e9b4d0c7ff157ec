// Package migrations holds the Postgres schema of the decode sink.
package migrations

import "embed"

// FS contains the numbered *.sql files, applied in name order by
// storage.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
