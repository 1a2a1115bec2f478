// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones de postgres.
//
//go:embed *.sql
var FS embed.FS
