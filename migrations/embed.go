// Package migrations embeds the SQL migration files for the iofs
// migrate source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
