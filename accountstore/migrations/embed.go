// Package migrations embeds the goose SQL migrations for the accounts and
// audit_logs tables.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
