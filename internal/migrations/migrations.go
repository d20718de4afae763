// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// Migrations holds the ordered schema files.
//
//go:embed *.sql
var Migrations embed.FS
