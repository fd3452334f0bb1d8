// Package migrations embeds the goose migrations of the room store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
