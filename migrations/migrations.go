// Package migrations embeds the goose migrations for the pool store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
