// Package sql embeds the goose migrations for the postgres session
// store.
package sql

import "embed"

//go:embed *.sql
var FS embed.FS
