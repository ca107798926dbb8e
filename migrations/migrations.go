// Package migrations embeds the SQL schema migrations so the binary can
// bring the database up to date on start without external files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
