// Package migrations holds the meterthing schema, compiled into the binary.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS is the migration source passed to database.DB.Migrate.
var FS fs.FS = files
