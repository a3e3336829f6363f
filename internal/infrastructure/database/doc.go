// Package database provides the SQLite store behind the property catalogue.
//
// This package manages:
//   - A single-connection SQLite handle (WAL mode for file databases)
//   - In-memory databases for tests via MemoryPath
//   - Versioned up/down migrations read from any fs.FS
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. A new column must be NULLABLE or carry a DEFAULT,
// and every .up.sql should ship with a .down.sql.
package database
