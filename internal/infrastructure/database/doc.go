// Package database provides SQLite connectivity and schema migrations for
// Hydroconnect Core.
//
// The database holds user accounts, device key hashes, water usage sessions
// and the audit log. It is opened with foreign keys on and, by default, WAL
// mode so API readers do not block ingest writes. The file is chmod 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are pairs of YYYYMMDD_HHMMSS_name.up.sql / .down.sql files,
// applied in version order, each inside its own transaction.
package database
