// Package database opens the SQLite database that hosts the device tables.
//
// The database only stores table definitions. Device state lives in the
// bridge's in-memory cache and on the device itself, so the default is an
// in-memory database; a file path keeps table definitions across restarts.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:       cfg.Database.Path,
//	    DriverName: "sqlite3_ircon",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// Security Considerations:
//   - Database file permissions are set to 0600 (owner read/write only)
package database
