// Package database provides the node's SQLite connection and schema
// migrations.
//
// The node keeps two things in SQLite: the declarative node document
// (metadata plus every deviceN/sensorN entry, saved by SaveSchedules) and
// the rule history written by the automation observer. In-flight timers are
// never persisted; the schedule is rebuilt from the document at boot.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration scripts live in the top-level migrations package, which
// registers itself through MigrationsFS when imported.
package database
