package inbox

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the inbox schema for postgres, with the sqlite
// variant under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree rooted at the module.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
