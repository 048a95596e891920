package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// getMigrationsFS returns the migration source with the SQL files at
// its root. Production uses the embedded copy; setting
// HAPTABLE_MIGRATIONS_DIR points at a local directory instead, so
// schema work does not require a rebuild per edit.
func getMigrationsFS() (fs.FS, error) {
	if dir := os.Getenv("HAPTABLE_MIGRATIONS_DIR"); dir != "" {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return nil, fmt.Errorf("HAPTABLE_MIGRATIONS_DIR %q is not a directory", dir)
		}
		return os.DirFS(dir), nil
	}
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations missing: %w", err)
	}
	return sub, nil
}
