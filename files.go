package auth

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded schema migrations, rooted at the
// package directory.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsFS returns the migrations scoped to their own directory, ready to
// hand to a migration runner.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "data/sql/migrations")
}
