package db

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the bundled schema migrations in apply order.
func Migrations() ([]string, error) {
	return LoadMigrationFS(embeddedMigrations, "migrations")
}

// LoadMigrations returns the migrations in dir, or the bundled ones when dir is empty.
func LoadMigrations(dir string) ([]string, error) {
	if dir == "" {
		return Migrations()
	}
	return LoadMigrationFiles(dir)
}

// LoadMigrationFiles reads all .sql files from dir, sorted by name, and returns their contents.
func LoadMigrationFiles(dir string) ([]string, error) {
	return LoadMigrationFS(os.DirFS(dir), ".")
}

// LoadMigrationFS reads all .sql files under dir in fsys, sorted by name.
func LoadMigrationFS(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		p := path.Join(dir, name)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, p, err)
		}
		out = append(out, string(data))
	}
	slog.Debug(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}
