package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type migration struct {
	name string
	sql  []byte
}

// RunMigrations brings the survey schema up to date. When migrationsDir is
// set its *.sql files are used (deployments mounting a custom schema);
// otherwise the embedded files ship with the binary. Files run in name order,
// and every statement is written to be re-runnable on an existing database.
func RunMigrations(db *sql.DB, migrationsDir string) error {
	ms, err := loadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	for _, m := range ms {
		if len(m.sql) == 0 {
			continue
		}
		if _, err := db.Exec(string(m.sql)); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}
	}
	return nil
}

func loadMigrations(dir string) ([]migration, error) {
	if dir != "" {
		ms, err := readMigrationDir(dir)
		if err == nil {
			return ms, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	entries, err := embeddedMigrations.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	var ms []migration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := embeddedMigrations.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read embedded migration %s: %w", entry.Name(), err)
		}
		ms = append(ms, migration{name: entry.Name(), sql: content})
	}
	sortMigrations(ms)
	return ms, nil
}

func readMigrationDir(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ms []migration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		ms = append(ms, migration{name: entry.Name(), sql: content})
	}
	sortMigrations(ms)
	return ms, nil
}

func sortMigrations(ms []migration) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })
}
