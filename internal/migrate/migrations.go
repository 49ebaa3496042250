package migrate

import (
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// migration is one embedded schema step. The numeric filename prefix is the
// version it brings the database to.
type migration struct {
	version int
	name    string
	upSQL   string
}

func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, errors.Errorf("migration file %q has no version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, errors.Wrapf(err, "migration file %q version prefix", name)
	}
	return v, nil
}

func loadMigrations() ([]migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded migrations")
	}
	steps := make([]migration, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		v, err := parseVersion(f.Name())
		if err != nil {
			return nil, err
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read migration %s", f.Name())
		}
		steps = append(steps, migration{version: v, name: f.Name(), upSQL: string(data)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// Migrate brings the database up to the newest embedded schema version. All
// outstanding steps apply inside a single transaction.
func Migrate(db *sql.DB) error {
	steps, err := loadMigrations()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return errors.Wrap(err, "ensure schema_version table")
	}

	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return errors.Wrap(err, "seed schema_version row")
		}
	case err != nil:
		return errors.Wrap(err, "read schema version")
	}

	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.upSQL); err != nil {
			return errors.Wrapf(err, "apply %s", m.name)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.version); err != nil {
			return errors.Wrapf(err, "record version %d", m.version)
		}
		current = m.version
	}
	return tx.Commit()
}
