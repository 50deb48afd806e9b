// Package migrate applies the embedded PostgreSQL schema.
package migrate

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

const migrationsDir = "sql"

// engine is the subset of *migrate.Migrate the Manager drives.
type engine interface {
	Up() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Manager executes the embedded SQL migrations.
type Manager struct {
	m engine
}

// NewManager connects to databaseURL. postgres:// and postgresql:// URLs are
// accepted and rewritten to the pgx5 scheme the driver registers.
func NewManager(databaseURL string) (*Manager, error) {
	source, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, DriverURL(databaseURL))
	if err != nil {
		_ = source.Close()
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	return &Manager{m: m}, nil
}

// DriverURL maps a libpq-style URL onto the pgx5 scheme.
func DriverURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Up applies all pending migrations.
func (m *Manager) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down() error {
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		return oops.Code("MIGRATION_DOWN_FAILED").Errorf("no migrations applied")
	}
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Version reports the applied version; zero means a fresh database.
func (m *Manager) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Status returns ordered applied migrations.
func (m *Manager) Status() ([]string, error) {
	version, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	all, err := Available()
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, mig := range all {
		if mig.Version <= version {
			applied = append(applied, mig.Name)
		}
	}
	return applied, nil
}

func (m *Manager) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Migration identifies one embedded up/down pair.
type Migration struct {
	Version uint
	Name    string
}

// Available lists embedded migrations in ascending version order.
func Available() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").Wrap(err)
	}
	var out []Migration
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if !ok {
			continue
		}
		var version uint
		if _, err := fmt.Sscanf(name, "%06d", &version); err != nil {
			return nil, oops.Code("MIGRATION_NAME_INVALID").With("file", e.Name()).Wrap(err)
		}
		out = append(out, Migration{Version: version, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
