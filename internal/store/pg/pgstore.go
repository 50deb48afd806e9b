// Package pg implements the registry store on PostgreSQL through pgx's
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"confreg.org/internal/auth"
	"confreg.org/internal/registry"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// Open prepares a pool without touching the network.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle; tests use it with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

// WaitReady pings the database with exponential backoff until it answers,
// attempts run out, or ctx ends.
func (s *Store) WaitReady(ctx context.Context, attempts uint64, base time.Duration) error {
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempts).Wrap(err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Admins() registry.AdminStore               { return adminStore{db: s.db} }
func (s *Store) Users() registry.UserStore                 { return userStore{db: s.db} }
func (s *Store) Attendees() registry.AttendeeStore         { return attendeeStore{db: s.db} }
func (s *Store) Organizations() registry.OrganizationStore { return organizationStore{db: s.db} }

type conflictInfo struct {
	field   string
	message string
}

var conflicts = map[string]conflictInfo{
	"admins_email_key":               {"email", "email already registered"},
	"admins_username_key":            {"username", "username already taken"},
	"users_contact_person_email_key": {"contact_person_email", "email already registered"},
	"users_short_code_username_key":  {"username", "username already taken for this organization"},
	"attendees_email_key":            {"email", "attendee with this email already exists"},
	"organizations_abbreviation_key": {"abbreviation", "organization abbreviation already exists"},
}

// translate maps constraint violations onto registry errors and leaves
// everything else untouched.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		if c, ok := conflicts[pgErr.ConstraintName]; ok {
			return registry.Conflict(c.field, c.message)
		}
		return registry.Conflict("", "record already exists")
	case pgErrForeignKeyViolation:
		if pgErr.ConstraintName == "organizations_parent_id_fkey" {
			return registry.Invalid("parent_id", "parent organization does not exist")
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
