package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/runcache/internal/registry"
)

//go:embed schema.sql
var schemaSQL string

var _ registry.Registry = (*Store)(nil)

// Store is a registry of workspaces persisted in SQLite. Every mutation is
// also appended to the registry_events log.
//
// A Store holds a single connection; callers in one process share it.
type Store struct {
	db      *sql.DB
	clock   *Clock
	session string
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSession sets the session token recorded on every event.
func WithSession(token string) Option {
	return func(s *Store) {
		s.session = token
	}
}

// WithSessionGenerator draws the session token from gen.
func WithSessionGenerator(gen SessionGenerator) Option {
	return func(s *Store) {
		s.session = gen.Generate()
	}
}

// WithLogger sets the logger used for schema upgrades. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// pragmas are applied on every open. ":memory:" databases report
// journal_mode "memory" instead of "wal".
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// migration upgrades a database to version.
type migration struct {
	version int
	desc    string
	stmt    string
}

// migrations run in order against databases whose user_version is below
// their version. The base schema is version 0.
var migrations = []migration{
	{
		version: 1,
		desc:    "index workspaces by run number",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_workspaces_run_number ON workspaces(run_number)`,
	},
	{
		version: 2,
		desc:    "index events by session",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_registry_events_session ON registry_events(session)`,
	},
}

// schemaVersion is the user_version of a fully migrated database.
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Open creates or opens the registry database at path, applying pragmas,
// the base schema and pending migrations. Opening an existing database
// resumes its event clock after the last recorded event.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == "" {
		s.session = UUIDv7Generator{}.Generate()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := s.initialize(db); err != nil {
		db.Close()
		return nil, err
	}

	var last int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM registry_events`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read clock position: %w", err)
	}

	s.db = db
	s.clock = NewClockAt(last)
	return s, nil
}

func (s *Store) initialize(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return s.migrate(db)
}

// migrate applies every migration newer than the stored user_version.
func (s *Store) migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.desc, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
		}
		s.logger.Debug("migrated registry schema", "version", m.version, "change", m.desc)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Session returns the session token recorded on events written by this store.
func (s *Store) Session() string {
	return s.session
}

// pragma returns the current value of a SQLite pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("query pragma %s: %w", name, err)
	}
	return value, nil
}
