package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store persists application definitions in SQLite (modernc.org/sqlite,
// CGO-free). Use ":memory:" for tests. Process state never lives here;
// only launch definitions do.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty registry path")
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single pooled connection so the busy_timeout pragma governs every
	// statement; registry traffic is far too light to need more
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	s := &Store{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS apps(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			path TEXT NOT NULL,
			entry TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			args TEXT NULL,
			env TEXT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_apps_name ON apps(name);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create inserts a validated definition and returns it with its new id.
func (s *Store) Create(ctx context.Context, d Definition) (Definition, error) {
	d = Normalize(d)
	if err := Validate(d); err != nil {
		return Definition{}, err
	}
	if _, err := s.GetByName(ctx, d.Name); err == nil {
		return Definition{}, ErrNameTaken
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO apps(name, path, entry, host, port, args, env, enabled, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		d.Name, d.Path, d.Entry, d.Host, d.Port, nullable(d.Args), nullable(packEnv(d.Env)), d.Enabled, now, now)
	if err != nil {
		// a concurrent create can slip past the name pre-check; the
		// UNIQUE constraint is the backstop
		if isUniqueViolation(err) {
			return Definition{}, ErrNameTaken
		}
		return Definition{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Definition{}, err
	}
	d.ID = id
	d.CreatedAt = now
	d.UpdatedAt = now
	return d, nil
}

// Update replaces the definition stored under d.ID.
func (s *Store) Update(ctx context.Context, d Definition) (Definition, error) {
	d = Normalize(d)
	if err := Validate(d); err != nil {
		return Definition{}, err
	}
	if other, err := s.GetByName(ctx, d.Name); err == nil && other.ID != d.ID {
		return Definition{}, ErrNameTaken
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE apps SET name=?, path=?, entry=?, host=?, port=?, args=?, env=?, enabled=?, updated_at=?
		WHERE id=?;`,
		d.Name, d.Path, d.Entry, d.Host, d.Port, nullable(d.Args), nullable(packEnv(d.Env)), d.Enabled, now, d.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Definition{}, ErrNameTaken
		}
		return Definition{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Definition{}, ErrNotFound
	}
	d.UpdatedAt = now
	return d, nil
}

// UpsertByName creates the definition or updates the row with the same
// name. Used by YAML import; never starts anything.
func (s *Store) UpsertByName(ctx context.Context, d Definition) (Definition, error) {
	existing, err := s.GetByName(ctx, strings.TrimSpace(d.Name))
	if err == nil {
		d.ID = existing.ID
		return s.Update(ctx, d)
	}
	if !errors.Is(err, ErrNotFound) {
		return Definition{}, err
	}
	return s.Create(ctx, d)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, entry, host, port, args, env, enabled, created_at, updated_at
		FROM apps WHERE id=?;`, id)
	return scanDefinition(row)
}

func (s *Store) GetByName(ctx context.Context, name string) (Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, entry, host, port, args, env, enabled, created_at, updated_at
		FROM apps WHERE name=?;`, name)
	return scanDefinition(row)
}

// List returns all definitions ordered by id.
func (s *Store) List(ctx context.Context) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, entry, host, port, args, env, enabled, created_at, updated_at
		FROM apps ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(r rowScanner) (Definition, error) {
	var d Definition
	var args, envs sql.NullString
	err := r.Scan(&d.ID, &d.Name, &d.Path, &d.Entry, &d.Host, &d.Port, &args, &envs, &d.Enabled, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Definition{}, ErrNotFound
	}
	if err != nil {
		return Definition{}, err
	}
	if args.Valid {
		d.Args = args.String
	}
	if envs.Valid {
		d.Env = unpackEnv(envs.String)
	}
	return d, nil
}

// env entries are stored newline-joined; values never contain newlines in
// practice and the launcher rejects none of them.
func packEnv(env []string) string {
	return strings.Join(env, "\n")
}

func unpackEnv(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
