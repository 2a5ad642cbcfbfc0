package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores projects in a SQLite database file. Timestamps are
// stored as RFC 3339 text with nanoseconds; versions as a JSON column.
type SQLiteBackend struct {
	conn *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writes.
	conn.SetMaxOpenConns(1)

	if err := initTables(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database tables: %w", err)
	}
	return &SQLiteBackend{conn: conn}, nil
}

func initTables(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_text TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			versions TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

const projectColumns = `id, name, source_text, created_at, updated_at, versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p                Project
		created, updated string
		versions         string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.SourceText, &created, &updated, &versions); err != nil {
		return nil, err
	}

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(versions), &p.Versions); err != nil {
		return nil, fmt.Errorf("parse versions: %w", err)
	}
	return &p, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (*Project, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, p *Project) error {
	versions, err := json.Marshal(p.Versions)
	if err != nil {
		return fmt.Errorf("marshal versions: %w", err)
	}
	if p.Versions == nil {
		versions = []byte("[]")
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_text = excluded.source_text,
			updated_at = excluded.updated_at,
			versions = excluded.versions`,
		p.ID, p.Name, p.SourceText,
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(versions),
	)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context) ([]*Project, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Active(ctx context.Context) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'active'`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active project: %w", err)
	}
	return id, nil
}

func (s *SQLiteBackend) SetActive(ctx context.Context, id string) error {
	var err error
	if id == "" {
		_, err = s.conn.ExecContext(ctx, `DELETE FROM settings WHERE key = 'active'`)
	} else {
		_, err = s.conn.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES ('active', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, id)
	}
	if err != nil {
		return fmt.Errorf("set active project: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.conn.Close()
}

var _ Backend = (*SQLiteBackend)(nil)
