package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/any-hub/doc-bridge/internal/aggregate"
)

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	name       TEXT PRIMARY KEY,
	info       TEXT NOT NULL,
	readme     TEXT NOT NULL,
	docs       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
)`

// ErrNotFound 表示指定包不存在。
var ErrNotFound = errors.New("package not found")

// Package 是 packages 表中的一行。
type Package struct {
	Name      string
	Info      string
	Readme    string
	Docs      string
	UpdatedAt time.Time
}

// Store 封装 packages 表的读写，实现 aggregate.Sink。
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open 打开（必要时创建）path 处的数据库并建表。
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite 只允许单写者。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating packages table: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Persist 以 name 为键 upsert 一条完成的记录。
func (s *Store) Persist(ctx context.Context, rec aggregate.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packages (name, info, readme, docs, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			info = excluded.info,
			readme = excluded.readme,
			docs = excluded.docs,
			updated_at = excluded.updated_at`,
		rec.Key, rec.Part("info"), rec.Part("readme"), rec.Part("docs"), s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting package %s: %w", rec.Key, err)
	}
	return nil
}

// Get 按名称读取一条记录。
func (s *Store) Get(ctx context.Context, name string) (*Package, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, info, readme, docs, updated_at FROM packages WHERE name = ?`, name)

	var pkg Package
	if err := row.Scan(&pkg.Name, &pkg.Info, &pkg.Readme, &pkg.Docs, &pkg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying package %s: %w", name, err)
	}
	return &pkg, nil
}

// Count 返回已持久化的包数量。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting packages: %w", err)
	}
	return n, nil
}

var _ aggregate.Sink = (*Store)(nil)
