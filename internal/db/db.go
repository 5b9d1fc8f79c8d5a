// Package db is the fixture application's SQLCipher-backed store of users and
// their blog posts.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxOpenConns is the maximum number of open connections.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns = 2
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("db: not found")

// User is a person who has logged in at least once.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Blog is a single blog post.
type Blog struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
}

// Store wraps the sql.DB connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. keyHex, when set, is
// a 32-byte SQLCipher key in hex and encrypts the file.
func Open(path, keyHex string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := path
	if keyHex != "" {
		dsn = appendSQLiteParams(dsn, fmt.Sprintf("_pragma_key=x'%s'&_pragma_cipher_page_size=4096", keyHex))
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	return open(dsn)
}

// OpenInMemory opens a private in-memory database, for tests.
func OpenInMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:blogs-%s?mode=memory&cache=shared", uuid.NewString())
	return open(dsn)
}

func open(dsn string) (*Store, error) {
	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := sqlDB.Exec(Schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: sqlDB}, nil
}

// DB returns the underlying sql.DB for direct access when needed
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks the connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertUser inserts the user or refreshes its email and name.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("db: user id cannot be empty")
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END,
    name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
    updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Name, now, now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return &u, nil
}

// CreateBlog stores b. ID and CreatedAt are assigned when empty.
func (s *Store) CreateBlog(ctx context.Context, b *Blog) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blogs (id, user_id, title, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Title, b.Content, b.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create blog: %w", err)
	}
	return nil
}

// ListBlogs returns the user's blogs oldest first.
func (s *Store) ListBlogs(ctx context.Context, userID string) ([]Blog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, content, created_at FROM blogs WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	defer rows.Close()

	blogs := []Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	return blogs, nil
}

// GetBlog returns one of the user's blogs.
func (s *Store) GetBlog(ctx context.Context, userID, id string) (*Blog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, created_at FROM blogs WHERE user_id = ? AND id = ?`, userID, id)
	b, err := scanBlog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlog(row scanner) (*Blog, error) {
	var b Blog
	var created int64
	if err := row.Scan(&b.ID, &b.UserID, &b.Title, &b.Content, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan blog: %w", err)
	}
	b.CreatedAt = time.Unix(created, 0).UTC()
	return &b, nil
}

func sqliteCommonParams() string {
	// WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
