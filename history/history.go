// Package history keeps a journal of uploads so that an upload started
// without waiting can be polled again later. The journal lives in a local
// SQLite file by default; a PostgreSQL database can be shared between
// machines.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/sagarc03/bigstash"
)

// DefaultTable is the journal table name.
const DefaultTable = "bgst_uploads"

// Database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// timeFormat is fixed width so stored times sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrNotFound is returned when no upload matches.
	ErrNotFound = errors.New("upload not found in history")
	// ErrInvalidTableName is returned for unsafe table names.
	ErrInvalidTableName = errors.New("invalid table name")
	// ErrUnsupportedType is returned for unknown database types.
	ErrUnsupportedType = errors.New("unsupported database type")
)

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName reports whether name can be used as a table name.
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Entry is one recorded upload. Bucket credentials are never stored.
type Entry struct {
	ID         string
	UploadURL  string
	ArchiveURL string
	ArchiveKey string
	Title      string
	SizeBytes  int64
	FileCount  int
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewEntry describes up for the journal.
func NewEntry(up *bigstash.Upload, title string, size int64, files int) Entry {
	e := Entry{
		ID:         up.ID(),
		UploadURL:  up.URL,
		ArchiveURL: up.ArchiveURL,
		Title:      title,
		SizeBytes:  size,
		FileCount:  files,
		Status:     up.Status,
	}
	if up.Archive != nil {
		e.ArchiveKey = up.Archive.Key
		if e.ArchiveURL == "" {
			e.ArchiveURL = up.Archive.URL
		}
	}
	return e
}

// Config selects the journal database.
type Config struct {
	// Type is TypeSQLite or TypePostgres. When empty it is TypePostgres for
	// postgres:// and postgresql:// DSNs and TypeSQLite otherwise.
	Type string
	// DSN is a SQLite file path or ":memory:", or a PostgreSQL connection
	// string.
	DSN string
	// Table defaults to DefaultTable.
	Table string
}

// ResolveType returns the database type of c.
func (c Config) ResolveType() string {
	if c.Type != "" {
		return c.Type
	}
	if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
		return TypePostgres
	}
	return TypeSQLite
}

// Store is the upload journal.
type Store struct {
	db      *sql.DB
	dialect *dialect
	table   string
	now     func() time.Time
}

// Connect opens the database. Call Migrate and Validate before use, or
// use Open.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !IsValidTableName(table) {
		return nil, fmt.Errorf("connect history: %w: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", ErrInvalidTableName, table)
	}

	var d *dialect
	switch typ := cfg.ResolveType(); typ {
	case TypeSQLite:
		d = sqliteDialect
	case TypePostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("connect history: %w: %s", ErrUnsupportedType, typ)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect history: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if d == sqliteDialect && (cfg.DSN == ":memory:" || strings.Contains(cfg.DSN, "mode=memory")) {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}

	return &Store{db: db, dialect: d, table: table, now: time.Now}, nil
}

// Open connects, migrates and validates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	if err := s.Validate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates the journal table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.dialect.createTable(ctx, s.db, s.table); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the table matches the expected schema.
func (s *Store) Validate(ctx context.Context) error {
	if err := s.dialect.validateTable(ctx, s.db, s.table); err != nil {
		return fmt.Errorf("validate schema %s: %w", s.table, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e, or replaces the stored upload with the same id while
// keeping its creation time.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		return Entry{}, errors.New("record: upload id is required")
	}

	now := s.now().UTC()
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, upload_url, archive_url, archive_key, title, size_bytes, file_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			upload_url = excluded.upload_url,
			archive_url = excluded.archive_url,
			archive_key = excluded.archive_key,
			title = excluded.title,
			size_bytes = excluded.size_bytes,
			file_count = excluded.file_count,
			status = excluded.status,
			updated_at = excluded.updated_at`, quoteIdentifier(s.table))

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		e.ID, e.UploadURL, e.ArchiveURL, e.ArchiveKey, e.Title, e.SizeBytes, e.FileCount, e.Status,
		now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("record: %w", err)
	}

	return s.Get(ctx, e.ID)
}

// UpdateStatus sets the status of the upload with the given id.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s SET status = ?, updated_at = ? WHERE id = ?`, quoteIdentifier(s.table))

	result, err := s.db.ExecContext(ctx, s.dialect.rebind(query), status, s.now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("update status %s: %w", id, ErrNotFound)
	}

	return nil
}

// Get returns the upload with the given id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	return s.queryOne(ctx, "id = ?", id)
}

// Find returns the upload matching ref, either an id or an upload URL.
func (s *Store) Find(ctx context.Context, ref string) (Entry, error) {
	normalized := strings.TrimRight(ref, "/") + "/"
	return s.queryOne(ctx, "id = ? OR upload_url = ? OR upload_url = ?", ref, ref, normalized)
}

// List returns up to limit uploads, most recently updated first. A limit
// of zero or less returns every upload.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s ORDER BY updated_at DESC, id`, selectColumns, quoteIdentifier(s.table))

	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows error: %w", err)
	}

	return entries, nil
}

const selectColumns = `id, upload_url, archive_url, archive_key, title, size_bytes, file_count, status, created_at, updated_at`

func (s *Store) queryOne(ctx context.Context, where string, args ...any) (Entry, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE %s LIMIT 1`, selectColumns, quoteIdentifier(s.table), where)

	e, err := scanEntry(s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("get: %w", err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &e.UploadURL, &e.ArchiveURL, &e.ArchiveKey, &e.Title,
		&e.SizeBytes, &e.FileCount, &e.Status, &createdAt, &updatedAt)
	if err != nil {
		return Entry{}, err
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}

	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return e, nil
}
