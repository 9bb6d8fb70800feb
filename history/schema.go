package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// dialect holds what differs between the supported databases.
type dialect struct {
	name   string
	driver string
	// sizeType is the column type of size_bytes.
	sizeType string
	// numbered reports $1 style placeholders.
	numbered bool
	columns  func(ctx context.Context, db *sql.DB, tableName string) (map[string]columnInfo, error)
	exists   func(ctx context.Context, db *sql.DB, tableName string) (bool, error)
}

var (
	sqliteDialect = &dialect{
		name:     TypeSQLite,
		driver:   "sqlite",
		sizeType: "integer",
		columns:  sqliteColumns,
		exists:   sqliteTableExists,
	}
	postgresDialect = &dialect{
		name:     TypePostgres,
		driver:   "pgx",
		sizeType: "bigint",
		numbered: true,
		columns:  postgresColumns,
		exists:   postgresTableExists,
	}
)

// quoteIdentifier safely quotes a SQL identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

// rebind rewrites ? placeholders for databases that number them.
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *dialect) createTable(ctx context.Context, db *sql.DB, tableName string) error {
	quotedTable := quoteIdentifier(tableName)
	indexUpdatedAt := quoteIdentifier(fmt.Sprintf("idx_%s_updated_at", tableName))

	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			upload_url TEXT NOT NULL,
			archive_url TEXT NOT NULL,
			archive_key TEXT NOT NULL,
			title TEXT NOT NULL,
			size_bytes %s NOT NULL,
			file_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`, quotedTable, strings.ToUpper(d.sizeType))

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	indexSQL := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)
	`, indexUpdatedAt, quotedTable)

	if _, err := db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("create index updated_at: %w", err)
	}

	return nil
}

type columnInfo struct {
	name       string
	dataType   string
	isNullable bool
}

// schema returns the expected columns of the journal table.
func (d *dialect) schema() map[string]columnInfo {
	return map[string]columnInfo{
		"id":          {"id", "text", false},
		"upload_url":  {"upload_url", "text", false},
		"archive_url": {"archive_url", "text", false},
		"archive_key": {"archive_key", "text", false},
		"title":       {"title", "text", false},
		"size_bytes":  {"size_bytes", d.sizeType, false},
		"file_count":  {"file_count", "integer", false},
		"status":      {"status", "text", false},
		"created_at":  {"created_at", "text", false},
		"updated_at":  {"updated_at", "text", false},
	}
}

func (d *dialect) validateTable(ctx context.Context, db *sql.DB, tableName string) error {
	exists, err := d.exists(ctx, db, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", tableName)
	}

	actualColumns, err := d.columns(ctx, db, tableName)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	var missingColumns []string
	var mismatchedColumns []string

	for colName, expected := range d.schema() {
		actual, exists := actualColumns[colName]
		if !exists {
			missingColumns = append(missingColumns, colName)
			continue
		}

		if actual.dataType != expected.dataType {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected %s, got %s", colName, expected.dataType, actual.dataType))
		}

		if actual.isNullable != expected.isNullable {
			mismatchedColumns = append(mismatchedColumns,
				fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", colName, expected.isNullable, actual.isNullable))
		}
	}

	if len(missingColumns) > 0 || len(mismatchedColumns) > 0 {
		var errMsg strings.Builder
		fmt.Fprintf(&errMsg, "table %s schema validation failed:\n", tableName)

		if len(missingColumns) > 0 {
			fmt.Fprintf(&errMsg, "  missing columns: %s\n", strings.Join(missingColumns, ", "))
		}

		if len(mismatchedColumns) > 0 {
			fmt.Fprintf(&errMsg, "  mismatched columns:\n")
			for _, msg := range mismatchedColumns {
				fmt.Fprintf(&errMsg, "    - %s\n", msg)
			}
		}

		return errors.New(errMsg.String())
	}

	return nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]columnInfo, error) {
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(tableName))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]columnInfo)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var dfltValue sql.NullString
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: notNull == 0,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return columns, nil
}

func sqliteTableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	query := `SELECT name FROM sqlite_master WHERE type='table' AND name=?`
	err := db.QueryRowContext(ctx, query, tableName).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return true, nil
}

func postgresColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]columnInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: nullable == "YES",
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return columns, nil
}

func postgresTableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`
	if err := db.QueryRowContext(ctx, query, tableName).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}
