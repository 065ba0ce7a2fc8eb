package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour spoken by a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const kvSchema = `
	CREATE TABLE IF NOT EXISTS kv_items (
		key   TEXT NOT NULL PRIMARY KEY,
		value TEXT NOT NULL
	);
`

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) placeholders(from, count int) string {
	ph := make([]string, count)
	for i := range ph {
		ph[i] = d.placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

// SQLStore implements KeyValueStore on a single kv_items table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open *sql.DB. The schema must already exist.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLite opens the device-local SQLite file at path and initialises the schema.
func OpenSQLite(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	return initSQLStore(db, DialectSQLite)
}

// OpenPostgres opens a PostgreSQL connection pool and initialises the schema.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return initSQLStore(db, DialectPostgres)
}

func initSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return NewSQLStore(db, dialect), nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("Ping", "", err)
	}
	return nil
}

func (s *SQLStore) upsertQuery() string {
	return fmt.Sprintf(
		`INSERT INTO kv_items (key, value) VALUES (%s, %s) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		s.dialect.placeholder(1), s.dialect.placeholder(2),
	)
}

func (s *SQLStore) SetItem(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.upsertQuery(), key, value); err != nil {
		return s.fail("SetItem", key, err)
	}
	return nil
}

func (s *SQLStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_items WHERE key = ` + s.dialect.placeholder(1)

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("GetItem", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) RemoveItem(ctx context.Context, key string) error {
	query := `DELETE FROM kv_items WHERE key = ` + s.dialect.placeholder(1)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return s.fail("RemoveItem", key, err)
	}
	return nil
}

// SetMany writes all pairs in one transaction.
func (s *SQLStore) SetMany(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("SetMany", "", err)
	}
	query := s.upsertQuery()
	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx, query, p.Key, p.Value); err != nil {
			tx.Rollback()
			return s.fail("SetMany", p.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail("SetMany", "", err)
	}
	return nil
}

func (s *SQLStore) GetMany(ctx context.Context, keys []string) ([]Item, error) {
	if len(keys) == 0 {
		return []Item{}, nil
	}
	query := fmt.Sprintf(`SELECT key, value FROM kv_items WHERE key IN (%s)`,
		s.dialect.placeholders(1, len(keys)))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(keys)...)
	if err != nil {
		return nil, s.fail("GetMany", "", err)
	}
	defer rows.Close()

	found := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, s.fail("GetMany", "", fmt.Errorf("scanning item row: %w", err))
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("GetMany", "", fmt.Errorf("iterating items: %w", err))
	}

	result := make([]Item, 0, len(keys))
	for _, k := range keys {
		v, ok := found[k]
		result = append(result, Item{Key: k, Value: v, Found: ok})
	}
	return result, nil
}

func (s *SQLStore) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM kv_items WHERE key IN (%s)`,
		s.dialect.placeholders(1, len(keys)))
	if _, err := s.db.ExecContext(ctx, query, stringArgs(keys)...); err != nil {
		return s.fail("RemoveMany", keys[0], err)
	}
	return nil
}

func (s *SQLStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_items ORDER BY key`)
	if err != nil {
		return nil, s.fail("ListKeys", "", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, s.fail("ListKeys", "", fmt.Errorf("scanning key row: %w", err))
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("ListKeys", "", fmt.Errorf("iterating keys: %w", err))
	}
	return keys, nil
}

// fail maps a driver error to a backend_unavailable *Error. Postgres errors
// carry their SQLSTATE condition name in the message.
func (s *SQLStore) fail(op, key string, err error) *Error {
	e := Unavailable(op, key, err)
	var pge *pq.Error
	if errors.As(err, &pge) {
		e.Message = fmt.Sprintf("postgres %s (%s)", pge.Code.Name(), pge.Code)
	}
	return e
}

func stringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
