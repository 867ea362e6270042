package chainstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/ilkoid/poncho-relay/pkg/chain"
)

// SQLiteStore — цепочки в SQLite, одна строка на цепочку.
//
// Определение хранится YAML текстом, так что строку можно править руками.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore открывает или создаёт базу.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS chains (
		id          TEXT PRIMARY KEY,
		sort_order  INTEGER NOT NULL DEFAULT 0,
		definition  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chains_sort ON chains(sort_order DESC);
	`)
	return err
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load читает все цепочки.
func (s *SQLiteStore) Load(ctx context.Context) ([]*chain.Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, definition FROM chains ORDER BY sort_order DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	var out []*chain.Config
	for rows.Next() {
		var id, def string
		if err := rows.Scan(&id, &def); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		c, err := decodeRow(id, def)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get возвращает одну цепочку.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*chain.Config, error) {
	var def string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM chains WHERE id = ?`, id).Scan(&def)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chain '%s'", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get chain: %w", err)
	}
	return decodeRow(id, def)
}

// Put вставляет или заменяет цепочку.
func (s *SQLiteStore) Put(ctx context.Context, c *chain.Config) error {
	return s.put(ctx, s.db, c)
}

// Delete удаляет цепочку.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chains WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chain: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: chain '%s'", ErrNotFound, id)
	}
	return nil
}

// Save заменяет весь набор в одной транзакции.
func (s *SQLiteStore) Save(ctx context.Context, chains []*chain.Config) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chains`); err != nil {
		return fmt.Errorf("clear chains: %w", err)
	}
	for _, c := range chains {
		if err := s.put(ctx, tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) put(ctx context.Context, db execer, c *chain.Config) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("put chain: chain_id is required")
	}
	def, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode chain '%s': %w", c.ID, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO chains (id, sort_order, definition, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sort_order = excluded.sort_order,
			definition = excluded.definition, updated_at = excluded.updated_at`,
		c.ID, c.SortOrder, string(def), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put chain '%s': %w", c.ID, err)
	}
	return nil
}

func decodeRow(id, def string) (*chain.Config, error) {
	var c chain.Config
	if err := yaml.Unmarshal([]byte(def), &c); err != nil {
		return nil, fmt.Errorf("decode chain '%s': %w", id, err)
	}
	if c.ID == "" {
		c.ID = id
	}
	if err := c.Normalize(); err != nil {
		return nil, fmt.Errorf("chain '%s': %w", id, err)
	}
	return &c, nil
}
