package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv(
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`

// SQLiteSlot は組み込みSQLiteのkvテーブル
type SQLiteSlot struct {
	db *sqlx.DB
}

var _ Slot = (*SQLiteSlot)(nil)

// OpenSQLiteSlot は ":memory:" でも使えるよう接続を1本にする
func OpenSQLiteSlot(dsn string) (*SQLiteSlot, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(kvSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteSlot{db: db}, nil
}

func (s *SQLiteSlot) Close() error {
	return s.db.Close()
}

func (s *SQLiteSlot) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select kv %q: %w", key, err)
	}
	return []byte(v), nil
}

func (s *SQLiteSlot) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert kv %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSlot) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}
	return nil
}
