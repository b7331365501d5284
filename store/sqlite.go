package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rushteam/receval/core"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key    TEXT PRIMARY KEY,
	value  BLOB NOT NULL,
	expire INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore 是单文件的持久化 Store，同一台机器上重复评测时复用生成结果。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开（必要时创建）path 指向的数据库文件。
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// 单连接，避免多连接下的写锁竞争
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func expireUnix(ttl []int) int64 {
	if t := expireAt(ttl); !t.IsZero() {
		return t.Unix()
	}
	return 0
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expire = 0 OR expire > ?)`,
		key, time.Now().Unix()).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: sqlite get: %w", err)
	}
	return val, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return s.BatchSet(ctx, map[string][]byte{key: value}, ttl...)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: sqlite delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, time.Now().Unix())
	for _, k := range keys {
		args = append(args, k)
	}
	query := `SELECT key, value FROM kv WHERE (expire = 0 OR expire > ?) AND key IN (?` +
		strings.Repeat(",?", len(keys)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite batch get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: sqlite scan: %w", err)
		}
		result[k] = v
	}
	return result, rows.Err()
}

func (s *SQLiteStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	if len(kvs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kv (key, value, expire) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expire = excluded.expire`)
	if err != nil {
		return fmt.Errorf("store: sqlite prepare: %w", err)
	}
	defer stmt.Close()

	expire := expireUnix(ttl)
	for k, v := range kvs {
		if _, err := stmt.ExecContext(ctx, k, v, expire); err != nil {
			return fmt.Errorf("store: sqlite set %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: sqlite commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ core.Store = (*SQLiteStore)(nil)
