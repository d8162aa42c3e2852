package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable keyed store backing persistent namespaces,
// grounded on the teacher's use of modernc.org/sqlite as its embedded
// storage engine. A single table holds every namespace's rows, keyed by
// (namespace, key).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a durable store at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	compressed INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (DurableRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, compressed, created_at, expires_at FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key)

	var value []byte
	var compressed int
	var createdAtNano, expiresAtNano int64
	if err := row.Scan(&value, &compressed, &createdAtNano, &expiresAtNano); err != nil {
		if err == sql.ErrNoRows {
			return DurableRecord{}, false, nil
		}
		return DurableRecord{}, false, err
	}

	rec := DurableRecord{
		Value:      value,
		Compressed: compressed != 0,
		CreatedAt:  time.Unix(0, createdAtNano),
	}
	if expiresAtNano > 0 {
		rec.ExpiresAt = time.Unix(0, expiresAtNano)
		if time.Now().After(rec.ExpiresAt) {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key)
			return DurableRecord{}, false, nil
		}
	}
	return rec, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, namespace, key string, rec DurableRecord) error {
	var expiresAtNano int64
	if !rec.ExpiresAt.IsZero() {
		expiresAtNano = rec.ExpiresAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, value, compressed, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET
		   value = excluded.value, compressed = excluded.compressed,
		   created_at = excluded.created_at, expires_at = excluded.expires_at`,
		namespace, key, rec.Value, boolToInt(rec.Compressed), rec.CreatedAt.UnixNano(), expiresAtNano)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace)
	return err
}

func (s *SQLiteStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries WHERE namespace = ?`, namespace).Scan(&n)
	return n, err
}

func (s *SQLiteStore) BatchGet(ctx context.Context, namespace string, keys []string) (map[string]DurableRecord, error) {
	out := make(map[string]DurableRecord, len(keys))
	for _, k := range keys {
		rec, ok, err := s.Get(ctx, namespace, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = rec
		}
	}
	return out, nil
}

func (s *SQLiteStore) BatchSet(ctx context.Context, namespace string, recs map[string]DurableRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (namespace, key, value, compressed, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET
		   value = excluded.value, compressed = excluded.compressed,
		   created_at = excluded.created_at, expires_at = excluded.expires_at`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for key, rec := range recs {
		var expiresAtNano int64
		if !rec.ExpiresAt.IsZero() {
			expiresAtNano = rec.ExpiresAt.UnixNano()
		}
		if _, err := stmt.ExecContext(ctx, namespace, key, rec.Value, boolToInt(rec.Compressed), rec.CreatedAt.UnixNano(), expiresAtNano); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`, time.Now().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
