package arkiv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// SQLiteStore is a file-backed entity store, useful as a single-node
// stand-in for the ledger when PostgreSQL is not available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
// If dbPath is empty, defaults to "./data/onmessage.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/onmessage.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		key TEXT PRIMARY KEY,
		payload BLOB,
		content_type TEXT DEFAULT '',
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entity_attrs (
		entity_key TEXT NOT NULL REFERENCES entities(key) ON DELETE CASCADE,
		pos INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (entity_key, pos)
	);

	CREATE INDEX IF NOT EXISTS idx_entity_attrs_kv ON entity_attrs(key, value);
	CREATE INDEX IF NOT EXISTS idx_entities_expires ON entities(expires_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateEntity stores a new entity and its attributes in one transaction.
func (s *SQLiteStore) CreateEntity(ctx context.Context, req CreateEntityRequest) (string, error) {
	key := ulid.Make().String()
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (key, payload, content_type, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, req.Payload, req.ContentType, now.Add(req.ExpiresIn).UnixMilli(), now.UnixMilli())
	if err != nil {
		return "", err
	}

	for i, a := range req.Attributes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_attrs (entity_key, pos, key, value)
			VALUES (?, ?, ?, ?)
		`, key, i, a.Key, a.Value)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	return key, nil
}

// QueryEntities returns live entities matching every predicate.
func (s *SQLiteStore) QueryEntities(ctx context.Context, preds ...Predicate) ([]Entity, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	query := &strings.Builder{}
	query.WriteString(`SELECT key, payload, content_type, expires_at FROM entities WHERE expires_at > ?`)
	args := []any{time.Now().UnixMilli()}

	for _, p := range preds {
		query.WriteString(` AND EXISTS (
			SELECT 1 FROM entity_attrs a
			WHERE a.entity_key = entities.key AND a.key = ? AND a.value = ?
		)`)
		args = append(args, p.Key, p.Value)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		var expiresAt int64
		if err := rows.Scan(&e.Key, &e.Payload, &e.ContentType, &expiresAt); err != nil {
			return nil, err
		}
		e.ExpiresAt = time.UnixMilli(expiresAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		attrs, err := s.loadAttrs(ctx, out[i].Key)
		if err != nil {
			return nil, err
		}
		out[i].Attributes = attrs
	}

	return out, nil
}

// GetEntity returns a single entity by key, or ErrNotFound.
func (s *SQLiteStore) GetEntity(ctx context.Context, key string) (*Entity, error) {
	e := &Entity{}
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT key, payload, content_type, expires_at
		FROM entities WHERE key = ? AND expires_at > ?
	`, key, time.Now().UnixMilli()).Scan(&e.Key, &e.Payload, &e.ContentType, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.ExpiresAt = time.UnixMilli(expiresAt)

	attrs, err := s.loadAttrs(ctx, key)
	if err != nil {
		return nil, err
	}
	e.Attributes = attrs

	return e, nil
}

// DeleteEntity removes an entity and its attributes.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_attrs WHERE entity_key = ?`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE key = ?`, key); err != nil {
		return err
	}

	return tx.Commit()
}

// loadAttrs fetches an entity's attributes in insertion order.
func (s *SQLiteStore) loadAttrs(ctx context.Context, key string) ([]Attribute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM entity_attrs WHERE entity_key = ? ORDER BY pos
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attrs []Attribute
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.Key, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

// sweep deletes expired entities; the ledger's garbage collection.
func (s *SQLiteStore) sweep(ctx context.Context) error {
	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM entity_attrs WHERE entity_key IN
			(SELECT key FROM entities WHERE expires_at <= ?)
	`, now); err != nil {
		return fmt.Errorf("sweep attrs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("sweep entities: %w", err)
	}
	return nil
}
