package arkiv

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore is a PostgreSQL-backed entity store. Attributes are held
// as a JSONB array so duplicate keys and their order survive round-trips.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and initializes the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates the entities table if it doesn't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			key TEXT PRIMARY KEY,
			attributes JSONB NOT NULL DEFAULT '[]',
			payload BYTEA,
			content_type TEXT DEFAULT '',
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_entities_attributes ON entities USING GIN (attributes);
		CREATE INDEX IF NOT EXISTS idx_entities_expires ON entities(expires_at);
	`)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateEntity stores a new entity and returns its generated key.
func (s *PostgresStore) CreateEntity(ctx context.Context, req CreateEntityRequest) (string, error) {
	key := ulid.Make().String()

	attrs := req.Attributes
	if attrs == nil {
		attrs = []Attribute{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entities (key, attributes, payload, content_type, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key, attrsJSON, req.Payload, req.ContentType, time.Now().Add(req.ExpiresIn))
	if err != nil {
		return "", err
	}

	return key, nil
}

// QueryEntities returns live entities matching every predicate. Each
// predicate becomes an EXISTS over the unnested attribute array.
func (s *PostgresStore) QueryEntities(ctx context.Context, preds ...Predicate) ([]Entity, error) {
	query := `SELECT key, attributes, payload, content_type, expires_at FROM entities WHERE expires_at > now()`
	args := []any{}

	for _, p := range preds {
		args = append(args, p.Key, p.Value)
		query += ` AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(attributes) a
			WHERE a->>'key' = $` + strconv.Itoa(len(args)-1) + ` AND a->>'value' = $` + strconv.Itoa(len(args)) + `
		)`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		var attrsJSON []byte
		if err := rows.Scan(&e.Key, &attrsJSON, &e.Payload, &e.ContentType, &e.ExpiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attrsJSON, &e.Attributes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntity returns a single entity by key, or ErrNotFound.
func (s *PostgresStore) GetEntity(ctx context.Context, key string) (*Entity, error) {
	e := &Entity{}
	var attrsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT key, attributes, payload, content_type, expires_at
		FROM entities WHERE key = $1 AND expires_at > now()
	`, key).Scan(&e.Key, &attrsJSON, &e.Payload, &e.ContentType, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(attrsJSON, &e.Attributes); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntity removes an entity by key.
func (s *PostgresStore) DeleteEntity(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE key = $1`, key)
	return err
}
