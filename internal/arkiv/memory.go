package arkiv

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-memory entity store. It is the default backend in
// development and the one the test suite runs against. Expired entities
// are dropped lazily on access.
type MemoryStore struct {
	mu       sync.Mutex
	entities map[string]Entity
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]Entity),
		now:      time.Now,
	}
}

// CreateEntity stores a new entity and returns its generated key.
func (s *MemoryStore) CreateEntity(ctx context.Context, req CreateEntityRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := ulid.Make().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := make([]Attribute, len(req.Attributes))
	copy(attrs, req.Attributes)

	s.entities[key] = Entity{
		Key:         key,
		Attributes:  attrs,
		Payload:     req.Payload,
		ContentType: req.ContentType,
		ExpiresAt:   s.now().Add(req.ExpiresIn),
	}

	return key, nil
}

// QueryEntities returns all live entities matching every predicate.
func (s *MemoryStore) QueryEntities(ctx context.Context, preds ...Predicate) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	var out []Entity
	for _, e := range s.entities {
		if matches(e, preds) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetEntity returns a single entity by key, or ErrNotFound.
func (s *MemoryStore) GetEntity(ctx context.Context, key string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[key]
	if !ok || !e.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}

	out := e
	return &out, nil
}

// DeleteEntity removes an entity by key. Deleting an absent key is not
// an error; the ledger may have expired it already.
func (s *MemoryStore) DeleteEntity(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, key)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// sweepLocked drops expired entities. Caller holds the lock.
func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for key, e := range s.entities {
		if !e.ExpiresAt.After(now) {
			delete(s.entities, key)
		}
	}
}
