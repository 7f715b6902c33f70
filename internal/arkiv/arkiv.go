// Package arkiv provides the entity store client used as the chat
// application's only persistence layer. Entities are typed, attributed,
// expiring records; the ledger garbage-collects them after their TTL.
//
// Client is the narrow interface the rest of the system consumes. Three
// backends implement it: an in-memory store (development and tests),
// SQLite, and PostgreSQL.
package arkiv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetEntity when no entity exists for a key,
// or when the entity has expired.
var ErrNotFound = errors.New("arkiv: entity not found")

// Attribute is a single key/value annotation on an entity. Keys are not
// unique; duplicates are allowed and order is preserved.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entity is the store's only storage primitive.
type Entity struct {
	Key         string      `json:"key"`
	Attributes  []Attribute `json:"attributes"`
	Payload     []byte      `json:"payload,omitempty"`
	ContentType string      `json:"contentType,omitempty"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// CreateEntityRequest describes a new entity. ExpiresIn is the TTL after
// which the store may discard the entity.
type CreateEntityRequest struct {
	Attributes  []Attribute
	Payload     []byte
	ContentType string
	ExpiresIn   time.Duration
}

// Predicate is an equality constraint on entity attributes. A query
// matches entities satisfying every predicate (AND semantics). An entity
// with duplicate keys matches if any occurrence has the wanted value.
type Predicate struct {
	Key   string
	Value string
}

// Eq builds an equality predicate.
func Eq(key, value string) Predicate {
	return Predicate{Key: key, Value: value}
}

// Client is the entity store interface. Expired entities are never
// returned from QueryEntities or GetEntity; results carry no ordering
// guarantee.
type Client interface {
	CreateEntity(ctx context.Context, req CreateEntityRequest) (string, error)
	QueryEntities(ctx context.Context, preds ...Predicate) ([]Entity, error)
	GetEntity(ctx context.Context, key string) (*Entity, error)
	DeleteEntity(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close()
}

// matches reports whether the entity satisfies every predicate.
func matches(e Entity, preds []Predicate) bool {
	for _, p := range preds {
		found := false
		for _, a := range e.Attributes {
			if a.Key == p.Key && a.Value == p.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
