package arkiv

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval bounds worst-case notification latency to roughly
// one polling interval plus a network round-trip.
const DefaultPollInterval = 2000 * time.Millisecond

// EntityEvent describes a store notification.
type EntityEvent struct {
	EntityKey string
}

// EventHandlers receives store notifications. Handlers run on the poll
// goroutine; only OnEntityCreated is required. The store currently only
// notifies about creations; updates and deletes are not surfaced.
type EventHandlers struct {
	OnEntityCreated func(EntityEvent)
	OnError         func(error)
}

// SubscribeEntityEvents polls the store for newly created entities and
// invokes handlers.OnEntityCreated once per new key. The first poll
// establishes a baseline of already-present entities without emitting;
// history is expected to come from a bulk query, not from replay.
//
// The returned function cancels the subscription. A push-capable backend
// can replace this loop without changing the handler interface.
func SubscribeEntityEvents(client Client, handlers EventHandlers, pollInterval time.Duration, logger zerolog.Logger) func() {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		seen := make(map[string]bool)
		baselined := false

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		poll := func() {
			entities, err := client.QueryEntities(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Msg("entity poll failed")
				if handlers.OnError != nil {
					handlers.OnError(err)
				}
				return
			}

			for _, e := range entities {
				if seen[e.Key] {
					continue
				}
				seen[e.Key] = true
				if baselined && handlers.OnEntityCreated != nil {
					handlers.OnEntityCreated(EntityEvent{EntityKey: e.Key})
				}
			}
			baselined = true
		}

		poll()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return cancel
}
