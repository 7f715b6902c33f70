package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nv-cho/on-message/internal/arkiv"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func seedMessage(t *testing.T, repo *Repository, roomKey, from, text string, sentAt int64) {
	t.Helper()
	require.NoError(t, repo.SendMessage(context.Background(), SendMessageParams{
		RoomKey: roomKey, From: from, To: "0xB", Text: text, SentAt: sentAt,
	}))
}

func TestRoomViewInitialLoad(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	seedMessage(t, repo, "r1", "0xA", "second", 2000)
	seedMessage(t, repo, "r1", "0xB", "first", 1000)
	seedMessage(t, repo, "r1", "0xA", "third", 3000)
	seedMessage(t, repo, "r2", "0xA", "other room", 1500)

	// Viewer address differs from the sender attribute only in case.
	view := NewRoomView(store, repo, "r1", "0xa", "0xB", WithPollInterval(10*time.Millisecond))
	view.Start(ctx)
	defer view.Close()

	waitFor(t, func() bool { return len(view.Messages()) == 3 })

	msgs := view.Messages()
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})
	assert.Equal(t, "them", msgs[0].Sender)
	assert.Equal(t, "me", msgs[1].Sender)
	assert.Equal(t, "me", msgs[2].Sender)
}

func TestRoomViewLiveUpdateThroughPolling(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	view := NewRoomView(store, repo, "r1", "0xA", "0xB", WithPollInterval(10*time.Millisecond))
	view.Start(ctx)
	defer view.Close()

	// Let the subscription baseline before writing.
	time.Sleep(30 * time.Millisecond)

	seedMessage(t, repo, "r1", "0xB", "ping", 1000)

	waitFor(t, func() bool { return len(view.Messages()) == 1 })
	msg := view.Messages()[0]
	assert.Equal(t, "r1-1000", msg.ID)
	assert.Equal(t, "them", msg.Sender)
	assert.Equal(t, "ping", msg.Text)
}

func TestRoomViewAppliesOnlyMatchingRoomAndType(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	view := NewRoomView(store, repo, "r1", "0xA", "0xB")

	// A message for another room is discarded.
	seedMessage(t, repo, "r2", "0xB", "elsewhere", 1000)
	otherRoom := entityKeyFor(t, store, arkiv.Eq("roomKey", "r2"))
	view.applyCreated(ctx, otherRoom)
	assert.Empty(t, view.Messages())

	// A non-message entity is discarded even with the right roomKey.
	inviteKey, err := store.CreateEntity(ctx, arkiv.CreateEntityRequest{
		Attributes: []arkiv.Attribute{
			{Key: "type", Value: EntityTypeInvite},
			{Key: "roomKey", Value: "r1"},
			{Key: "to", Value: "0xA"},
		},
		ExpiresIn: InviteTTL,
	})
	require.NoError(t, err)
	view.applyCreated(ctx, inviteKey)
	assert.Empty(t, view.Messages())

	// A matching message is applied once; redelivery is a no-op.
	seedMessage(t, repo, "r1", "0xB", "hello", 2000)
	msgKey := entityKeyFor(t, store, arkiv.Eq("type", EntityTypeMessage), arkiv.Eq("roomKey", "r1"))
	view.applyCreated(ctx, msgKey)
	require.Len(t, view.Messages(), 1)

	view.applyCreated(ctx, msgKey)
	assert.Len(t, view.Messages(), 1)
}

func TestRoomViewOptimisticSendRollback(t *testing.T) {
	ctx := context.Background()
	store := &scriptedStore{MemoryStore: arkiv.NewMemoryStore(), failFromCall: 1}
	repo := NewRepository(store, zerolog.Nop())

	view := NewRoomView(store, repo, "r1", "0xA", "0xB")

	// While the write is in flight the optimistic entry is visible.
	store.createHook = func() {
		msgs := view.Messages()
		require.Len(t, msgs, 1)
		assert.True(t, strings.HasSuffix(msgs[0].ID, optimisticSuffix))
		assert.Equal(t, "me", msgs[0].Sender)
	}

	err := view.Send(ctx, "doomed", "0xB")
	require.Error(t, err)

	// The compensating delete removed exactly the synthesized entry.
	assert.Empty(t, view.Messages())
}

func TestRoomViewOptimisticEntryCoexistsWithConfirmed(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	view := NewRoomView(store, repo, "r1", "0xA", "0xB")

	require.NoError(t, view.Send(ctx, "hi", "0xB"))
	require.Len(t, view.Messages(), 1)

	// The confirmed entity arrives via the live path under a different
	// id; nothing reconciles the pair, so both entries remain.
	msgKey := entityKeyFor(t, store, arkiv.Eq("type", EntityTypeMessage))
	view.applyCreated(ctx, msgKey)

	msgs := view.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasSuffix(msgs[0].ID, optimisticSuffix))
	assert.False(t, strings.HasSuffix(msgs[1].ID, optimisticSuffix))
}

func TestRoomViewSupersededLoadDiscarded(t *testing.T) {
	ctx := context.Background()
	base := arkiv.NewMemoryStore()
	repo := NewRepository(base, zerolog.Nop())

	seedMessage(t, repo, "r1", "0xB", "stale", 1000)

	store := &gatedQueryStore{MemoryStore: base, gate: make(chan struct{})}
	view := NewRoomView(store, repo, "r1", "0xA", "0xB", WithPollInterval(time.Hour))
	view.Start(ctx)

	// The room switches away while the initial load is still in flight.
	view.Close()
	close(store.gate)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, view.Messages())
}

func TestRoomViewClosedViewIgnoresLiveUpdates(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	view := NewRoomView(store, repo, "r1", "0xA", "0xB")
	view.Close()

	seedMessage(t, repo, "r1", "0xB", "late", 1000)
	msgKey := entityKeyFor(t, store, arkiv.Eq("type", EntityTypeMessage))
	view.applyCreated(ctx, msgKey)

	assert.Empty(t, view.Messages())
}

// entityKeyFor returns the key of the single entity matching the
// predicates.
func entityKeyFor(t *testing.T, store arkiv.Client, preds ...arkiv.Predicate) string {
	t.Helper()
	entities, err := store.QueryEntities(context.Background(), preds...)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	return entities[0].Key
}

// gatedQueryStore blocks every query until the gate closes.
type gatedQueryStore struct {
	*arkiv.MemoryStore
	gate chan struct{}
}

func (s *gatedQueryStore) QueryEntities(ctx context.Context, preds ...arkiv.Predicate) ([]arkiv.Entity, error) {
	<-s.gate
	return s.MemoryStore.QueryEntities(ctx, preds...)
}
