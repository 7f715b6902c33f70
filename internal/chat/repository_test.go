package chat

import (
	"context"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/models"
)

// scriptedStore wraps the memory store and fails CreateEntity from the
// nth call on. createHook, when set, runs before each create.
type scriptedStore struct {
	*arkiv.MemoryStore
	failFromCall int // 1-based; 0 means never fail
	createCalls  int
	createHook   func()
}

func (s *scriptedStore) CreateEntity(ctx context.Context, req arkiv.CreateEntityRequest) (string, error) {
	s.createCalls++
	if s.createHook != nil {
		s.createHook()
	}
	if s.failFromCall > 0 && s.createCalls >= s.failFromCall {
		return "", assert.AnError
	}
	return s.MemoryStore.CreateEntity(ctx, req)
}

func newTestRepo(t *testing.T) (*Repository, *arkiv.MemoryStore) {
	t.Helper()
	store := arkiv.NewMemoryStore()
	return NewRepository(store, zerolog.Nop()), store
}

func TestOpenChatRoomCreatesRoomAndInvite(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	roomKey, err := repo.OpenChatRoom(ctx, "0xA", "0xB")
	require.NoError(t, err)
	require.NotEmpty(t, roomKey)

	room, err := repo.GetRoomByKey(ctx, roomKey)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "0xA", room.ParticipantA)
	assert.Equal(t, "0xB", room.ParticipantB)
	assert.Equal(t, models.RoomOpen, room.Status)

	invites, err := repo.ListInvitesFor(ctx, "0xB")
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, roomKey, invites[0].RoomKey)
	assert.Equal(t, "0xA", invites[0].From)
	assert.Equal(t, "0xB", invites[0].To)
	assert.Equal(t, models.InvitePending, invites[0].Status)
	assert.NotEmpty(t, invites[0].EntityKey)
	assert.NotZero(t, invites[0].CreatedAt)

	// The inviter has no invite addressed to them.
	mine, err := repo.ListInvitesFor(ctx, "0xA")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestOpenChatRoomInviteWriteFailureLeavesOrphanedRoom(t *testing.T) {
	ctx := context.Background()
	store := &scriptedStore{MemoryStore: arkiv.NewMemoryStore(), failFromCall: 2}
	repo := NewRepository(store, zerolog.Nop())

	_, err := repo.OpenChatRoom(ctx, "0xA", "0xB")
	require.Error(t, err)

	// The room write landed; the invite never did. Partial failure is
	// the accepted outcome, not something the repository compensates.
	rooms, err := store.QueryEntities(ctx, arkiv.Eq("type", EntityTypeRoom))
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	invites, err := repo.ListInvitesFor(ctx, "0xB")
	require.NoError(t, err)
	assert.Empty(t, invites)
}

func TestGetRoomByKeyMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	room, err := repo.GetRoomByKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, room)
}

func TestListMessagesSortedBySentAt(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	for _, sentAt := range []int64{3000, 1000, 2000} {
		require.NoError(t, repo.SendMessage(ctx, SendMessageParams{
			RoomKey: "r1", From: "0xA", To: "0xB", Text: "m", SentAt: sentAt,
		}))
	}

	msgs, err := repo.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1000), msgs[0].SentAt)
	assert.Equal(t, int64(2000), msgs[1].SentAt)
	assert.Equal(t, int64(3000), msgs[2].SentAt)
}

func TestSendThenListRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	require.NoError(t, repo.SendMessage(ctx, SendMessageParams{
		RoomKey: "r1", From: "0xA", To: "0xB", Text: "hi", SentAt: 1000,
	}))

	msgs, err := repo.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ChatMessage{
		ID: "r1-1000", RoomKey: "r1", From: "0xA", To: "0xB", Text: "hi", SentAt: 1000,
	}, msgs[0])
}

func TestSendMessageDefaultsSentAt(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	require.NoError(t, repo.SendMessage(ctx, SendMessageParams{
		RoomKey: "r1", From: "0xA", Text: "now",
	}))

	msgs, err := repo.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotZero(t, msgs[0].SentAt)
	assert.Equal(t, "r1-"+strconv.FormatInt(msgs[0].SentAt, 10), msgs[0].ID)
}

// Two sends with the same sentAt derive the same id. Both writes land on
// the ledger, but the read path hands back colliding ids and the live
// path's dedup drops the second arrival. Documented limitation; this
// test pins it until the id derivation grows a nonce.
func TestSentAtCollisionDerivesDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.SendMessage(ctx, SendMessageParams{
			RoomKey: "R", From: "0xA", To: "0xB", Text: "dup", SentAt: 1000,
		}))
	}

	entities, err := store.QueryEntities(ctx, arkiv.Eq("type", EntityTypeMessage))
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	msgs, err := repo.ListMessages(ctx, "R")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "R-1000", msgs[0].ID)
	assert.Equal(t, "R-1000", msgs[1].ID)
}

func TestListMessagesPositionalFallbackWithoutSentAt(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	// A message entity written without a sentAt attribute.
	_, err := store.CreateEntity(ctx, arkiv.CreateEntityRequest{
		Attributes: []arkiv.Attribute{
			{Key: "type", Value: EntityTypeMessage},
			{Key: "roomKey", Value: "r1"},
			{Key: "from", Value: "0xA"},
			{Key: "text", Value: "legacy"},
		},
		ExpiresIn: MessageTTL,
	})
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1-0", msgs[0].ID)
	assert.NotZero(t, msgs[0].SentAt)
}

func TestDeleteEntityDismissesInvite(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	_, err := repo.OpenChatRoom(ctx, "0xA", "0xB")
	require.NoError(t, err)

	invites, err := repo.ListInvitesFor(ctx, "0xB")
	require.NoError(t, err)
	require.Len(t, invites, 1)

	require.NoError(t, repo.DeleteEntity(ctx, invites[0].EntityKey))

	invites, err = repo.ListInvitesFor(ctx, "0xB")
	require.NoError(t, err)
	assert.Empty(t, invites)
}
