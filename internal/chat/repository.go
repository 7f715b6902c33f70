// Package chat implements the domain logic over the entity store: the
// room/invite/message repository and the per-room synchronization engine.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/metrics"
	"github.com/nv-cho/on-message/internal/models"
)

// Entity type attribute values distinguishing chat records on the ledger.
const (
	EntityTypeRoom    = "chat_room"
	EntityTypeInvite  = "chat_invite"
	EntityTypeMessage = "chat_message"
)

// Expiry policy. Rooms outlive their invite and messages.
const (
	RoomTTL    = 7 * 24 * time.Hour
	InviteTTL  = 3 * 24 * time.Hour
	MessageTTL = 3 * 24 * time.Hour
)

// Repository implements room-opening, invite-listing and message
// send/list as operations over the entity store. It is the sole writer
// of chat entities.
type Repository struct {
	store  arkiv.Client
	logger zerolog.Logger
}

// NewRepository creates a repository over the given store.
func NewRepository(store arkiv.Client, logger zerolog.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

// OpenChatRoom creates a chat_room entity and a pending chat_invite for
// `to`, in that order, and returns the fresh room key.
//
// The two writes are not atomic: the store has no cross-entity
// transactions. If the invite write fails after the room write succeeds,
// the room exists with no discoverable invite and the error propagates
// with no compensation.
func (r *Repository) OpenChatRoom(ctx context.Context, from, to string) (string, error) {
	roomKey := uuid.NewString()
	now := time.Now().UnixMilli()

	roomPayload, err := json.Marshal(map[string]any{"createdAt": now})
	if err != nil {
		return "", err
	}

	_, err = r.store.CreateEntity(ctx, arkiv.CreateEntityRequest{
		Payload:     roomPayload,
		ContentType: "application/json",
		Attributes: []arkiv.Attribute{
			{Key: "type", Value: EntityTypeRoom},
			{Key: "roomKey", Value: roomKey},
			{Key: "participantA", Value: from},
			{Key: "participantB", Value: to},
			{Key: "status", Value: string(models.RoomOpen)},
		},
		ExpiresIn: RoomTTL,
	})
	if err != nil {
		return "", fmt.Errorf("create room entity: %w", err)
	}

	invitePayload, err := json.Marshal(map[string]any{"note": "", "createdAt": now})
	if err != nil {
		return "", err
	}

	_, err = r.store.CreateEntity(ctx, arkiv.CreateEntityRequest{
		Payload:     invitePayload,
		ContentType: "application/json",
		Attributes: []arkiv.Attribute{
			{Key: "type", Value: EntityTypeInvite},
			{Key: "from", Value: from},
			{Key: "to", Value: to},
			{Key: "roomKey", Value: roomKey},
			{Key: "status", Value: string(models.InvitePending)},
			{Key: "createdAt", Value: strconv.FormatInt(now, 10)},
		},
		ExpiresIn: InviteTTL,
	})
	if err != nil {
		metrics.OrphanedRooms.Inc()
		r.logger.Error().Err(err).Str("roomKey", roomKey).
			Msg("invite write failed after room write; room is orphaned")
		return "", fmt.Errorf("create invite entity: %w", err)
	}

	return roomKey, nil
}

// GetRoomByKey returns the room with the given key, or nil if none.
func (r *Repository) GetRoomByKey(ctx context.Context, roomKey string) (*models.ChatRoom, error) {
	entities, err := r.store.QueryEntities(ctx,
		arkiv.Eq("type", EntityTypeRoom),
		arkiv.Eq("roomKey", roomKey),
	)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	attrs := arkiv.AttrsToMap(entities[0].Attributes)

	status := models.ChatRoomStatus(attrs["status"])
	if status == "" {
		status = models.RoomOpen
	}

	return &models.ChatRoom{
		RoomKey:      attrs["roomKey"],
		ParticipantA: attrs["participantA"],
		ParticipantB: attrs["participantB"],
		Status:       status,
	}, nil
}

// ListInvitesFor returns all invites addressed to `address`. The store
// filters entities past their TTL; this layer adds no further expiry
// filtering and promises no ordering.
func (r *Repository) ListInvitesFor(ctx context.Context, address string) ([]models.ChatInvite, error) {
	entities, err := r.store.QueryEntities(ctx,
		arkiv.Eq("type", EntityTypeInvite),
		arkiv.Eq("to", address),
	)
	if err != nil {
		return nil, err
	}

	invites := make([]models.ChatInvite, 0, len(entities))
	for _, e := range entities {
		attrs := arkiv.AttrsToMap(e.Attributes)

		status := models.ChatInviteStatus(attrs["status"])
		if status == "" {
			status = models.InvitePending
		}

		var createdAt int64
		if v, ok := attrs["createdAt"]; ok {
			createdAt, _ = strconv.ParseInt(v, 10, 64)
		}

		invites = append(invites, models.ChatInvite{
			EntityKey: e.Key,
			RoomKey:   attrs["roomKey"],
			From:      attrs["from"],
			To:        attrs["to"],
			Status:    status,
			Note:      attrs["note"],
			CreatedAt: createdAt,
		})
	}

	return invites, nil
}

// SendMessageParams are the inputs to SendMessage. SentAt defaults to
// the current time when zero.
type SendMessageParams struct {
	RoomKey string
	From    string
	To      string
	Text    string
	SentAt  int64
}

// SendMessage writes one chat_message entity. Field presence is the HTTP
// boundary's responsibility; no validation happens here beyond the store's.
//
// TODO: two sends in the same room with the same sentAt derive the same
// message id and one of them disappears from the read path. Needs a
// collision-resistant nonce in the id derivation.
func (r *Repository) SendMessage(ctx context.Context, params SendMessageParams) error {
	now := params.SentAt
	if now == 0 {
		now = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(map[string]any{
		"text":    params.Text,
		"sentAt":  now,
		"from":    params.From,
		"to":      params.To,
		"roomKey": params.RoomKey,
	})
	if err != nil {
		return err
	}

	_, err = r.store.CreateEntity(ctx, arkiv.CreateEntityRequest{
		Payload:     payload,
		ContentType: "application/json",
		Attributes: []arkiv.Attribute{
			{Key: "type", Value: EntityTypeMessage},
			{Key: "roomKey", Value: params.RoomKey},
			{Key: "from", Value: params.From},
			{Key: "to", Value: params.To},
			{Key: "text", Value: params.Text},
			{Key: "sentAt", Value: strconv.FormatInt(now, 10)},
		},
		ExpiresIn: MessageTTL,
	})
	if err != nil {
		return fmt.Errorf("create message entity: %w", err)
	}

	return nil
}

// ListMessages returns the room's messages sorted ascending by sentAt,
// the canonical ordering for message history.
func (r *Repository) ListMessages(ctx context.Context, roomKey string) ([]models.ChatMessage, error) {
	entities, err := r.store.QueryEntities(ctx,
		arkiv.Eq("type", EntityTypeMessage),
		arkiv.Eq("roomKey", roomKey),
	)
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(entities))
	for i, e := range entities {
		messages = append(messages, decodeMessage(e, roomKey, i))
	}

	sort.SliceStable(messages, func(a, b int) bool {
		return messages[a].SentAt < messages[b].SentAt
	})

	return messages, nil
}

// DeleteEntity removes an entity by key; used to dismiss invites. No
// ownership check happens at this layer: any caller holding a key may
// delete it.
func (r *Repository) DeleteEntity(ctx context.Context, entityKey string) error {
	return r.store.DeleteEntity(ctx, entityKey)
}

// decodeMessage maps an entity to a ChatMessage, deriving id and sentAt.
// With a sentAt attribute the id is "roomKey-sentAt"; without one the id
// falls back to the positional index and sentAt to the current time.
func decodeMessage(e arkiv.Entity, roomKey string, index int) models.ChatMessage {
	attrs := arkiv.AttrsToMap(e.Attributes)

	var id string
	var sentAt int64
	if raw, ok := attrs["sentAt"]; ok {
		sentAt, _ = strconv.ParseInt(raw, 10, 64)
		id = roomKey + "-" + raw
	} else {
		sentAt = time.Now().UnixMilli()
		id = roomKey + "-" + strconv.Itoa(index)
	}

	msgRoomKey := attrs["roomKey"]
	if msgRoomKey == "" {
		msgRoomKey = roomKey
	}

	return models.ChatMessage{
		ID:      id,
		RoomKey: msgRoomKey,
		From:    attrs["from"],
		To:      attrs["to"],
		Text:    attrs["text"],
		SentAt:  sentAt,
	}
}
