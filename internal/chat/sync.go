package chat

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/metrics"
	"github.com/nv-cho/on-message/internal/models"
)

// optimisticSuffix tags locally synthesized, not-yet-confirmed entries.
const optimisticSuffix = "-optimistic"

// UIMessage is a message shaped for presentation: sender classified
// relative to the viewer, timestamp pre-formatted.
type UIMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"` // "me" or "them"
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	SentAt    int64  `json:"sentAt"`
}

// RoomView is the per-room client-side view over the ledger. It performs
// an initial bulk load of history, merges new entities arriving via the
// poll subscription, and applies optimistic local inserts on send.
//
// All mutations of the message list are pure transformations of the
// previous snapshot (replace-wholesale, append-if-absent, remove-by-id)
// applied under one mutex, so the concurrent load and live-update paths
// cannot lose each other's writes. Switching rooms means closing this
// view and starting a new one; Close marks any in-flight load superseded
// and its result is discarded.
type RoomView struct {
	store        arkiv.Client
	repo         *Repository
	roomKey      string
	me           string
	peer         string
	pollInterval time.Duration
	logger       zerolog.Logger

	mu          sync.Mutex
	messages    []UIMessage
	closed      bool
	unsubscribe func()
}

// RoomViewOption customizes a RoomView.
type RoomViewOption func(*RoomView)

// WithPollInterval overrides the live-update poll interval.
func WithPollInterval(d time.Duration) RoomViewOption {
	return func(v *RoomView) { v.pollInterval = d }
}

// WithLogger sets the view's logger.
func WithLogger(logger zerolog.Logger) RoomViewOption {
	return func(v *RoomView) { v.logger = logger }
}

// NewRoomView creates a view for roomKey as seen by `me`. Sends default
// their recipient to `peer`.
func NewRoomView(store arkiv.Client, repo *Repository, roomKey, me, peer string, opts ...RoomViewOption) *RoomView {
	v := &RoomView{
		store:        store,
		repo:         repo,
		roomKey:      roomKey,
		me:           me,
		peer:         peer,
		pollInterval: arkiv.DefaultPollInterval,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Start kicks off the initial load and the live subscription. The two
// run concurrently from the moment the room is opened.
func (v *RoomView) Start(ctx context.Context) {
	go v.load(ctx)

	v.mu.Lock()
	v.unsubscribe = arkiv.SubscribeEntityEvents(v.store, arkiv.EventHandlers{
		OnEntityCreated: func(event arkiv.EntityEvent) {
			v.applyCreated(ctx, event.EntityKey)
		},
		OnError: func(err error) {
			v.logger.Warn().Err(err).Str("roomKey", v.roomKey).Msg("live update poll error")
		},
	}, v.pollInterval, v.logger)
	v.mu.Unlock()
}

// Close unsubscribes the live feed and marks any in-flight initial load
// as superseded. Safe to call more than once.
func (v *RoomView) Close() {
	v.mu.Lock()
	v.closed = true
	unsub := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Messages returns a snapshot of the current view.
func (v *RoomView) Messages() []UIMessage {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]UIMessage, len(v.messages))
	copy(out, v.messages)
	return out
}

// Send appends an optimistic entry immediately, then writes through the
// repository. On write failure exactly the synthesized entry is removed
// again; no retry. On success nothing reconciles
// the optimistic entry with the confirmed entity arriving via the live
// path; the two may coexist under different ids.
func (v *RoomView) Send(ctx context.Context, text, to string) error {
	if to == "" {
		to = v.peer
	}
	now := time.Now().UnixMilli()

	optimistic := UIMessage{
		ID:        v.roomKey + "-" + strconv.FormatInt(now, 10) + optimisticSuffix,
		Sender:    "me",
		Text:      text,
		Timestamp: formatTimestamp(now),
		From:      v.me,
		SentAt:    now,
	}

	v.mu.Lock()
	v.messages = append(v.messages, optimistic)
	v.mu.Unlock()

	err := v.repo.SendMessage(ctx, SendMessageParams{
		RoomKey: v.roomKey,
		From:    v.me,
		To:      to,
		Text:    text,
		SentAt:  now,
	})
	if err != nil {
		v.logger.Error().Err(err).Str("roomKey", v.roomKey).Msg("send failed, rolling back optimistic entry")
		v.removeByID(optimistic.ID)
		return err
	}

	return nil
}

// load fetches the room's history and replaces the view wholesale,
// unless the view was closed while the query was in flight.
func (v *RoomView) load(ctx context.Context) {
	entities, err := v.store.QueryEntities(ctx,
		arkiv.Eq("type", EntityTypeMessage),
		arkiv.Eq("roomKey", v.roomKey),
	)
	if err != nil {
		v.logger.Error().Err(err).Str("roomKey", v.roomKey).Msg("initial load failed")
		return
	}

	msgs := make([]UIMessage, 0, len(entities))
	for i, e := range entities {
		msgs = append(msgs, v.toUI(decodeMessage(e, v.roomKey, i)))
	}
	sort.SliceStable(msgs, func(a, b int) bool { return msgs[a].SentAt < msgs[b].SentAt })

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		// Superseded: the room changed before the query came back.
		return
	}
	v.messages = msgs
}

// applyCreated fetches a notified entity and merges it into the view if
// it is a message for the active room and not already present.
func (v *RoomView) applyCreated(ctx context.Context, entityKey string) {
	entity, err := v.store.GetEntity(ctx, entityKey)
	if err != nil {
		metrics.SyncEventsDropped.WithLabelValues("fetch_error").Inc()
		v.logger.Warn().Err(err).Str("entityKey", entityKey).Msg("live update fetch failed")
		return
	}

	attrs := arkiv.AttrsToMap(entity.Attributes)
	if attrs["type"] != EntityTypeMessage || attrs["roomKey"] != v.roomKey {
		metrics.SyncEventsDropped.WithLabelValues("filtered").Inc()
		return
	}

	var id string
	var sentAt int64
	if raw, ok := attrs["sentAt"]; ok {
		sentAt, _ = strconv.ParseInt(raw, 10, 64)
		id = v.roomKey + "-" + raw
	} else {
		sentAt = time.Now().UnixMilli()
		id = v.roomKey + "-" + strconv.FormatInt(sentAt, 10)
	}

	msg := v.toUI(models.ChatMessage{
		ID:      id,
		RoomKey: v.roomKey,
		From:    attrs["from"],
		To:      attrs["to"],
		Text:    attrs["text"],
		SentAt:  sentAt,
	})

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	for _, m := range v.messages {
		if m.ID == msg.ID {
			metrics.SyncEventsDropped.WithLabelValues("duplicate").Inc()
			return
		}
	}
	v.messages = append(v.messages, msg)
	metrics.SyncEventsApplied.Inc()
}

// removeByID drops exactly the entry with the given id.
func (v *RoomView) removeByID(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	kept := v.messages[:0:0]
	for _, m := range v.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	v.messages = kept
}

// toUI classifies the sender relative to the viewer. Authorship is
// self-asserted by the from attribute; the comparison is
// case-insensitive and nothing is cryptographically verified.
func (v *RoomView) toUI(m models.ChatMessage) UIMessage {
	sender := "them"
	if m.From != "" && v.me != "" && strings.EqualFold(m.From, v.me) {
		sender = "me"
	}

	ts := m.SentAt
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	return UIMessage{
		ID:        m.ID,
		Sender:    sender,
		Text:      m.Text,
		Timestamp: formatTimestamp(ts),
		From:      m.From,
		SentAt:    ts,
	}
}

func formatTimestamp(epochMs int64) string {
	return time.UnixMilli(epochMs).Format("15:04")
}
