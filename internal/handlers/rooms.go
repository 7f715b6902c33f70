package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nv-cho/on-message/internal/chat"
	"github.com/nv-cho/on-message/internal/metrics"
	"github.com/nv-cho/on-message/internal/models"
)

// OpenRoomRequest represents the room opening request.
type OpenRoomRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OpenRoomResponse carries the fresh room key.
type OpenRoomResponse struct {
	RoomKey string `json:"roomKey"`
}

// SendMessageRequest represents the message send request.
type SendMessageRequest struct {
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Text   string `json:"text"`
	SentAt int64  `json:"sentAt,omitempty"`
}

// MessagesResponse wraps a room's message history.
type MessagesResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

// OpenRoom creates a room and its pending invite.
func (h *Handler) OpenRoom(w http.ResponseWriter, r *http.Request) {
	var req OpenRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.From == "" || req.To == "" {
		h.Error(w, http.StatusBadRequest, "missing required fields: from, to")
		return
	}

	roomKey, err := h.repo.OpenChatRoom(r.Context(), req.From, req.To)
	if err != nil {
		h.logger.Error().Err(err).Msg("open chat room failed")
		h.Error(w, http.StatusInternalServerError, "failed to open chat room")
		return
	}

	metrics.RoomsOpened.Inc()
	h.JSON(w, http.StatusOK, OpenRoomResponse{RoomKey: roomKey})
}

// GetRoom returns a single room by key.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "roomKey")
	if roomKey == "" {
		h.Error(w, http.StatusBadRequest, "missing roomKey")
		return
	}

	room, err := h.repo.GetRoomByKey(r.Context(), roomKey)
	if err != nil {
		h.logger.Error().Err(err).Str("roomKey", roomKey).Msg("get room failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch room")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	h.JSON(w, http.StatusOK, room)
}

// PostMessage writes one message to the room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "roomKey")
	if roomKey == "" {
		h.Error(w, http.StatusBadRequest, "missing roomKey")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.From == "" || req.Text == "" {
		h.Error(w, http.StatusBadRequest, "missing required fields: from, text")
		return
	}

	err := h.repo.SendMessage(r.Context(), chat.SendMessageParams{
		RoomKey: roomKey,
		From:    req.From,
		To:      req.To,
		Text:    req.Text,
		SentAt:  req.SentAt,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("roomKey", roomKey).Msg("send message failed")
		h.Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	metrics.MessagesSent.Inc()
	h.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetMessages returns the room's history sorted ascending by sentAt.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "roomKey")
	if roomKey == "" {
		h.Error(w, http.StatusBadRequest, "missing roomKey")
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), roomKey)
	if err != nil {
		h.logger.Error().Err(err).Str("roomKey", roomKey).Msg("list messages failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}
