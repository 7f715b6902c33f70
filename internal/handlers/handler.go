package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/chat"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	repo   *chat.Repository
	store  arkiv.Client
	redis  *redis.Client // nil when rate limiting is disabled
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(repo *chat.Repository, store arkiv.Client, redisClient *redis.Client, logger zerolog.Logger) *Handler {
	return &Handler{repo: repo, store: store, redis: redisClient, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
