package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nv-cho/on-message/internal/metrics"
	"github.com/nv-cho/on-message/internal/models"
)

// InvitesResponse wraps the invite list.
type InvitesResponse struct {
	Invites []models.ChatInvite `json:"invites"`
}

// ListInvites returns all invites addressed to the given wallet address.
// Invites past their TTL are filtered by the store; anything expired but
// not yet garbage-collected may still show up.
func (h *Handler) ListInvites(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.Error(w, http.StatusBadRequest, "missing address query param")
		return
	}

	invites, err := h.repo.ListInvitesFor(r.Context(), address)
	if err != nil {
		h.logger.Error().Err(err).Str("address", address).Msg("list invites failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch invites")
		return
	}

	h.JSON(w, http.StatusOK, InvitesResponse{Invites: invites})
}

// DeleteInvite dismisses an invite by deleting its ledger entity.
// No ownership check: whoever holds the entity key can delete it. Whether
// this should be checked against the caller's address is an open gap.
func (h *Handler) DeleteInvite(w http.ResponseWriter, r *http.Request) {
	entityKey := chi.URLParam(r, "entityKey")
	if entityKey == "" {
		h.Error(w, http.StatusBadRequest, "missing entityKey")
		return
	}

	if err := h.repo.DeleteEntity(r.Context(), entityKey); err != nil {
		h.logger.Error().Err(err).Str("entityKey", entityKey).Msg("delete invite failed")
		h.Error(w, http.StatusInternalServerError, "failed to delete invite")
		return
	}

	metrics.InvitesDeleted.Inc()
	h.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
