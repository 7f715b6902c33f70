package handlers

import (
	"net/http"

	"github.com/nv-cho/on-message/internal/arkiv"
	"github.com/nv-cho/on-message/internal/chat"
)

// StatsResponse represents entity counts by type. Counts only cover
// entities still within their TTL; the ledger forgets the rest.
type StatsResponse struct {
	Rooms    int `json:"rooms"`
	Invites  int `json:"invites"`
	Messages int `json:"messages"`
}

// Stats returns live entity counts for the lobby page.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatsResponse{}
	counts := []struct {
		entityType string
		out        *int
	}{
		{chat.EntityTypeRoom, &resp.Rooms},
		{chat.EntityTypeInvite, &resp.Invites},
		{chat.EntityTypeMessage, &resp.Messages},
	}

	for _, c := range counts {
		entities, err := h.store.QueryEntities(ctx, arkiv.Eq("type", c.entityType))
		if err != nil {
			h.logger.Error().Err(err).Str("entityType", c.entityType).Msg("stats query failed")
			h.Error(w, http.StatusInternalServerError, "failed to compute stats")
			return
		}
		*c.out = len(entities)
	}

	h.JSON(w, http.StatusOK, resp)
}
