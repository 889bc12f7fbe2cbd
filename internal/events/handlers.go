package events

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler serves the recent event feed for operators.
type Handler struct {
	Store *RedisStore
}

// Recent returns the newest recorded events, newest first.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	evts, err := h.Store.Recent(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "list events", nil)
		return
	}
	if evts == nil {
		evts = []Event{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"events": evts})
}
