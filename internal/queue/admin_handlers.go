package queue

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
)

// AdminHandler exposes queue management endpoints for DLQ inspection
// and replay.
type AdminHandler struct {
	DLQ    DLQ
	Queue  Enqueuer
	Logger zerolog.Logger
}

func kindParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("kind"))
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// ListDLQ returns dead letters for a kind.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	kind := kindParam(r)
	if kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind is required", nil)
		return
	}
	items, err := h.DLQ.List(r.Context(), kind, limitParam(r))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	total, err := h.DLQ.Size(r.Context(), kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "total": total, "kind": kind})
}

// ReplayDLQ re-enqueues dead letters for a kind.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	kind := kindParam(r)
	if kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind is required", nil)
		return
	}
	n, err := h.DLQ.Replay(r.Context(), h.Queue, kind, limitParam(r))
	if err != nil {
		h.Logger.Error().Err(err).Str("kind", kind).Int("replayed", n).Msg("dlq replay aborted")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	h.Logger.Info().Str("kind", kind).Int("replayed", n).Msg("dlq replay")
	common.JSON(w, http.StatusOK, map[string]any{"replayed": n, "kind": kind})
}

// PurgeDLQ discards all dead letters for a kind.
func (h *AdminHandler) PurgeDLQ(w http.ResponseWriter, r *http.Request) {
	kind := kindParam(r)
	if kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind is required", nil)
		return
	}
	if err := h.DLQ.Purge(r.Context(), kind); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	h.Logger.Info().Str("kind", kind).Msg("dlq purged")
	common.JSON(w, http.StatusOK, map[string]any{"purged": true, "kind": kind})
}
