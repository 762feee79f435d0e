package notification

import (
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/auth"
	"github.com/frahmantamala/client-portal/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     svc,
	}
}

func (h *Handler) currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok || u == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return 0, false
	}
	return u.ID, true
}

// List handles GET /api/v1/notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	result, err := h.Service.List(r.Context(), userID, unreadOnly, h.QueryInt(r, "page", 1), h.QueryInt(r, "per_page", defaultPerPage))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	count, err := h.Service.UnreadCount(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UnreadCountResponse{Unread: count})
}

// MarkRead handles POST /api/v1/notifications/read. An empty body marks everything read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	var req MarkReadRequest
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(w, r, &req); err != nil {
			h.HandleServiceError(w, err)
			return
		}
	}

	updated, err := h.Service.MarkRead(r.Context(), userID, req.IDs)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, MarkReadResponse{Updated: updated})
}
