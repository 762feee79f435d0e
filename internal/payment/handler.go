package payment

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	errors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/auth"
	paymentmodel "github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	"github.com/frahmantamala/client-portal/internal/transport"
)

// RedirectHandler is the part of the reconciler the browser redirects reach.
type RedirectHandler interface {
	HandleSuccessRedirect(ctx context.Context, ref RedirectRef, actor Actor) (*ReconcileResult, error)
	HandleCancelRedirect(ctx context.Context, ref RedirectRef, actor Actor) (*ReconcileResult, error)
}

type Handler struct {
	transport.BaseHandler
	Service    ServiceAPI
	Reconciler RedirectHandler
}

func NewHandler(service ServiceAPI, reconciler RedirectHandler, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Service:     service,
		Reconciler:  reconciler,
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return Actor{}, false
	}
	return Actor{UserID: user.ID, IsAdmin: user.IsAdmin()}, true
}

// Create handles POST /api/v1/payments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if err := h.DecodeJSON(w, r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp, err := h.Service.Initiate(r.Context(), actor, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	filter := ListFilter{
		Page:    h.QueryInt(r, "page", 1),
		PerPage: h.QueryInt(r, "per_page", defaultPerPage),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := paymentmodel.ParseStatus(raw)
		if err != nil {
			h.HandleError(w, errors.NewValidationError(err.Error(), errors.ErrCodeInvalidStatus))
			return
		}
		filter.Status = &status
	}

	result, err := h.Service.List(r.Context(), actor, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/v1/payments/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	stats, err := h.Service.Stats(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, StatsResponse{Currencies: stats})
}

// Get handles GET /api/v1/payments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	p, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// Success handles GET /api/v1/payments/success, where the gateway sends the
// payer's browser after a completed checkout.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.Reconciler.HandleSuccessRedirect)
}

// Cancel handles GET /api/v1/payments/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.Reconciler.HandleCancelRedirect)
}

type redirectFunc func(ctx context.Context, ref RedirectRef, actor Actor) (*ReconcileResult, error)

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, handle redirectFunc) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	ref, err := redirectRefFromQuery(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	result, err := handle(r.Context(), ref, actor)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RedirectResponse{
		Payment: ToView(result.Payment),
		Message: redirectMessage(result.Payment.Status),
	})
}

// GatewaySession handles GET /api/v1/admin/payments/{id}/gateway-session
func (h *Handler) GatewaySession(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp, err := h.Service.GatewaySession(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func redirectRefFromQuery(r *http.Request) (RedirectRef, error) {
	q := r.URL.Query()
	ref := RedirectRef{SessionID: strings.TrimSpace(q.Get("session_id"))}
	if raw := strings.TrimSpace(q.Get("payment_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return RedirectRef{}, errors.NewValidationError("invalid payment_id", errors.ErrCodeValidationFailed)
		}
		ref.PaymentID = id
	}
	if ref.SessionID == "" && ref.PaymentID == 0 {
		return RedirectRef{}, errors.ErrMissingSessionID
	}
	return ref, nil
}

func redirectMessage(status paymentmodel.Status) string {
	switch status {
	case paymentmodel.StatusCompleted:
		return "Payment completed successfully"
	case paymentmodel.StatusFailed:
		return "Payment was not completed"
	default:
		return "Payment is being processed"
	}
}
