package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/transport"
)

const maxWebhookBodyBytes = 1 << 20

type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, body []byte, headers http.Header) (*WebhookAck, error)
}

type WebhookHandler struct {
	transport.BaseHandler
	Processor WebhookProcessor
}

func NewWebhookHandler(processor WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Processor:   processor,
	}
}

// HandleWebhook handles POST /api/v1/payments/webhook. The raw body is kept
// intact because the signature covers the exact bytes the gateway sent.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.Logger.Warn("failed to read webhook body", "error", err)
		h.HandleError(w, errors.ErrInvalidWebhookBody.WithCause(err))
		return
	}

	ack, err := h.Processor.HandleWebhook(r.Context(), body, r.Header)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ack)
}
