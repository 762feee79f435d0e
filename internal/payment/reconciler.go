package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/datatypes"

	apperrors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/core/datamodel/notification"
	paymentmodel "github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	gatewaymodel "github.com/frahmantamala/client-portal/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/client-portal/internal/core/events"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
	"github.com/frahmantamala/client-portal/pkg/logger"
)

type Trigger string

const (
	TriggerSuccessRedirect Trigger = "success_redirect"
	TriggerCancelRedirect  Trigger = "cancel_redirect"
	TriggerWebhook         Trigger = "webhook"
)

const sideEffectTimeout = 10 * time.Second

// Reconciler drives a payment from Pending to exactly one terminal state,
// whichever of the redirects or the webhook reaches it first.
type Reconciler struct {
	repo       RepositoryAPI
	verifier   SignatureVerifier
	notifier   Notifier
	publisher  EventPublisher
	webhookLog WebhookLogAPI
	logger     *slog.Logger
	now        func() time.Time
}

type ReconcilerDeps struct {
	Repository RepositoryAPI
	Verifier   SignatureVerifier
	Notifier   Notifier
	Publisher  EventPublisher
	WebhookLog WebhookLogAPI
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewReconciler(deps ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		repo:       deps.Repository,
		verifier:   deps.Verifier,
		notifier:   deps.Notifier,
		publisher:  deps.Publisher,
		webhookLog: deps.WebhookLog,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Reconciler) HandleSuccessRedirect(ctx context.Context, ref RedirectRef, actor Actor) (*ReconcileResult, error) {
	return r.handleRedirect(ctx, ref, actor, paymentmodel.StatusCompleted, TriggerSuccessRedirect)
}

func (r *Reconciler) HandleCancelRedirect(ctx context.Context, ref RedirectRef, actor Actor) (*ReconcileResult, error) {
	return r.handleRedirect(ctx, ref, actor, paymentmodel.StatusFailed, TriggerCancelRedirect)
}

func (r *Reconciler) handleRedirect(ctx context.Context, ref RedirectRef, actor Actor, target paymentmodel.Status, trigger Trigger) (*ReconcileResult, error) {
	log := logger.FromOr(ctx, r.logger).With("trigger", trigger, "session_id", ref.SessionID)

	if ref.SessionID == "" && ref.PaymentID <= 0 {
		return nil, apperrors.ErrMissingSessionID
	}

	p, err := r.lookupRedirect(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("redirect for unknown payment", "payment_id", ref.PaymentID)
			return nil, apperrors.ErrPaymentNotFound
		}
		log.Error("failed to load payment for redirect", "error", err)
		return nil, apperrors.NewInternalError("failed to load payment", err)
	}

	if !actor.CanAccess(p) {
		log.Warn("redirect by non-owner rejected", "payment_id", p.ID, "user_id", actor.UserID)
		return nil, apperrors.ErrUnauthorizedAccess
	}

	return r.apply(ctx, p, target, trigger, nil)
}

func (r *Reconciler) lookupRedirect(ctx context.Context, ref RedirectRef) (*paymentmodel.Payment, error) {
	if ref.SessionID != "" {
		return r.repo.GetByGatewaySessionID(ctx, ref.SessionID)
	}
	return r.repo.GetByID(ctx, ref.PaymentID)
}

// HandleWebhook authenticates, parses and applies one gateway delivery. Only
// authentication and body errors are returned to the caller as client errors;
// unknown events and unknown references are acknowledged and ignored.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, headers http.Header) (*WebhookAck, error) {
	log := logger.FromOr(ctx, r.logger).With("trigger", TriggerWebhook)
	audit := &gatewaymodel.WebhookEvent{Payload: auditPayload(body)}
	defer r.recordWebhook(ctx, audit)

	if r.verifier == nil {
		audit.Outcome = gatewaymodel.OutcomeRejected
		setAuditError(audit, ErrVerifierNotConfigured)
		log.Error("webhook rejected: no signature verifier configured")
		return nil, apperrors.ErrInvalidSignature
	}
	if err := r.verifier.Verify(body, headers); err != nil {
		audit.Outcome = gatewaymodel.OutcomeRejected
		setAuditError(audit, err)
		log.Warn("webhook rejected: signature verification failed", "error", err)
		return nil, apperrors.ErrInvalidSignature.WithCause(err)
	}
	audit.SignatureValid = true

	evt, err := ParseWebhook(body)
	if err != nil {
		audit.Outcome = gatewaymodel.OutcomeRejected
		setAuditError(audit, err)
		log.Warn("webhook rejected: malformed body", "error", err)
		return nil, apperrors.ErrInvalidWebhookBody.WithCause(err)
	}
	audit.EventType = evt.Type
	if evt.SessionID != "" {
		audit.SessionID = &evt.SessionID
	}
	log = log.With("event_type", evt.Type, "session_id", evt.SessionID)

	var target paymentmodel.Status
	switch evt.Kind() {
	case EventSucceeded:
		target = paymentmodel.StatusCompleted
	case EventFailed:
		target = paymentmodel.StatusFailed
	default:
		audit.Outcome = gatewaymodel.OutcomeIgnored
		log.Info("webhook event type not handled, acknowledging")
		return ignoredAck(), nil
	}

	if !evt.HasCorrelation() {
		audit.Outcome = gatewaymodel.OutcomeIgnored
		log.Warn("webhook missing correlation key, acknowledging")
		return ignoredAck(), nil
	}

	p, err := r.correlate(ctx, evt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			audit.Outcome = gatewaymodel.OutcomeIgnored
			log.Warn("webhook for unknown payment, acknowledging", "payment_ref", evt.PaymentID)
			return ignoredAck(), nil
		}
		audit.Outcome = gatewaymodel.OutcomeFailed
		setAuditError(audit, err)
		log.Error("failed to load payment for webhook", "error", err)
		return nil, apperrors.NewInternalError("failed to load payment", err)
	}
	audit.PaymentID = &p.ID

	var gatewayPaymentID *string
	if evt.GatewayPaymentID != "" {
		gatewayPaymentID = &evt.GatewayPaymentID
	}

	result, err := r.apply(ctx, p, target, TriggerWebhook, gatewayPaymentID)
	if err != nil {
		audit.Outcome = gatewaymodel.OutcomeFailed
		setAuditError(audit, err)
		return nil, err
	}

	if result.Outcome == OutcomeApplied {
		audit.Outcome = gatewaymodel.OutcomeApplied
	} else {
		audit.Outcome = gatewaymodel.OutcomeNoop
	}
	return &WebhookAck{
		Received:      true,
		Status:        "processed",
		PaymentStatus: result.Payment.Status.String(),
	}, nil
}

// correlate prefers the gateway session id and falls back to the payment id the
// portal put in metadata. A metadata match whose stored session differs from
// the event's session is treated as unknown.
func (r *Reconciler) correlate(ctx context.Context, evt *GatewayEvent) (*paymentmodel.Payment, error) {
	if evt.SessionID != "" {
		p, err := r.repo.GetByGatewaySessionID(ctx, evt.SessionID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) || evt.PaymentID <= 0 {
			return nil, err
		}
	}

	p, err := r.repo.GetByID(ctx, evt.PaymentID)
	if err != nil {
		return nil, err
	}
	if evt.SessionID != "" && p.GatewaySessionID != nil && *p.GatewaySessionID != evt.SessionID {
		logger.FromOr(ctx, r.logger).Warn("webhook metadata points at a payment with a different session",
			"payment_id", p.ID,
			"stored_session_id", *p.GatewaySessionID,
			"event_session_id", evt.SessionID)
		return nil, ErrNotFound
	}
	return p, nil
}

// apply performs the conditional transition. Only the caller whose update
// actually moved the record out of Pending runs the side effects.
func (r *Reconciler) apply(ctx context.Context, p *paymentmodel.Payment, target paymentmodel.Status, trigger Trigger, gatewayPaymentID *string) (*ReconcileResult, error) {
	log := logger.FromOr(ctx, r.logger).With("payment_id", p.ID, "trigger", trigger)

	at := r.now().UTC()
	applied, err := r.repo.TransitionFromPending(ctx, p.ID, target, at, gatewayPaymentID)
	if err != nil {
		log.Error("failed to transition payment", "error", err, "target", target)
		return nil, apperrors.NewInternalError("failed to update payment", err)
	}

	if !applied {
		current, err := r.repo.GetByID(ctx, p.ID)
		if err != nil {
			log.Error("failed to reload payment after no-op transition", "error", err)
			return nil, apperrors.NewInternalError("failed to load payment", err)
		}
		if current.Status == target {
			log.Info("payment already in target state, nothing to do", "status", current.Status)
		} else {
			log.Warn("ignoring transition out of terminal state", "status", current.Status, "target", target)
		}
		return &ReconcileResult{Payment: current, Outcome: OutcomeNoop}, nil
	}

	p.Status = target
	if target == paymentmodel.StatusCompleted {
		p.PaidAt = &at
	}
	if gatewayPaymentID != nil {
		p.GatewayPaymentID = gatewayPaymentID
	}

	log.Info("payment transitioned", "status", target)
	r.dispatch(ctx, p, trigger)

	return &ReconcileResult{Payment: p, Outcome: OutcomeApplied}, nil
}

func (r *Reconciler) dispatch(ctx context.Context, p *paymentmodel.Payment, trigger Trigger) {
	log := logger.FromOr(ctx, r.logger).With("payment_id", p.ID)
	amount := paymentgateway.FormatAmount(p.Amount, p.Currency)

	var (
		title, message string
		severity       notification.Severity
		event          events.Event
	)
	switch p.Status {
	case paymentmodel.StatusCompleted:
		title = "Payment Received"
		message = "Your payment of " + amount + " has been received. Thank you!"
		severity = notification.SeveritySuccess
		event = events.NewPaymentCompletedEvent(p.ID, p.OwnerID, p.Amount, p.Currency, p.Description, p.SessionID(), string(trigger))
	case paymentmodel.StatusFailed:
		if trigger == TriggerCancelRedirect {
			title = "Payment Cancelled"
			message = "Your payment of " + amount + " was cancelled."
		} else {
			title = "Payment Failed"
			message = "Your payment of " + amount + " could not be completed."
		}
		severity = notification.SeverityWarning
		event = events.NewPaymentFailedEvent(p.ID, p.OwnerID, p.Amount, p.Currency, p.Description, p.SessionID(), string(trigger))
	default:
		return
	}

	sideCtx, cancel := apperrors.Detached(ctx, sideEffectTimeout)
	defer cancel()

	if r.notifier != nil {
		if err := r.notifier.Notify(sideCtx, p.OwnerID, title, message, severity); err != nil {
			log.Error("failed to record payment notification", "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(sideCtx, event); err != nil {
			log.Error("failed to publish payment event", "error", err, "event_type", event.EventType())
		}
	}
}

func (r *Reconciler) recordWebhook(ctx context.Context, audit *gatewaymodel.WebhookEvent) {
	if r.webhookLog == nil {
		return
	}
	sideCtx, cancel := apperrors.Detached(ctx, sideEffectTimeout)
	defer cancel()
	if err := r.webhookLog.Record(sideCtx, audit); err != nil {
		logger.FromOr(ctx, r.logger).Error("failed to record webhook delivery", "error", err, "event_type", audit.EventType)
	}
}

func ignoredAck() *WebhookAck {
	return &WebhookAck{Received: true, Status: "ignored"}
}

func auditPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	quoted, _ := json.Marshal(string(body))
	return datatypes.JSON(quoted)
}

func setAuditError(audit *gatewaymodel.WebhookEvent, err error) {
	msg := err.Error()
	audit.Error = &msg
}
