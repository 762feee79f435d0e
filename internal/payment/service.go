package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	apperrors "github.com/frahmantamala/client-portal/internal"
	paymentmodel "github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
	"github.com/frahmantamala/client-portal/pkg/logger"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	deliveryLimit  = 20
)

type ServiceConfig struct {
	SuccessURL      string
	CancelURL       string
	GatewayTimeout  time.Duration
	DefaultCurrency string
}

type ServiceAPI interface {
	Initiate(ctx context.Context, actor Actor, req CreatePaymentRequest) (*CheckoutResponse, error)
	Get(ctx context.Context, actor Actor, id int64) (*paymentmodel.Payment, error)
	List(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error)
	Stats(ctx context.Context, actor Actor) ([]CurrencyStats, error)
	GatewaySession(ctx context.Context, id int64) (*GatewaySessionResponse, error)
}

type Service struct {
	repo    RepositoryAPI
	stats   StatsReader
	gateway GatewayAPI
	history WebhookHistory
	cfg     ServiceConfig
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, stats StatsReader, gateway GatewayAPI, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		stats:   stats,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
	}
}

// WithWebhookHistory lets GatewaySession include the deliveries recorded for a payment.
func (s *Service) WithWebhookHistory(h WebhookHistory) *Service {
	s.history = h
	return s
}

// Initiate stores a Pending record, then opens a checkout session for it. If the
// gateway cannot be reached the record is removed again and nothing is left behind.
func (s *Service) Initiate(ctx context.Context, actor Actor, req CreatePaymentRequest) (*CheckoutResponse, error) {
	log := logger.FromOr(ctx, s.logger).With("user_id", actor.UserID)

	if strings.TrimSpace(req.Currency) == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	req.Currency = paymentgateway.NormalizeCurrency(req.Currency)
	if err := req.Validate(); err != nil {
		log.Warn("payment request validation failed", "error", err)
		return nil, err
	}

	record := &paymentmodel.Payment{
		OwnerID:     actor.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Status:      paymentmodel.StatusPending,
		ProjectID:   req.ProjectID,
		ContractID:  req.ContractID,
		MilestoneID: req.MilestoneID,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		log.Error("failed to create payment record", "error", err)
		return nil, apperrors.NewInternalError("failed to create payment", err)
	}
	log = log.With("payment_id", record.ID)
	log.Info("payment record created", "amount", record.Amount.String(), "currency", record.Currency)

	metadata := map[string]string{
		"payment_id": strconv.FormatInt(record.ID, 10),
		"user_id":    strconv.FormatInt(actor.UserID, 10),
	}
	rawMetadata, _ := json.Marshal(metadata)

	gwCtx, cancel := apperrors.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateCheckoutSession(gwCtx, paymentgateway.CheckoutRequest{
		ClientReferenceID: strconv.FormatInt(record.ID, 10),
		ProductName:       productName(record),
		Amount:            record.Amount,
		Currency:          record.Currency,
		SuccessURL:        withPaymentID(s.cfg.SuccessURL, record.ID),
		CancelURL:         withPaymentID(s.cfg.CancelURL, record.ID),
		Metadata:          metadata,
	})
	if err != nil {
		log.Error("checkout session creation failed, removing payment record", "error", err)
		s.discard(ctx, log, record.ID)
		return nil, apperrors.ErrPaymentStartFailed.WithCause(err)
	}

	if err := s.repo.SetGatewaySession(ctx, record.ID, session.SessionID, datatypes.JSON(rawMetadata)); err != nil {
		log.Error("failed to record gateway session, removing payment record", "error", err, "session_id", session.SessionID)
		s.discard(ctx, log, record.ID)
		return nil, apperrors.ErrPaymentStartFailed.WithCause(err)
	}

	log.Info("checkout session opened", "session_id", session.SessionID)
	return &CheckoutResponse{
		PaymentID:   record.ID,
		SessionID:   session.SessionID,
		CheckoutURL: session.SessionURL,
		Status:      paymentmodel.StatusPending,
	}, nil
}

func (s *Service) discard(ctx context.Context, log *slog.Logger, id int64) {
	delCtx, cancel := apperrors.Detached(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.Delete(delCtx, id); err != nil {
		log.Error("failed to remove tentative payment record", "error", err)
	}
}

func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, apperrors.NewInternalError("failed to load payment", err)
	}
	if !actor.CanAccess(p) {
		return nil, apperrors.ErrUnauthorizedAccess
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error) {
	if !actor.IsAdmin {
		owner := actor.UserID
		filter.OwnerID = &owner
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = defaultPerPage
	}
	if filter.PerPage > maxPerPage {
		filter.PerPage = maxPerPage
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list payments", err)
	}

	views := make([]PaymentView, 0, len(items))
	for _, p := range items {
		views = append(views, ToView(p))
	}
	totalPages := int((total + int64(filter.PerPage) - 1) / int64(filter.PerPage))

	return &ListResult{
		Items:      views,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) Stats(ctx context.Context, actor Actor) ([]CurrencyStats, error) {
	var owner *int64
	if !actor.IsAdmin {
		id := actor.UserID
		owner = &id
	}
	stats, err := s.stats.Stats(ctx, owner)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to compute payment stats", err)
	}
	if stats == nil {
		stats = []CurrencyStats{}
	}
	return stats, nil
}

// GatewaySession asks the gateway for its view of a payment's session, for support staff.
func (s *Service) GatewaySession(ctx context.Context, id int64) (*GatewaySessionResponse, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, apperrors.NewInternalError("failed to load payment", err)
	}
	if p.GatewaySessionID == nil {
		return nil, apperrors.NewNotFoundError("payment has no gateway session", apperrors.ErrCodePaymentNotFound)
	}

	gwCtx, cancel := apperrors.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.RetrieveSession(gwCtx, *p.GatewaySessionID)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to retrieve gateway session", apperrors.ErrCodeGatewayUnavailable, err)
	}
	resp := &GatewaySessionResponse{
		PaymentID:  p.ID,
		Local:      p.Status,
		Session:    session,
		Deliveries: []WebhookDeliveryView{},
	}
	if session.TotalAmount > 0 {
		total, err := paymentgateway.FromMinorUnits(session.TotalAmount, p.Currency)
		if err != nil {
			logger.FromOr(ctx, s.logger).Warn("cannot convert gateway session total", "payment_id", p.ID, "currency", p.Currency, "error", err)
		} else {
			matches := total.Equal(p.Amount)
			resp.GatewayAmount = paymentgateway.FormatAmount(total, p.Currency)
			resp.AmountMatches = &matches
		}
	}
	if s.history != nil {
		deliveries, err := s.history.Recent(ctx, p.ID, deliveryLimit)
		if err != nil {
			logger.FromOr(ctx, s.logger).Warn("failed to load webhook deliveries", "payment_id", p.ID, "error", err)
		}
		for _, d := range deliveries {
			view := WebhookDeliveryView{
				EventType:      d.EventType,
				Outcome:        string(d.Outcome),
				SignatureValid: d.SignatureValid,
				ReceivedAt:     d.ReceivedAt,
			}
			if d.Error != nil {
				view.Error = *d.Error
			}
			resp.Deliveries = append(resp.Deliveries, view)
		}
	}
	return resp, nil
}

func productName(p *paymentmodel.Payment) string {
	if p.Description != "" {
		return p.Description
	}
	return fmt.Sprintf("Payment #%d", p.ID)
}

func withPaymentID(base string, id int64) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	q := u.Query()
	q.Set("payment_id", strconv.FormatInt(id, 10))
	u.RawQuery = q.Encode()
	return u.String()
}
