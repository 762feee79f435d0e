package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/core/common/validation"
	paymentmodel "github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
)

var maxPaymentAmount = decimal.NewFromInt(1_000_000)

// CreatePaymentRequest is the body of POST /payments.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	ProjectID   *int64          `json:"project_id,omitempty"`
	ContractID  *int64          `json:"contract_id,omitempty"`
	MilestoneID *int64          `json:"milestone_id,omitempty"`
}

func (r *CreatePaymentRequest) Validate() error {
	v := validation.NewValidator()

	amountField := v.Field("amount", r.Amount).
		Required().
		Positive(errors.ErrCodeInvalidAmount).
		MaxDecimal(maxPaymentAmount, errors.ErrCodeInvalidAmount)
	if exp, err := paymentgateway.Exponent(r.Currency); err == nil {
		amountField.MaxPlaces(exp, errors.ErrCodeInvalidAmount)
	}

	v.Field("currency", r.Currency).
		Required().
		OneOf(paymentgateway.SupportedCurrencies(), errors.ErrCodeUnsupportedCurrency)
	v.Field("description", r.Description).MaxLength(500)
	refs := []struct {
		name string
		id   *int64
	}{
		{"project_id", r.ProjectID},
		{"contract_id", r.ContractID},
		{"milestone_id", r.MilestoneID},
	}
	for _, ref := range refs {
		if ref.id != nil {
			v.Field(ref.name, *ref.id).MinInt(1, errors.ErrCodeValidationFailed)
		}
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CheckoutResponse struct {
	PaymentID   int64               `json:"payment_id"`
	SessionID   string              `json:"session_id"`
	CheckoutURL string              `json:"checkout_url"`
	Status      paymentmodel.Status `json:"status"`
}

type PaymentView struct {
	ID              int64               `json:"id"`
	Amount          string              `json:"amount"`
	Currency        string              `json:"currency"`
	FormattedAmount string              `json:"formatted_amount"`
	Description     string              `json:"description,omitempty"`
	Status          paymentmodel.Status `json:"status"`
	SessionID       string              `json:"session_id,omitempty"`
	OwnerID         int64               `json:"owner_id"`
	ProjectID       *int64              `json:"project_id,omitempty"`
	ContractID      *int64              `json:"contract_id,omitempty"`
	MilestoneID     *int64              `json:"milestone_id,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func ToView(p *paymentmodel.Payment) PaymentView {
	exp, err := paymentgateway.Exponent(p.Currency)
	if err != nil {
		exp = 2
	}
	return PaymentView{
		ID:              p.ID,
		Amount:          p.Amount.StringFixed(exp),
		Currency:        p.Currency,
		FormattedAmount: paymentgateway.FormatAmount(p.Amount, p.Currency),
		Description:     p.Description,
		Status:          p.Status,
		SessionID:       p.SessionID(),
		OwnerID:         p.OwnerID,
		ProjectID:       p.ProjectID,
		ContractID:      p.ContractID,
		MilestoneID:     p.MilestoneID,
		PaidAt:          p.PaidAt,
		CreatedAt:       p.CreatedAt,
	}
}

type ListResult struct {
	Items      []PaymentView `json:"items"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

type StatsResponse struct {
	Currencies []CurrencyStats `json:"currencies"`
}

// RedirectRef identifies the payment a browser redirect refers to. SessionID is
// authoritative; PaymentID is only consulted when no session id was supplied.
type RedirectRef struct {
	SessionID string
	PaymentID int64
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
)

type ReconcileResult struct {
	Payment *paymentmodel.Payment
	Outcome Outcome
}

type RedirectResponse struct {
	Payment PaymentView `json:"payment"`
	Message string      `json:"message"`
}

// WebhookAck is the body returned to the gateway. Repeated deliveries of an
// already-applied event receive an identical acknowledgement.
type WebhookAck struct {
	Received      bool   `json:"received"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

type GatewaySessionResponse struct {
	PaymentID  int64                   `json:"payment_id"`
	Local      paymentmodel.Status     `json:"local_status"`
	Session    *paymentgateway.Session `json:"session"`
	Deliveries []WebhookDeliveryView   `json:"deliveries"`

	// GatewayAmount is the session total as the gateway reports it, set only
	// when the gateway returned one.
	GatewayAmount string `json:"gateway_amount,omitempty"`
	AmountMatches *bool  `json:"amount_matches,omitempty"`
}

type WebhookDeliveryView struct {
	EventType      string    `json:"event_type"`
	Outcome        string    `json:"outcome"`
	SignatureValid bool      `json:"signature_valid"`
	Error          string    `json:"error,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}
