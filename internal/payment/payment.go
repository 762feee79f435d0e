package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/frahmantamala/client-portal/internal/core/datamodel/notification"
	paymentmodel "github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	gatewaymodel "github.com/frahmantamala/client-portal/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/client-portal/internal/core/events"
	"github.com/frahmantamala/client-portal/internal/paymentgateway"
)

var (
	ErrNotFound          = errors.New("payment record not found")
	ErrSessionAlreadySet = errors.New("gateway session already recorded")
)

// Actor is the authenticated caller of a user-facing operation.
type Actor struct {
	UserID  int64
	IsAdmin bool
}

func (a Actor) CanAccess(p *paymentmodel.Payment) bool {
	return a.IsAdmin || (a.UserID != 0 && p.OwnerID == a.UserID)
}

type ListFilter struct {
	OwnerID *int64
	Status  *paymentmodel.Status
	Page    int
	PerPage int
}

type CurrencyStats struct {
	Currency          string          `db:"currency" json:"currency"`
	TotalPaid         decimal.Decimal `db:"total_paid" json:"total_paid"`
	PendingAmount     decimal.Decimal `db:"pending_amount" json:"pending_amount"`
	TotalTransactions int64           `db:"total_transactions" json:"total_transactions"`
}

type RepositoryAPI interface {
	Create(ctx context.Context, p *paymentmodel.Payment) error
	// Delete removes a record only while it is still Pending without a gateway session.
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*paymentmodel.Payment, error)
	GetByGatewaySessionID(ctx context.Context, sessionID string) (*paymentmodel.Payment, error)
	// SetGatewaySession records the session id and the metadata sent with it, once;
	// ErrSessionAlreadySet otherwise.
	SetGatewaySession(ctx context.Context, id int64, sessionID string, metadata datatypes.JSON) error
	// TransitionFromPending is a single conditional update. It reports false when
	// the record had already left Pending, in which case nothing is written.
	TransitionFromPending(ctx context.Context, id int64, to paymentmodel.Status, at time.Time, gatewayPaymentID *string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*paymentmodel.Payment, int64, error)
}

type StatsReader interface {
	Stats(ctx context.Context, ownerID *int64) ([]CurrencyStats, error)
}

type WebhookLogAPI interface {
	Record(ctx context.Context, event *gatewaymodel.WebhookEvent) error
}

type WebhookHistory interface {
	Recent(ctx context.Context, paymentID int64, limit int) ([]*gatewaymodel.WebhookEvent, error)
}

type GatewayAPI interface {
	CreateCheckoutSession(ctx context.Context, req paymentgateway.CheckoutRequest) (*paymentgateway.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*paymentgateway.Session, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, title, message string, severity notification.Severity) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}
