package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

// PaymentSettledEvent is published once per payment, on its single terminal transition.
type PaymentSettledEvent struct {
	BaseEvent
	PaymentID   int64           `json:"payment_id"`
	OwnerID     int64           `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	SessionID   string          `json:"session_id"`
	Trigger     string          `json:"trigger"`
}

func newPaymentSettledEvent(eventType string, paymentID, ownerID int64, amount decimal.Decimal, currency, description, sessionID, trigger string) *PaymentSettledEvent {
	return &PaymentSettledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payment_id": paymentID,
				"owner_id":   ownerID,
				"amount":     amount.String(),
				"currency":   currency,
				"session_id": sessionID,
				"trigger":    trigger,
			},
		},
		PaymentID:   paymentID,
		OwnerID:     ownerID,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		SessionID:   sessionID,
		Trigger:     trigger,
	}
}

func NewPaymentCompletedEvent(paymentID, ownerID int64, amount decimal.Decimal, currency, description, sessionID, trigger string) *PaymentSettledEvent {
	return newPaymentSettledEvent(EventTypePaymentCompleted, paymentID, ownerID, amount, currency, description, sessionID, trigger)
}

func NewPaymentFailedEvent(paymentID, ownerID int64, amount decimal.Decimal, currency, description, sessionID, trigger string) *PaymentSettledEvent {
	return newPaymentSettledEvent(EventTypePaymentFailed, paymentID, ownerID, amount, currency, description, sessionID, trigger)
}
