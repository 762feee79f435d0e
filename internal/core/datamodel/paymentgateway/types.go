package paymentgateway

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookOutcome records what the reconciliation did with a delivery.
type WebhookOutcome string

const (
	OutcomeApplied  WebhookOutcome = "applied"
	OutcomeNoop     WebhookOutcome = "noop"
	OutcomeIgnored  WebhookOutcome = "ignored"
	OutcomeRejected WebhookOutcome = "rejected"
	OutcomeFailed   WebhookOutcome = "failed"
)

// WebhookEvent is the audit row written for every inbound gateway delivery.
type WebhookEvent struct {
	ID             int64          `gorm:"primaryKey"`
	EventType      string         `gorm:"column:event_type;type:varchar(100)"`
	SessionID      *string        `gorm:"column:session_id;type:varchar(255);index"`
	PaymentID      *int64         `gorm:"column:payment_id;index"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	SignatureValid bool           `gorm:"column:signature_valid;not null"`
	Outcome        WebhookOutcome `gorm:"column:outcome;type:varchar(20);not null"`
	Error          *string        `gorm:"column:error;type:text"`
	ReceivedAt     time.Time      `gorm:"column:received_at;autoCreateTime"`
}

func (WebhookEvent) TableName() string {
	return "payment_webhook_events"
}
