package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Payment struct {
	ID               int64           `gorm:"primaryKey"`
	OwnerID          int64           `gorm:"column:owner_id;not null;index"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(12,3);not null"`
	Currency         string          `gorm:"column:currency;type:varchar(3);not null"`
	Description      string          `gorm:"column:description;type:text"`
	Status           Status          `gorm:"column:status;type:varchar(20);not null;index"`
	GatewaySessionID *string         `gorm:"column:gateway_session_id;type:varchar(255);uniqueIndex"`
	GatewayPaymentID *string         `gorm:"column:gateway_payment_id;type:varchar(255)"`
	ProjectID        *int64          `gorm:"column:project_id"`
	ContractID       *int64          `gorm:"column:contract_id"`
	MilestoneID      *int64          `gorm:"column:milestone_id"`
	Metadata         datatypes.JSON  `gorm:"column:metadata"`
	PaidAt           *time.Time      `gorm:"column:paid_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) SessionID() string {
	if p.GatewaySessionID == nil {
		return ""
	}
	return *p.GatewaySessionID
}
