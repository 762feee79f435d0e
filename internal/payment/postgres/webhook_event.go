package postgres

import (
	"context"

	"gorm.io/gorm"

	gatewaymodel "github.com/frahmantamala/client-portal/internal/core/datamodel/paymentgateway"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Record(ctx context.Context, event *gatewaymodel.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// Recent returns the latest deliveries correlated to a payment, newest first.
func (r *WebhookEventRepository) Recent(ctx context.Context, paymentID int64, limit int) ([]*gatewaymodel.WebhookEvent, error) {
	var events []*gatewaymodel.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
