package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/client-portal/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

var _ paymentpkg.RepositoryAPI = (*PaymentRepository)(nil)

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND gateway_session_id IS NULL", id, payment.StatusPending).
		Delete(&payment.Payment{}).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewaySessionID(ctx context.Context, sessionID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("gateway_session_id = ?", sessionID).First(&p).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &p, nil
}

func (r *PaymentRepository) SetGatewaySession(ctx context.Context, id int64, sessionID string, metadata datatypes.JSON) error {
	updates := map[string]interface{}{
		"gateway_session_id": sessionID,
		"updated_at":         time.Now().UTC(),
	}
	if len(metadata) > 0 {
		updates["metadata"] = metadata
	}

	result := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND gateway_session_id IS NULL", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return paymentpkg.ErrSessionAlreadySet
	}
	return nil
}

// TransitionFromPending relies on the status predicate in the WHERE clause so
// that concurrent callers serialize on the row and at most one sees a hit.
func (r *PaymentRepository) TransitionFromPending(ctx context.Context, id int64, to payment.Status, at time.Time, gatewayPaymentID *string) (bool, error) {
	if !payment.StatusPending.CanTransitionTo(to) {
		return false, payment.ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == payment.StatusCompleted {
		updates["paid_at"] = at
	}
	if gatewayPaymentID != nil {
		updates["gateway_payment_id"] = *gatewayPaymentID
	}

	result := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND status = ?", id, payment.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter paymentpkg.ListFilter) ([]*payment.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&payment.Payment{})
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []*payment.Payment
	offset := (filter.Page - 1) * filter.PerPage
	err := query.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(filter.PerPage).
		Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return paymentpkg.ErrNotFound
	}
	return err
}
