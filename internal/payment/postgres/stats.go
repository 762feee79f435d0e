package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/client-portal/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/client-portal/internal/payment"
)

// StatsRepository aggregates with plain SQL; amounts of different currencies
// are never summed together.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

const statsQuery = `
SELECT currency,
       COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS total_paid,
       COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS pending_amount,
       COUNT(*) AS total_transactions
FROM payments`

func (r *StatsRepository) Stats(ctx context.Context, ownerID *int64) ([]paymentpkg.CurrencyStats, error) {
	query := statsQuery
	args := []interface{}{payment.StatusCompleted.String(), payment.StatusPending.String()}
	if ownerID != nil {
		query += "\nWHERE owner_id = ?"
		args = append(args, *ownerID)
	}
	query += "\nGROUP BY currency ORDER BY currency"

	var stats []paymentpkg.CurrencyStats
	if err := r.db.SelectContext(ctx, &stats, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return stats, nil
}
