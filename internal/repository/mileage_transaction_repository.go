package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/mileage-service/internal/domain"
)

// MileageTransactionRepository persists the append-only mileage ledger.
type MileageTransactionRepository interface {
	Create(ctx context.Context, tx *domain.MileageTransaction) error
	ListByMember(ctx context.Context, memberID int64, limit, offset int) ([]domain.MileageTransaction, error)
}

type mileageTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewMileageTransactionRepository returns a Postgres-backed implementation.
func NewMileageTransactionRepository(pool *pgxpool.Pool) MileageTransactionRepository {
	return &mileageTransactionRepository{pool: pool}
}

func (r *mileageTransactionRepository) Create(ctx context.Context, tx *domain.MileageTransaction) error {
	const query = `
        INSERT INTO mileage_transactions (member_id, kind, amount, reason, total_after, available_after)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		tx.MemberID,
		tx.Kind,
		tx.Amount,
		tx.Reason,
		tx.TotalAfter,
		tx.AvailableAfter,
	).Scan(&tx.ID, &tx.CreatedAt)
}

func (r *mileageTransactionRepository) ListByMember(ctx context.Context, memberID int64, limit, offset int) ([]domain.MileageTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
        SELECT id, member_id, kind, amount, reason, total_after, available_after, created_at
        FROM mileage_transactions
        WHERE member_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, memberID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MileageTransaction
	for rows.Next() {
		var tx domain.MileageTransaction
		if err := rows.Scan(
			&tx.ID,
			&tx.MemberID,
			&tx.Kind,
			&tx.Amount,
			&tx.Reason,
			&tx.TotalAfter,
			&tx.AvailableAfter,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
