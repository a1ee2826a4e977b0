package dto

import (
	"time"

	"github.com/spec-kit/mileage-service/internal/domain"
)

// MileageRequest payload for accrual and redemption.
type MileageRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// MileageTransactionResponse is one ledger row in a history listing.
type MileageTransactionResponse struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	Amount         int       `json:"amount"`
	Reason         string    `json:"reason,omitempty"`
	TotalAfter     int       `json:"total_after"`
	AvailableAfter int       `json:"available_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMileageTransactionResponses maps ledger rows to views.
func NewMileageTransactionResponses(txs []domain.MileageTransaction) []MileageTransactionResponse {
	out := make([]MileageTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, MileageTransactionResponse{
			ID:             tx.ID,
			Kind:           string(tx.Kind),
			Amount:         tx.Amount,
			Reason:         tx.Reason,
			TotalAfter:     tx.TotalAfter,
			AvailableAfter: tx.AvailableAfter,
			CreatedAt:      tx.CreatedAt,
		})
	}
	return out
}
