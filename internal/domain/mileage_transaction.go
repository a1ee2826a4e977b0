package domain

import "time"

// MileageTransactionKind discriminates ledger entries.
type MileageTransactionKind string

const (
	MileageAccrual    MileageTransactionKind = "ACCRUAL"
	MileageRedemption MileageTransactionKind = "REDEMPTION"
)

// MileageTransaction is one append-only ledger row recording a mileage
// operation together with the balances observed right after it.
type MileageTransaction struct {
	ID             int64
	MemberID       int64
	Kind           MileageTransactionKind
	Amount         int
	Reason         string
	TotalAfter     int
	AvailableAfter int
	CreatedAt      time.Time
}
