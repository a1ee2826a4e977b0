package domain

import (
	"errors"
	"time"
)

// ErrNonPositiveAmount rejects mileage amounts below 1.
var ErrNonPositiveAmount = errors.New("mileage amount must be at least 1")

// Member is the aggregate for one airline loyalty account.
type Member struct {
	ID               int64
	Email            string
	PasswordHash     string
	Name             string
	Phone            *string
	Tier             Tier
	TotalMileage     int
	AvailableMileage int
	Deleted          bool
	DeletedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewMember constructs a fresh member with zero balances and BASIC tier.
func NewMember(email, passwordHash, name string, phone *string) *Member {
	return &Member{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Phone:        phone,
		Tier:         TierBasic,
	}
}

// Accrue adds mileage to both the lifetime total and the spendable balance,
// then recomputes the tier from the new total.
func (m *Member) Accrue(amount int) error {
	if amount < 1 {
		return ErrNonPositiveAmount
	}
	m.TotalMileage += amount
	m.AvailableMileage += amount
	m.Tier = TierForMileage(m.TotalMileage)
	return nil
}

// Redeem spends mileage from the available balance. It reports false and
// leaves the member unchanged when the balance is short. TotalMileage and
// the tier are never affected by redemption.
func (m *Member) Redeem(amount int) (bool, error) {
	if amount < 1 {
		return false, ErrNonPositiveAmount
	}
	if m.AvailableMileage < amount {
		return false, nil
	}
	m.AvailableMileage -= amount
	return true, nil
}

// SoftDelete marks the member inactive. The row is never removed.
func (m *Member) SoftDelete() {
	now := time.Now()
	m.Deleted = true
	m.DeletedAt = &now
}

// Restore reverses a soft delete.
func (m *Member) Restore() {
	m.Deleted = false
	m.DeletedAt = nil
}
