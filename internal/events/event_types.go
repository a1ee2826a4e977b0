package events

import (
	"time"

	"github.com/spec-kit/mileage-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMemberRegistered EventType = "member_registered"
	EventMemberUpdated    EventType = "member_updated"
	EventMemberDeleted    EventType = "member_deleted"
	EventMemberRestored   EventType = "member_restored"
	EventMileageAccrued   EventType = "mileage_accrued"
	EventMileageRedeemed  EventType = "mileage_redeemed"
	EventTierChanged      EventType = "tier_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	MemberID  int64       `json:"member_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MemberRegisteredPayload payload.
type MemberRegisteredPayload struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Tier  domain.Tier `json:"tier"`
}

// MileageChangedPayload payload for accrual and redemption.
type MileageChangedPayload struct {
	Amount           int    `json:"amount"`
	Reason           string `json:"reason,omitempty"`
	TotalMileage     int    `json:"total_mileage"`
	AvailableMileage int    `json:"available_mileage"`
}

// TierChangedPayload payload.
type TierChangedPayload struct {
	OldTier      domain.Tier `json:"old_tier"`
	NewTier      domain.Tier `json:"new_tier"`
	TotalMileage int         `json:"total_mileage"`
}
