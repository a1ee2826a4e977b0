package dto

import (
	"time"

	"github.com/spec-kit/mileage-service/internal/domain"
)

// RegisterRequest payload for new members.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Phone    *string `json:"phone,omitempty"`
}

// ProfileUpdateRequest payload for profile changes.
type ProfileUpdateRequest struct {
	Email string  `json:"email"`
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
}

// MemberResponse is the outbound member view. The password hash is never
// part of any response.
type MemberResponse struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Phone            *string   `json:"phone,omitempty"`
	Tier             string    `json:"tier"`
	TierDisplayName  string    `json:"tier_display_name"`
	EarnRate         float64   `json:"earn_rate"`
	TotalMileage     int       `json:"total_mileage"`
	AvailableMileage int       `json:"available_mileage"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewMemberResponse maps a domain member to its view.
func NewMemberResponse(m *domain.Member) MemberResponse {
	return MemberResponse{
		ID:               m.ID,
		Email:            m.Email,
		Name:             m.Name,
		Phone:            m.Phone,
		Tier:             string(m.Tier),
		TierDisplayName:  m.Tier.DisplayName(),
		EarnRate:         m.Tier.EarnRate(),
		TotalMileage:     m.TotalMileage,
		AvailableMileage: m.AvailableMileage,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// NewMemberResponses maps a slice of members.
func NewMemberResponses(members []domain.Member) []MemberResponse {
	out := make([]MemberResponse, 0, len(members))
	for i := range members {
		out = append(out, NewMemberResponse(&members[i]))
	}
	return out
}

// StatisticsResponse carries the aggregate counts plus a rendered summary.
type StatisticsResponse struct {
	Active  int64  `json:"active"`
	Deleted int64  `json:"deleted"`
	Total   int64  `json:"total"`
	Summary string `json:"summary"`
}
