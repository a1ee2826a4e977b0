package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/mileage-service/internal/auth"
	"github.com/spec-kit/mileage-service/internal/domain"
	"github.com/spec-kit/mileage-service/internal/events"
	"github.com/spec-kit/mileage-service/internal/repository"
	apperrors "github.com/spec-kit/mileage-service/pkg/util"
)

// mileageRetryAttempts bounds the read-modify-write retries when a concurrent
// mileage operation invalidates the observed balance.
const mileageRetryAttempts = 3

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^01[0-9]-\d{4}-\d{4}$`)
)

// normalizeEmail is applied on every write and every lookup so the stored
// lowercase form and the caller's spelling always compare equal.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Ranking caches the top-mileage leaderboard. A nil value disables caching.
// Implementations must treat every error as a cache miss.
type Ranking interface {
	GetTop(ctx context.Context, n int) ([]domain.Member, bool)
	SetTop(ctx context.Context, n int, members []domain.Member)
	Invalidate(ctx context.Context)
}

// MemberService coordinates member lifecycle and mileage workflows.
type MemberService struct {
	members     repository.MemberRepository
	ledger      repository.MileageTransactionRepository
	ranking     Ranking
	dispatcher  events.Dispatcher
	bcryptCost  int
	rankingSize int
}

// MemberDependencies bundles collaborators for the member service.
type MemberDependencies struct {
	MemberRepo  repository.MemberRepository
	LedgerRepo  repository.MileageTransactionRepository
	Ranking     Ranking
	Dispatcher  events.Dispatcher
	BcryptCost  int
	RankingSize int
}

// RegisterInput describes the registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    *string
}

// ProfileUpdateInput describes a profile update. Mileage and tier are never
// touched by profile updates.
type ProfileUpdateInput struct {
	Email string
	Name  string
	Phone *string
}

// MileageInput describes an accrual or redemption request.
type MileageInput struct {
	Amount int
	Reason string
}

// Statistics aggregates membership counts.
type Statistics struct {
	Active  int64 `json:"active"`
	Deleted int64 `json:"deleted"`
	Total   int64 `json:"total"`
}

// Summary renders the counts as a human-readable line.
func (s Statistics) Summary() string {
	return fmt.Sprintf("active members: %d, deleted members: %d, total: %d", s.Active, s.Deleted, s.Total)
}

// NewMemberService constructs the service.
func NewMemberService(deps MemberDependencies) *MemberService {
	size := deps.RankingSize
	if size <= 0 {
		size = 10
	}
	cost := deps.BcryptCost
	if cost <= 0 {
		cost = 12
	}
	return &MemberService{
		members:     deps.MemberRepo,
		ledger:      deps.LedgerRepo,
		ranking:     deps.Ranking,
		dispatcher:  deps.Dispatcher,
		bcryptCost:  cost,
		rankingSize: size,
	}
}

// Register creates a member with zero balances and BASIC tier. The email must
// be unused among active members; an email held only by a soft-deleted member
// may be registered again.
func (s *MemberService) Register(ctx context.Context, input RegisterInput) (*domain.Member, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)

	if err := validateRegistration(input); err != nil {
		return nil, err
	}

	exists, err := s.members.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.NewDuplicateEmail(input.Email)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	member := domain.NewMember(input.Email, hash, input.Name, input.Phone)
	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}

	// A fresh member belongs in the leaderboard when fewer than N exist.
	s.invalidateRanking(ctx)
	s.publish(ctx, events.Event{
		Type:     events.EventMemberRegistered,
		MemberID: member.ID,
		Payload: events.MemberRegisteredPayload{
			Email: member.Email,
			Name:  member.Name,
			Tier:  member.Tier,
		},
	})
	return member, nil
}

// GetByID fetches an active member.
func (s *MemberService) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	return s.activeMember(ctx, id)
}

// GetByEmail fetches an active member by email.
func (s *MemberService) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	email = normalizeEmail(email)
	member, err := s.members.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("member", map[string]any{"email": email})
		}
		return nil, err
	}
	return member, nil
}

// GetByEmailIncludingDeleted fetches a member regardless of deletion state.
func (s *MemberService) GetByEmailIncludingDeleted(ctx context.Context, email string) (*domain.Member, error) {
	email = normalizeEmail(email)
	member, err := s.members.GetByEmailIncludingDeleted(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("member", map[string]any{"email": email})
		}
		return nil, err
	}
	return member, nil
}

// UpdateProfile mutates email, name and phone only.
func (s *MemberService) UpdateProfile(ctx context.Context, id int64, input ProfileUpdateInput) (*domain.Member, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)

	if err := validateProfile(input); err != nil {
		return nil, err
	}

	member, err := s.activeMember(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != member.Email {
		exists, err := s.members.ExistsByEmail(ctx, input.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperrors.NewDuplicateEmail(input.Email)
		}
	}

	member.Email = input.Email
	member.Name = input.Name
	member.Phone = input.Phone

	if err := s.members.Update(ctx, member); err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.EventMemberUpdated, MemberID: member.ID})
	return member, nil
}

// Delete soft-deletes a member. The row is kept and can be restored.
func (s *MemberService) Delete(ctx context.Context, id int64) error {
	member, err := s.activeMember(ctx, id)
	if err != nil {
		return err
	}

	member.SoftDelete()
	if err := s.members.Update(ctx, member); err != nil {
		return err
	}

	s.invalidateRanking(ctx)
	s.publish(ctx, events.Event{Type: events.EventMemberDeleted, MemberID: member.ID})
	return nil
}

// Restore reverses a soft delete.
func (s *MemberService) Restore(ctx context.Context, id int64) (*domain.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("member", map[string]any{"id": id})
		}
		return nil, err
	}
	if !member.Deleted {
		return member, nil
	}

	member.Restore()
	if err := s.members.Update(ctx, member); err != nil {
		return nil, err
	}

	s.invalidateRanking(ctx)
	s.publish(ctx, events.Event{Type: events.EventMemberRestored, MemberID: member.ID})
	return member, nil
}

// Accrue adds mileage to both balances and recomputes the tier. The write is
// guarded against concurrent mileage operations and retried a bounded number
// of times.
func (s *MemberService) Accrue(ctx context.Context, id int64, input MileageInput) (*domain.Member, error) {
	if input.Amount < 1 {
		return nil, apperrors.NewValidationError("mileage amount must be at least 1", map[string]any{"amount": input.Amount})
	}

	for attempt := 0; attempt < mileageRetryAttempts; attempt++ {
		member, err := s.activeMember(ctx, id)
		if err != nil {
			return nil, err
		}

		observedAvailable := member.AvailableMileage
		oldTier := member.Tier
		if err := member.Accrue(input.Amount); err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}

		err = s.members.UpdateMileage(ctx, member, observedAvailable)
		if errors.Is(err, repository.ErrMileageConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.appendLedger(ctx, member, domain.MileageAccrual, input)
		s.invalidateRanking(ctx)
		s.publish(ctx, events.Event{
			Type:     events.EventMileageAccrued,
			MemberID: member.ID,
			Payload: events.MileageChangedPayload{
				Amount:           input.Amount,
				Reason:           input.Reason,
				TotalMileage:     member.TotalMileage,
				AvailableMileage: member.AvailableMileage,
			},
		})
		if member.Tier != oldTier {
			s.publish(ctx, events.Event{
				Type:     events.EventTierChanged,
				MemberID: member.ID,
				Payload: events.TierChangedPayload{
					OldTier:      oldTier,
					NewTier:      member.Tier,
					TotalMileage: member.TotalMileage,
				},
			})
		}
		return member, nil
	}
	return nil, apperrors.NewConflict("mileage update contention, retry", nil)
}

// Redeem spends available mileage. The lifetime total and tier are unchanged.
func (s *MemberService) Redeem(ctx context.Context, id int64, input MileageInput) (*domain.Member, error) {
	if input.Amount < 1 {
		return nil, apperrors.NewValidationError("mileage amount must be at least 1", map[string]any{"amount": input.Amount})
	}

	for attempt := 0; attempt < mileageRetryAttempts; attempt++ {
		member, err := s.activeMember(ctx, id)
		if err != nil {
			return nil, err
		}

		observedAvailable := member.AvailableMileage
		ok, err := member.Redeem(input.Amount)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}
		if !ok {
			return nil, apperrors.NewInsufficientMileage(input.Amount, member.AvailableMileage)
		}

		err = s.members.UpdateMileage(ctx, member, observedAvailable)
		if errors.Is(err, repository.ErrMileageConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.appendLedger(ctx, member, domain.MileageRedemption, input)
		s.invalidateRanking(ctx)
		s.publish(ctx, events.Event{
			Type:     events.EventMileageRedeemed,
			MemberID: member.ID,
			Payload: events.MileageChangedPayload{
				Amount:           input.Amount,
				Reason:           input.Reason,
				TotalMileage:     member.TotalMileage,
				AvailableMileage: member.AvailableMileage,
			},
		})
		return member, nil
	}
	return nil, apperrors.NewConflict("mileage update contention, retry", nil)
}

// List returns members matching the filter.
func (s *MemberService) List(ctx context.Context, filter repository.MemberFilter) ([]domain.Member, error) {
	return s.members.List(ctx, filter)
}

// ListByTier returns active members holding the given tier.
func (s *MemberService) ListByTier(ctx context.Context, tier domain.Tier) ([]domain.Member, error) {
	return s.members.List(ctx, repository.MemberFilter{Tier: &tier})
}

// ListByMileageRange returns active members whose lifetime total falls in [min, max].
func (s *MemberService) ListByMileageRange(ctx context.Context, min, max int) ([]domain.Member, error) {
	if min > max {
		return nil, apperrors.NewValidationError("min mileage exceeds max", map[string]any{"min": min, "max": max})
	}
	return s.members.List(ctx, repository.MemberFilter{
		MinTotalMileage: &min,
		MaxTotalMileage: &max,
	})
}

// SearchByName returns active members whose name contains the term.
func (s *MemberService) SearchByName(ctx context.Context, name string) ([]domain.Member, error) {
	return s.members.List(ctx, repository.MemberFilter{NameContains: &name})
}

// TopByMileage returns the n highest lifetime-mileage active members,
// served from the ranking cache when warm.
func (s *MemberService) TopByMileage(ctx context.Context, n int) ([]domain.Member, error) {
	if n <= 0 {
		n = s.rankingSize
	}
	if s.ranking != nil {
		if cached, ok := s.ranking.GetTop(ctx, n); ok {
			return cached, nil
		}
	}

	members, err := s.members.ListTopByTotalMileage(ctx, n)
	if err != nil {
		return nil, err
	}
	if s.ranking != nil {
		s.ranking.SetTop(ctx, n, members)
	}
	return members, nil
}

// EmailExists reports whether an active member holds the email.
func (s *MemberService) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.members.ExistsByEmail(ctx, normalizeEmail(email))
}

// MileageHistory returns the member's ledger, newest first.
func (s *MemberService) MileageHistory(ctx context.Context, id int64, limit, offset int) ([]domain.MileageTransaction, error) {
	if _, err := s.activeMember(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListByMember(ctx, id, limit, offset)
}

// GetStatistics returns active/deleted/total counts.
func (s *MemberService) GetStatistics(ctx context.Context) (Statistics, error) {
	active, err := s.members.CountActive(ctx)
	if err != nil {
		return Statistics{}, err
	}
	deleted, err := s.members.CountDeleted(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{Active: active, Deleted: deleted, Total: active + deleted}, nil
}

// activeMember loads a member by id, treating missing and soft-deleted rows
// alike as not found on the default path.
func (s *MemberService) activeMember(ctx context.Context, id int64) (*domain.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("member", map[string]any{"id": id})
		}
		return nil, err
	}
	if member.Deleted {
		return nil, apperrors.NewNotFound("member", map[string]any{"id": id})
	}
	return member, nil
}

func (s *MemberService) appendLedger(ctx context.Context, member *domain.Member, kind domain.MileageTransactionKind, input MileageInput) {
	if s.ledger == nil {
		return
	}
	entry := &domain.MileageTransaction{
		MemberID:       member.ID,
		Kind:           kind,
		Amount:         input.Amount,
		Reason:         strings.TrimSpace(input.Reason),
		TotalAfter:     member.TotalMileage,
		AvailableAfter: member.AvailableMileage,
	}
	// Ledger rows are best-effort: the balance update already committed.
	_ = s.ledger.Create(ctx, entry)
}

func (s *MemberService) invalidateRanking(ctx context.Context) {
	if s.ranking != nil {
		s.ranking.Invalidate(ctx)
	}
}

func (s *MemberService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func validateRegistration(input RegisterInput) error {
	details := map[string]any{}
	if !emailPattern.MatchString(input.Email) {
		details["email"] = "invalid email format"
	}
	if n := len([]rune(input.Password)); n < 6 || n > 20 {
		details["password"] = "password must be 6-20 characters"
	}
	if n := len([]rune(input.Name)); n < 2 || n > 50 {
		details["name"] = "name must be 2-50 characters"
	}
	if input.Phone != nil && !phonePattern.MatchString(*input.Phone) {
		details["phone"] = "phone must match 01X-XXXX-XXXX"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid registration payload", details)
	}
	return nil
}

func validateProfile(input ProfileUpdateInput) error {
	details := map[string]any{}
	if !emailPattern.MatchString(input.Email) {
		details["email"] = "invalid email format"
	}
	if n := len([]rune(input.Name)); n < 2 || n > 50 {
		details["name"] = "name must be 2-50 characters"
	}
	if input.Phone != nil && !phonePattern.MatchString(*input.Phone) {
		details["phone"] = "phone must match 01X-XXXX-XXXX"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid profile payload", details)
	}
	return nil
}
