package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/mileage-service/internal/config"
	"github.com/spec-kit/mileage-service/internal/repository"
)

type fakeResetRepo struct {
	mu     sync.Mutex
	seq    int64
	tokens map[string]*repository.PasswordResetToken
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{tokens: map[string]*repository.PasswordResetToken{}}
}

func (r *fakeResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	token.ID = r.seq
	token.CreatedAt = time.Now()
	clone := *token
	r.tokens[token.Token] = &clone
	return nil
}

func (r *fakeResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenStr]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *token
	return &clone, nil
}

func (r *fakeResetRepo) MarkUsed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, token := range r.tokens {
		if token.ID == id {
			token.UsedAt = &now
		}
	}
	return nil
}

func newTestAuth(repo *fakeMemberRepo, resets *fakeResetRepo) *AuthService {
	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 5
	cfg.Auth.PasswordResetTTLMinutes = 5
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return NewAuthService(cfg, AuthDependencies{MemberRepo: repo, PasswordResetRepo: resets})
}

func TestLoginIssuesToken(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newTestService(repo, &fakeLedgerRepo{})
	authSvc := newTestAuth(repo, newFakeResetRepo())
	member := register(t, svc, "a@x.com")

	token, exp, err := authSvc.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, exp.After(time.Now()))

	claims, err := authSvc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.MemberID)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newTestService(repo, &fakeLedgerRepo{})
	authSvc := newTestAuth(repo, newFakeResetRepo())
	register(t, svc, "a@x.com")

	_, _, err := authSvc.Login(context.Background(), "a@x.com", "wrong-pass")
	assert.Equal(t, "UNAUTHORIZED", domainCode(t, err).Code)
}

func TestLoginRejectsDeletedMember(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newTestService(repo, &fakeLedgerRepo{})
	authSvc := newTestAuth(repo, newFakeResetRepo())
	member := register(t, svc, "a@x.com")
	require.NoError(t, svc.Delete(context.Background(), member.ID))

	_, _, err := authSvc.Login(context.Background(), "a@x.com", "secret1")
	assert.Equal(t, "UNAUTHORIZED", domainCode(t, err).Code)
}

func TestPasswordResetFlow(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newTestService(repo, &fakeLedgerRepo{})
	authSvc := newTestAuth(repo, newFakeResetRepo())
	register(t, svc, "a@x.com")
	ctx := context.Background()

	token, err := authSvc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)

	require.NoError(t, authSvc.ConfirmPasswordReset(ctx, token.Token, "newsecret"))

	_, _, err = authSvc.Login(ctx, "a@x.com", "secret1")
	assert.Error(t, err)
	_, _, err = authSvc.Login(ctx, "a@x.com", "newsecret")
	assert.NoError(t, err)

	// Single use: the same token cannot reset again.
	err = authSvc.ConfirmPasswordReset(ctx, token.Token, "another1")
	assert.Equal(t, "UNAUTHORIZED", domainCode(t, err).Code)
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newTestService(repo, &fakeLedgerRepo{})
	authSvc := newTestAuth(repo, newFakeResetRepo())
	member := register(t, svc, "a@x.com")
	ctx := context.Background()

	err := authSvc.ChangePassword(ctx, member.ID, "wrong-pass", "newsecret")
	assert.Equal(t, "UNAUTHORIZED", domainCode(t, err).Code)

	require.NoError(t, authSvc.ChangePassword(ctx, member.ID, "secret1", "newsecret"))
	_, _, err = authSvc.Login(ctx, "a@x.com", "newsecret")
	assert.NoError(t, err)
}

func TestLoginAcceptsRegisteredSpelling(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newTestService(repo, &fakeLedgerRepo{})
	authSvc := newTestAuth(repo, newFakeResetRepo())
	member := register(t, svc, "Alice@X.com")
	ctx := context.Background()

	// Stored lowercase, but the member may keep typing the form they signed
	// up with.
	token, _, err := authSvc.Login(ctx, "Alice@X.com", "secret1")
	require.NoError(t, err)
	claims, err := authSvc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.MemberID)

	reset, err := authSvc.RequestPasswordReset(ctx, " ALICE@x.com ")
	require.NoError(t, err)
	assert.Equal(t, member.ID, reset.MemberID)
}
