package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	httptransport "github.com/spec-kit/mileage-service/internal/api/http"
	"github.com/spec-kit/mileage-service/internal/api/http/handlers"
	"github.com/spec-kit/mileage-service/internal/auth"
	"github.com/spec-kit/mileage-service/internal/config"
	"github.com/spec-kit/mileage-service/internal/domain"
	"github.com/spec-kit/mileage-service/internal/events"
	"github.com/spec-kit/mileage-service/internal/observability"
	"github.com/spec-kit/mileage-service/internal/repository"
	"github.com/spec-kit/mileage-service/internal/service"
)

// memMemberRepo is a minimal in-memory MemberRepository for HTTP tests.
type memMemberRepo struct {
	mu      sync.Mutex
	seq     int64
	members map[int64]*domain.Member
}

func newMemMemberRepo() *memMemberRepo {
	return &memMemberRepo{members: map[int64]*domain.Member{}}
}

func (r *memMemberRepo) Create(_ context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = r.seq
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	clone := *m
	r.members[m.ID] = &clone
	return nil
}

func (r *memMemberRepo) Update(_ context.Context, m *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.UpdatedAt = time.Now()
	clone := *m
	r.members[m.ID] = &clone
	return nil
}

func (r *memMemberRepo) UpdateMileage(_ context.Context, m *domain.Member, expectedAvailable int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.members[m.ID]
	if !ok || stored.Deleted || stored.AvailableMileage != expectedAvailable {
		return repository.ErrMileageConflict
	}
	stored.TotalMileage = m.TotalMileage
	stored.AvailableMileage = m.AvailableMileage
	stored.Tier = m.Tier
	return nil
}

func (r *memMemberRepo) GetByID(_ context.Context, id int64) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *m
	return &clone, nil
}

func (r *memMemberRepo) GetByEmail(_ context.Context, email string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Email == email && !m.Deleted {
			clone := *m
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memMemberRepo) GetByEmailIncludingDeleted(_ context.Context, email string) (*domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Email == email {
			clone := *m
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memMemberRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r *memMemberRepo) List(_ context.Context, filter repository.MemberFilter) ([]domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Member
	for _, m := range r.members {
		if filter.OnlyDeleted && !m.Deleted {
			continue
		}
		if !filter.OnlyDeleted && !filter.IncludeDeleted && m.Deleted {
			continue
		}
		if filter.Tier != nil && m.Tier != *filter.Tier {
			continue
		}
		if filter.MinTotalMileage != nil && m.TotalMileage < *filter.MinTotalMileage {
			continue
		}
		if filter.MaxTotalMileage != nil && m.TotalMileage > *filter.MaxTotalMileage {
			continue
		}
		out = append(out, *m)
	}
	if filter.OrderByTotalMileageDesc {
		sort.Slice(out, func(i, j int) bool { return out[i].TotalMileage > out[j].TotalMileage })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memMemberRepo) ListTopByTotalMileage(ctx context.Context, n int) ([]domain.Member, error) {
	return r.List(ctx, repository.MemberFilter{OrderByTotalMileageDesc: true, Limit: n})
}

func (r *memMemberRepo) CountActive(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.members {
		if !m.Deleted {
			n++
		}
	}
	return n, nil
}

func (r *memMemberRepo) CountDeleted(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.members {
		if m.Deleted {
			n++
		}
	}
	return n, nil
}

type memLedgerRepo struct {
	mu      sync.Mutex
	seq     int64
	entries []domain.MileageTransaction
}

func (r *memLedgerRepo) Create(_ context.Context, tx *domain.MileageTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	tx.ID = r.seq
	tx.CreatedAt = time.Now()
	r.entries = append(r.entries, *tx)
	return nil
}

func (r *memLedgerRepo) ListByMember(_ context.Context, memberID int64, _, _ int) ([]domain.MileageTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MileageTransaction
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].MemberID == memberID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app, _ := newTestAppWithMetrics(t)
	return app
}

func newTestAppWithMetrics(t *testing.T) (*fiber.App, *observability.Metrics) {
	t.Helper()

	repo := newMemMemberRepo()
	ledger := &memLedgerRepo{}

	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 5
	cfg.Auth.PasswordResetTTLMinutes = 5
	cfg.Auth.BcryptCost = bcrypt.MinCost

	memberService := service.NewMemberService(service.MemberDependencies{
		MemberRepo: repo,
		LedgerRepo: ledger,
		Dispatcher: events.NewInMemoryDispatcher(),
		BcryptCost: bcrypt.MinCost,
	})
	authService := service.NewAuthService(cfg, service.AuthDependencies{
		MemberRepo: repo,
	})

	app := fiber.New()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	httptransport.RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("test", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(memberService, authService),
		Members:        handlers.NewMembersHandler(memberService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repo),
	})
	return app, metrics
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	parsed := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &parsed)
	}
	return resp.StatusCode, parsed
}

func registerMember(t *testing.T, app *fiber.App, email string) (memberID int64, token string) {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    email,
		"password": "secret1",
		"name":     "Test Member",
	})
	require.Equal(t, http.StatusCreated, status, "register response: %v", body)

	data := body["data"].(map[string]any)
	member := data["member"].(map[string]any)
	authData := data["auth"].(map[string]any)
	return int64(member["id"].(float64)), authData["token"].(string)
}

func TestRegisterAndFetchMember(t *testing.T) {
	app := newTestApp(t)
	id, _ := registerMember(t, app, "a@x.com")

	status, body := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/members/%d", id), "", nil)
	require.Equal(t, http.StatusOK, status)

	member := body["data"].(map[string]any)
	assert.Equal(t, "a@x.com", member["email"])
	assert.Equal(t, "BASIC", member["tier"])
	assert.Equal(t, "Basic", member["tier_display_name"])
	_, hasPassword := member["password_hash"]
	assert.False(t, hasPassword)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	app := newTestApp(t)
	registerMember(t, app, "a@x.com")

	status, body := doJSON(t, app, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "a@x.com", "password": "secret1", "name": "Someone Else",
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_EMAIL", body["error"].(map[string]any)["code"])
}

func TestMileageRequiresAuth(t *testing.T) {
	app := newTestApp(t)
	id, _ := registerMember(t, app, "a@x.com")

	status, _ := doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/members/%d/mileage/accrue", id), "", map[string]any{
		"amount": 1000,
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMileageLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	id, token := registerMember(t, app, "a@x.com")
	path := fmt.Sprintf("/api/members/%d/mileage", id)

	status, body := doJSON(t, app, http.MethodPost, path+"/accrue", token, map[string]any{
		"amount": 25000, "reason": "ICN-LAX",
	})
	require.Equal(t, http.StatusOK, status)
	member := body["data"].(map[string]any)
	assert.Equal(t, "SILVER", member["tier"])
	assert.Equal(t, float64(25000), member["available_mileage"])

	status, body = doJSON(t, app, http.MethodPost, path+"/redeem", token, map[string]any{
		"amount": 30000,
	})
	require.Equal(t, http.StatusConflict, status)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "INSUFFICIENT_MILEAGE", errBody["code"])
	details := errBody["details"].(map[string]any)
	assert.Equal(t, float64(30000), details["requested"])
	assert.Equal(t, float64(25000), details["available"])

	status, body = doJSON(t, app, http.MethodPost, path+"/redeem", token, map[string]any{
		"amount": 25000,
	})
	require.Equal(t, http.StatusOK, status)
	member = body["data"].(map[string]any)
	assert.Equal(t, float64(0), member["available_mileage"])
	assert.Equal(t, float64(25000), member["total_mileage"])
	assert.Equal(t, "SILVER", member["tier"])

	status, body = doJSON(t, app, http.MethodGet, path+"/history", token, nil)
	require.Equal(t, http.StatusOK, status)
	history := body["data"].([]any)
	assert.Len(t, history, 2)
}

func TestStatisticsAndSoftDelete(t *testing.T) {
	app := newTestApp(t)
	id, token := registerMember(t, app, "a@x.com")
	registerMember(t, app, "b@x.com")

	status, _ := doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/members/%d", id), token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/members/%d", id), "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := doJSON(t, app, http.MethodGet, "/api/members/statistics", "", nil)
	require.Equal(t, http.StatusOK, status)
	stats := body["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["active"])
	assert.Equal(t, float64(1), stats["deleted"])
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, "active members: 1, deleted members: 1, total: 2", stats["summary"])

	// The email lookup that includes deleted rows still finds the member.
	status, _ = doJSON(t, app, http.MethodGet, "/api/members/email/a@x.com?include_deleted=true", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, app, http.MethodGet, "/api/members/email/a@x.com", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCheckEmailAndTopMileage(t *testing.T) {
	app := newTestApp(t)
	idA, tokenA := registerMember(t, app, "a@x.com")
	registerMember(t, app, "b@x.com")

	status, body := doJSON(t, app, http.MethodGet, "/api/members/check-email/a@x.com", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["exists"])

	status, body = doJSON(t, app, http.MethodGet, "/api/members/check-email/nobody@x.com", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["data"].(map[string]any)["exists"])

	status, _ = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/members/%d/mileage/accrue", idA), tokenA, map[string]any{"amount": 5000})
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, app, http.MethodGet, "/api/members/top-mileage", "", nil)
	require.Equal(t, http.StatusOK, status)
	ranking := body["data"].([]any)
	require.Len(t, ranking, 2)
	first := ranking[0].(map[string]any)
	assert.Equal(t, float64(idA), first["id"])
}

func TestValidationFailuresOverHTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "not-an-email", "password": "x", "name": "A",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])

	status, _ = doJSON(t, app, http.MethodGet, "/api/members/tier/PLATINUM", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodGet, "/api/members/mileage?min=100", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetricsRecordFinalStatusForFailedRequests(t *testing.T) {
	app, metrics := newTestAppWithMetrics(t)

	status, _ := doJSON(t, app, http.MethodGet, "/api/members/12345", "", nil)
	require.Equal(t, http.StatusNotFound, status)

	assert.Equal(t, int64(1), metrics.RequestTotal("/api/members/12345", http.MethodGet, http.StatusNotFound))
	assert.Zero(t, metrics.RequestTotal("/api/members/12345", http.MethodGet, http.StatusOK))
}

func TestEmailRouteAcceptsRegisteredSpelling(t *testing.T) {
	app := newTestApp(t)
	id, _ := registerMember(t, app, "Alice@X.com")

	status, body := doJSON(t, app, http.MethodGet, "/api/members/email/Alice@X.com", "", nil)
	require.Equal(t, http.StatusOK, status)
	member := body["data"].(map[string]any)
	assert.Equal(t, float64(id), member["id"])
	assert.Equal(t, "alice@x.com", member["email"])
}
