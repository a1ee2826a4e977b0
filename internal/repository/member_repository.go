package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/mileage-service/internal/domain"
)

// ErrMileageConflict signals that a concurrent mileage operation changed the
// available balance between read and write. Callers retry the read-modify-write.
var ErrMileageConflict = errors.New("concurrent mileage update detected")

// MemberFilter captures listing parameters. The zero value lists active members.
type MemberFilter struct {
	Tier                    *domain.Tier
	MinTotalMileage         *int
	MaxTotalMileage         *int
	NameContains            *string
	IncludeDeleted          bool
	OnlyDeleted             bool
	OrderByTotalMileageDesc bool
	Limit                   int
	Offset                  int
}

// MemberRepository defines persistence access for members. Queries filter out
// soft-deleted rows at the SQL boundary unless the method name says otherwise.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	Update(ctx context.Context, member *domain.Member) error
	UpdateMileage(ctx context.Context, member *domain.Member, expectedAvailable int) error
	GetByID(ctx context.Context, id int64) (*domain.Member, error)
	GetByEmail(ctx context.Context, email string) (*domain.Member, error)
	GetByEmailIncludingDeleted(ctx context.Context, email string) (*domain.Member, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, filter MemberFilter) ([]domain.Member, error)
	ListTopByTotalMileage(ctx context.Context, n int) ([]domain.Member, error)
	CountActive(ctx context.Context) (int64, error)
	CountDeleted(ctx context.Context) (int64, error)
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a Postgres-backed implementation.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

const memberColumns = `id, email, password_hash, name, phone, tier, total_mileage, available_mileage,
               deleted, deleted_at, created_at, updated_at`

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	const query = `
        INSERT INTO members (email, password_hash, name, phone, tier, total_mileage, available_mileage)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		member.Email,
		member.PasswordHash,
		member.Name,
		member.Phone,
		member.Tier,
		member.TotalMileage,
		member.AvailableMileage,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)
}

func (r *memberRepository) Update(ctx context.Context, member *domain.Member) error {
	const query = `
        UPDATE members SET email=$1, password_hash=$2, name=$3, phone=$4, tier=$5,
            total_mileage=$6, available_mileage=$7, deleted=$8, deleted_at=$9, updated_at=NOW()
        WHERE id=$10
        RETURNING updated_at`

	if err := r.pool.QueryRow(ctx, query,
		member.Email,
		member.PasswordHash,
		member.Name,
		member.Phone,
		member.Tier,
		member.TotalMileage,
		member.AvailableMileage,
		member.Deleted,
		member.DeletedAt,
		member.ID,
	).Scan(&member.UpdatedAt); err != nil {
		return err
	}
	return nil
}

// UpdateMileage persists the mileage columns only, conditioned on the
// available balance observed before the domain operation ran. A zero row
// count means another writer got there first.
func (r *memberRepository) UpdateMileage(ctx context.Context, member *domain.Member, expectedAvailable int) error {
	const query = `
        UPDATE members SET total_mileage=$1, available_mileage=$2, tier=$3, updated_at=NOW()
        WHERE id=$4 AND available_mileage=$5 AND deleted=false`

	cmd, err := r.pool.Exec(ctx, query,
		member.TotalMileage,
		member.AvailableMileage,
		member.Tier,
		member.ID,
		expectedAvailable,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMileageConflict
	}
	return nil
}

func (r *memberRepository) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email=$1 AND deleted=false`
	return r.fetchSingle(ctx, query, email)
}

func (r *memberRepository) GetByEmailIncludingDeleted(ctx context.Context, email string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE email=$1 ORDER BY deleted ASC LIMIT 1`
	return r.fetchSingle(ctx, query, email)
}

func (r *memberRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM members WHERE email=$1 AND deleted=false)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *memberRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Member, error) {
	var member domain.Member
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&member.ID,
		&member.Email,
		&member.PasswordHash,
		&member.Name,
		&member.Phone,
		&member.Tier,
		&member.TotalMileage,
		&member.AvailableMileage,
		&member.Deleted,
		&member.DeletedAt,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) List(ctx context.Context, filter MemberFilter) ([]domain.Member, error) {
	base := `SELECT ` + memberColumns + ` FROM members`
	clauses := []string{}
	args := []any{}

	switch {
	case filter.OnlyDeleted:
		clauses = append(clauses, "deleted=true")
	case !filter.IncludeDeleted:
		clauses = append(clauses, "deleted=false")
	default:
		clauses = append(clauses, "1=1")
	}

	if filter.Tier != nil {
		args = append(args, *filter.Tier)
		clauses = append(clauses, fmt.Sprintf("tier=$%d", len(args)))
	}
	if filter.MinTotalMileage != nil {
		args = append(args, *filter.MinTotalMileage)
		clauses = append(clauses, fmt.Sprintf("total_mileage >= $%d", len(args)))
	}
	if filter.MaxTotalMileage != nil {
		args = append(args, *filter.MaxTotalMileage)
		clauses = append(clauses, fmt.Sprintf("total_mileage <= $%d", len(args)))
	}
	if filter.NameContains != nil && strings.TrimSpace(*filter.NameContains) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.NameContains))+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}

	order := "id ASC"
	if filter.OrderByTotalMileageDesc {
		order = "total_mileage DESC, id ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (r *memberRepository) ListTopByTotalMileage(ctx context.Context, n int) ([]domain.Member, error) {
	if n <= 0 {
		n = 10
	}
	return r.List(ctx, MemberFilter{
		OrderByTotalMileageDesc: true,
		Limit:                   n,
	})
}

func (r *memberRepository) CountActive(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM members WHERE deleted=false`)
}

func (r *memberRepository) CountDeleted(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM members WHERE deleted=true`)
}

func (r *memberRepository) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanMembers(rows pgx.Rows) ([]domain.Member, error) {
	var result []domain.Member
	for rows.Next() {
		var member domain.Member
		if err := rows.Scan(
			&member.ID,
			&member.Email,
			&member.PasswordHash,
			&member.Name,
			&member.Phone,
			&member.Tier,
			&member.TotalMileage,
			&member.AvailableMileage,
			&member.Deleted,
			&member.DeletedAt,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	return result, rows.Err()
}
