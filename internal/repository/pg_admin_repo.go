package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/waitlist/internal/domain"
)

const adminColumns = `id, name, email, password_hash, role, active, created_at`

type pgAdminRepository struct {
	pool *pgxpool.Pool
}

func NewPgAdminRepository(pool *pgxpool.Pool) AdminRepository {
	return &pgAdminRepository{pool: pool}
}

// NewPgStore wires all PostgreSQL repositories onto one pool.
func NewPgStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Members:   NewPgMemberRepository(pool),
		Campaigns: NewPgCampaignRepository(pool),
		Admins:    NewPgAdminRepository(pool),
	}
}

func (r *pgAdminRepository) Create(ctx context.Context, a *domain.Admin) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admins (id, name, email, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.Active, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (r *pgAdminRepository) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
}

func (r *pgAdminRepository) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email)
}

func (r *pgAdminRepository) getOne(ctx context.Context, query string, arg any) (*domain.Admin, error) {
	var a domain.Admin
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &a, nil
}

func (r *pgAdminRepository) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("prune revoked tokens: %w", err)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2)
		ON CONFLICT (token_id) DO NOTHING`,
		tokenID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *pgAdminRepository) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`, tokenID,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
