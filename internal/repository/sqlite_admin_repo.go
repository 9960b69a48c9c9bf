package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

type sqliteAdminRepository struct {
	db *sql.DB
}

func NewSQLiteAdminRepository(db *sql.DB) AdminRepository {
	return &sqliteAdminRepository{db: db}
}

func (r *sqliteAdminRepository) Create(ctx context.Context, a *domain.Admin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admins (id, name, email, password_hash, role, active, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.Active, toMillis(a.CreatedAt),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (r *sqliteAdminRepository) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = ?`, id)
}

func (r *sqliteAdminRepository) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = ?`, email)
}

func (r *sqliteAdminRepository) getOne(ctx context.Context, query string, arg any) (*domain.Admin, error) {
	var (
		a         domain.Admin
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}

func (r *sqliteAdminRepository) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("prune revoked tokens: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (token_id, expires_at) VALUES (?, ?)`,
		tokenID, toMillis(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *sqliteAdminRepository) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = ?)`, tokenID,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
