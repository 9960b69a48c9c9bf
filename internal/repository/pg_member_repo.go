package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/waitlist/internal/domain"
)

const memberColumns = `id, email, name, joined_at, welcome_email_sent, welcome_email_sent_at,
	       updates_received, last_update_received_at`

type pgMemberRepository struct {
	pool *pgxpool.Pool
}

// NewPgMemberRepository returns a MemberRepository backed by PostgreSQL.
func NewPgMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &pgMemberRepository{pool: pool}
}

func (r *pgMemberRepository) Create(ctx context.Context, m *domain.Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO members
			(id, email, name, joined_at, welcome_email_sent, welcome_email_sent_at,
			 updates_received, last_update_received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.Email, m.Name, m.JoinedAt, m.WelcomeEmailSent, m.WelcomeEmailSentAt,
		m.UpdatesReceived, m.LastUpdateReceivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *pgMemberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)

	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

func (r *pgMemberRepository) ListAll(ctx context.Context) ([]*domain.Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY joined_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (r *pgMemberRepository) List(ctx context.Context, f domain.MemberFilter) ([]*domain.Member, int, error) {
	where := ""
	var args []any
	if f.Search != "" {
		args = append(args, likePattern(f.Search))
		where = ` WHERE (email ILIKE $1 ESCAPE '\' OR name ILIKE $1 ESCAPE '\')`
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM members"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM members%s%s LIMIT $%d OFFSET $%d`,
		memberColumns, where, memberOrderBy(f), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members, err := scanMembers(rows)
	return members, total, err
}

func (r *pgMemberRepository) ListPendingWelcome(ctx context.Context, limit int) ([]*domain.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE welcome_email_sent = FALSE
		ORDER BY joined_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending welcome: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (r *pgMemberRepository) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members
		SET welcome_email_sent = TRUE, welcome_email_sent_at = $1
		WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark welcome sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgMemberRepository) IncrementUpdatesReceived(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members
		SET updates_received = updates_received + 1, last_update_received_at = $1
		WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("increment updates received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgMemberRepository) Stats(ctx context.Context, now time.Time) (*domain.MemberStats, error) {
	day, week, month := domain.StatsWindows(now)

	var s domain.MemberStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE joined_at >= $1),
			COUNT(*) FILTER (WHERE joined_at >= $2),
			COUNT(*) FILTER (WHERE joined_at >= $3),
			COUNT(*) FILTER (WHERE welcome_email_sent)
		FROM members`, day, week, month,
	).Scan(&s.Total, &s.JoinedToday, &s.JoinedThisWeek, &s.JoinedThisMonth, &s.WelcomeSent)
	if err != nil {
		return nil, fmt.Errorf("member stats: %w", err)
	}
	s.WelcomePending = s.Total - s.WelcomeSent
	return &s, nil
}

// ---- helpers ----

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// scanMember reads a single member row from any pgx row type.
func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	err := row.Scan(
		&m.ID, &m.Email, &m.Name, &m.JoinedAt,
		&m.WelcomeEmailSent, &m.WelcomeEmailSentAt,
		&m.UpdatesReceived, &m.LastUpdateReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMembers(rows pgx.Rows) ([]*domain.Member, error) {
	var result []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
