package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/notifyhub/waitlist/internal/domain"
)

type sqliteMemberRepository struct {
	db *sql.DB
}

// NewSQLiteMemberRepository returns a MemberRepository backed by SQLite.
// Timestamps are stored as unix milliseconds.
func NewSQLiteMemberRepository(db *sql.DB) MemberRepository {
	return &sqliteMemberRepository{db: db}
}

// NewSQLiteStore wires all SQLite repositories onto one handle.
func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Members:   NewSQLiteMemberRepository(db),
		Campaigns: NewSQLiteCampaignRepository(db),
		Admins:    NewSQLiteAdminRepository(db),
	}
}

func (r *sqliteMemberRepository) Create(ctx context.Context, m *domain.Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members
			(id, email, name, joined_at, welcome_email_sent, welcome_email_sent_at,
			 updates_received, last_update_received_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.Email, m.Name, toMillis(m.JoinedAt), m.WelcomeEmailSent, nullMillis(m.WelcomeEmailSentAt),
		m.UpdatesReceived, nullMillis(m.LastUpdateReceivedAt),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *sqliteMemberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)

	m, err := scanSQLiteMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

func (r *sqliteMemberRepository) ListAll(ctx context.Context) ([]*domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY joined_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list all members: %w", err)
	}
	defer rows.Close()
	return scanSQLiteMembers(rows)
}

func (r *sqliteMemberRepository) List(ctx context.Context, f domain.MemberFilter) ([]*domain.Member, int, error) {
	where := ""
	var args []any
	if f.Search != "" {
		p := likePattern(f.Search)
		args = append(args, p, p)
		where = ` WHERE (email LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\')`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members`+where+memberOrderBy(f)+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members, err := scanSQLiteMembers(rows)
	return members, total, err
}

func (r *sqliteMemberRepository) ListPendingWelcome(ctx context.Context, limit int) ([]*domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE welcome_email_sent = 0
		ORDER BY joined_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending welcome: %w", err)
	}
	defer rows.Close()
	return scanSQLiteMembers(rows)
}

func (r *sqliteMemberRepository) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE members
		SET welcome_email_sent = 1, welcome_email_sent_at = ?
		WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark welcome sent: %w", err)
	}
	return requireRow(res)
}

func (r *sqliteMemberRepository) IncrementUpdatesReceived(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE members
		SET updates_received = updates_received + 1, last_update_received_at = ?
		WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("increment updates received: %w", err)
	}
	return requireRow(res)
}

func (r *sqliteMemberRepository) Stats(ctx context.Context, now time.Time) (*domain.MemberStats, error) {
	day, week, month := domain.StatsWindows(now)

	var s domain.MemberStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN joined_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN joined_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN joined_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(welcome_email_sent), 0)
		FROM members`, toMillis(day), toMillis(week), toMillis(month),
	).Scan(&s.Total, &s.JoinedToday, &s.JoinedThisWeek, &s.JoinedThisMonth, &s.WelcomeSent)
	if err != nil {
		return nil, fmt.Errorf("member stats: %w", err)
	}
	s.WelcomePending = s.Total - s.WelcomeSent
	return &s, nil
}

// ---- helpers ----

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func isSQLiteUnique(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMember(row rowScanner) (*domain.Member, error) {
	var (
		m                  domain.Member
		name               sql.NullString
		joinedAt           int64
		welcomeAt, lastUpd sql.NullInt64
	)
	err := row.Scan(
		&m.ID, &m.Email, &name, &joinedAt,
		&m.WelcomeEmailSent, &welcomeAt,
		&m.UpdatesReceived, &lastUpd,
	)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		m.Name = &name.String
	}
	m.JoinedAt = fromMillis(joinedAt)
	m.WelcomeEmailSentAt = fromNullMillis(welcomeAt)
	m.LastUpdateReceivedAt = fromNullMillis(lastUpd)
	return &m, nil
}

func scanSQLiteMembers(rows *sql.Rows) ([]*domain.Member, error) {
	var result []*domain.Member
	for rows.Next() {
		m, err := scanSQLiteMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
