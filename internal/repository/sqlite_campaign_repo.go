package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/waitlist/internal/domain"
)

type sqliteCampaignRepository struct {
	db *sql.DB
}

func NewSQLiteCampaignRepository(db *sql.DB) CampaignRepository {
	return &sqliteCampaignRepository{db: db}
}

func (r *sqliteCampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, subject, message, static_content, recipients_count, sent_count, failed_count,
			 status, sent_by, sent_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Subject, c.Message, c.StaticContent, c.RecipientsCount, c.SentCount, c.FailedCount,
		string(c.Status), c.SentBy, toMillis(c.SentAt), toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *sqliteCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)

	c, err := scanSQLiteCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

func (r *sqliteCampaignRepository) List(ctx context.Context, page, limit int) ([]*domain.Campaign, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var result []*domain.Campaign
	for rows.Next() {
		c, err := scanSQLiteCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

func (r *sqliteCampaignRepository) IncrementSent(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.increment(ctx, id, counterSent)
}

func (r *sqliteCampaignRepository) IncrementFailed(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.increment(ctx, id, counterFailed)
}

// increment is one statement on a single-connection pool, so the guard and
// the status flip are evaluated against the latest committed counters.
func (r *sqliteCampaignRepository) increment(ctx context.Context, id string, col counter) (*domain.Campaign, error) {
	query := fmt.Sprintf(`
		UPDATE campaigns
		SET %[1]s = %[1]s + 1,
		    status = CASE
		        WHEN sent_count + failed_count + 1 >= recipients_count THEN 'completed'
		        ELSE status
		    END,
		    updated_at = ?
		WHERE id = ? AND sent_count + failed_count < recipients_count
		RETURNING %[2]s`, col, campaignColumns)

	c, err := scanSQLiteCampaign(r.db.QueryRowContext(ctx, query, toMillis(time.Now()), id))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("increment %s: %w", col, err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrCampaignSettled
}

func (r *sqliteCampaignRepository) Stats(ctx context.Context) (*domain.CampaignStats, error) {
	var s domain.CampaignStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(sent_count), 0) FROM campaigns`,
	).Scan(&s.TotalCampaigns, &s.TotalEmailsSent)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	return &s, nil
}

func scanSQLiteCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c                           domain.Campaign
		status                      string
		sentAt, createdAt, updateAt int64
	)
	err := row.Scan(
		&c.ID, &c.Subject, &c.Message, &c.StaticContent, &c.RecipientsCount,
		&c.SentCount, &c.FailedCount, &status, &c.SentBy,
		&sentAt, &createdAt, &updateAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CampaignStatus(status)
	c.SentAt = fromMillis(sentAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updateAt)
	return &c, nil
}
