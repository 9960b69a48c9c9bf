package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/waitlist/internal/domain"
)

const campaignColumns = `id, subject, message, COALESCE(static_content, ''), recipients_count,
	       sent_count, failed_count, status, sent_by, sent_at, created_at, updated_at`

type pgCampaignRepository struct {
	pool *pgxpool.Pool
}

// NewPgCampaignRepository returns a CampaignRepository backed by PostgreSQL.
func NewPgCampaignRepository(pool *pgxpool.Pool) CampaignRepository {
	return &pgCampaignRepository{pool: pool}
}

func (r *pgCampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaigns
			(id, subject, message, static_content, recipients_count, sent_count, failed_count,
			 status, sent_by, sent_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.Subject, c.Message, c.StaticContent, c.RecipientsCount, c.SentCount, c.FailedCount,
		c.Status, c.SentBy, c.SentAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *pgCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

func (r *pgCampaignRepository) List(ctx context.Context, page, limit int) ([]*domain.Campaign, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var result []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

func (r *pgCampaignRepository) IncrementSent(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.increment(ctx, id, counterSent)
}

func (r *pgCampaignRepository) IncrementFailed(ctx context.Context, id string) (*domain.Campaign, error) {
	return r.increment(ctx, id, counterFailed)
}

// increment relies on the row lock taken by UPDATE: concurrent callers
// re-evaluate the guard against the committed row, so the counters never
// overshoot and exactly one caller observes the transition to completed.
func (r *pgCampaignRepository) increment(ctx context.Context, id string, col counter) (*domain.Campaign, error) {
	query := fmt.Sprintf(`
		UPDATE campaigns
		SET %[1]s = %[1]s + 1,
		    status = CASE
		        WHEN sent_count + failed_count + 1 >= recipients_count THEN 'completed'
		        ELSE status
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND sent_count + failed_count < recipients_count
		RETURNING %[2]s`, col, campaignColumns)

	c, err := scanCampaign(r.pool.QueryRow(ctx, query, id))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("increment %s: %w", col, err)
	}

	// No row matched: either the campaign is unknown or already settled.
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrCampaignSettled
}

func (r *pgCampaignRepository) Stats(ctx context.Context) (*domain.CampaignStats, error) {
	var s domain.CampaignStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(sent_count), 0) FROM campaigns`,
	).Scan(&s.TotalCampaigns, &s.TotalEmailsSent)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	return &s, nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID, &c.Subject, &c.Message, &c.StaticContent, &c.RecipientsCount,
		&c.SentCount, &c.FailedCount, &c.Status, &c.SentBy,
		&c.SentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
