package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS channel_snapshots (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	rank_by TEXT NOT NULL,
	rank INTEGER NOT NULL,
	account_id TEXT NOT NULL,
	display_title TEXT NOT NULL,
	subscriber_count BIGINT NOT NULL,
	total_view_count BIGINT NOT NULL,
	total_item_count BIGINT NOT NULL,
	status TEXT NOT NULL,
	item_count INTEGER NOT NULL,
	mean_views DOUBLE PRECISION NOT NULL,
	outlier_threshold DOUBLE PRECISION NOT NULL,
	outlier_count INTEGER NOT NULL,
	top_bigram TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS channel_snapshots_account ON channel_snapshots (account_id, captured_at);
`

// New creates a Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

const upsert = `
INSERT INTO channel_snapshots (
	id, run_id, captured_at, rank_by, rank, account_id, display_title,
	subscriber_count, total_view_count, total_item_count, status,
	item_count, mean_views, outlier_threshold, outlier_count, top_bigram
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO UPDATE SET
	captured_at = EXCLUDED.captured_at,
	rank = EXCLUDED.rank,
	display_title = EXCLUDED.display_title,
	subscriber_count = EXCLUDED.subscriber_count,
	total_view_count = EXCLUDED.total_view_count,
	total_item_count = EXCLUDED.total_item_count,
	status = EXCLUDED.status,
	item_count = EXCLUDED.item_count,
	mean_views = EXCLUDED.mean_views,
	outlier_threshold = EXCLUDED.outlier_threshold,
	outlier_count = EXCLUDED.outlier_count,
	top_bigram = EXCLUDED.top_bigram
`

func (b *postgresBackend) Save(ctx context.Context, report *model.Report) error {
	snaps := storage.Snapshots(report)
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range snaps {
		batch.Queue(upsert,
			s.ID,
			s.RunID,
			s.CapturedAt,
			s.RankBy,
			s.Rank,
			s.AccountID,
			s.Title,
			s.Subscribers,
			s.TotalViews,
			s.TotalItems,
			s.Status,
			s.ItemCount,
			s.MeanViews,
			s.OutlierThreshold,
			s.OutlierCount,
			s.TopBigram,
		)
	}

	if err := b.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	query := `SELECT id, run_id, captured_at, rank_by, rank, account_id, display_title,
	subscriber_count, total_view_count, total_item_count, status,
	item_count, mean_views, outlier_threshold, outlier_count, top_bigram
	FROM channel_snapshots WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.AccountID != "" {
		query += fmt.Sprintf(` AND account_id = $%d`, paramCount)
		args = append(args, filter.AccountID)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND captured_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY captured_at DESC, rank ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	results := []*storage.Snapshot{}
	for rows.Next() {
		var s storage.Snapshot
		err := rows.Scan(
			&s.ID, &s.RunID, &s.CapturedAt, &s.RankBy, &s.Rank, &s.AccountID, &s.Title,
			&s.Subscribers, &s.TotalViews, &s.TotalItems, &s.Status,
			&s.ItemCount, &s.MeanViews, &s.OutlierThreshold, &s.OutlierCount, &s.TopBigram,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		results = append(results, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
