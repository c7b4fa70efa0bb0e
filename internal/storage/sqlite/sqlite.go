package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

// captured_at holds Unix nanoseconds so ordering and range filters stay numeric.
const schema = `
CREATE TABLE IF NOT EXISTS channel_snapshots (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	rank_by TEXT NOT NULL,
	rank INTEGER NOT NULL,
	account_id TEXT NOT NULL,
	display_title TEXT NOT NULL,
	subscriber_count INTEGER NOT NULL,
	total_view_count INTEGER NOT NULL,
	total_item_count INTEGER NOT NULL,
	status TEXT NOT NULL,
	item_count INTEGER NOT NULL,
	mean_views REAL NOT NULL,
	outlier_threshold REAL NOT NULL,
	outlier_count INTEGER NOT NULL,
	top_bigram TEXT
);
CREATE INDEX IF NOT EXISTS channel_snapshots_account ON channel_snapshots (account_id, captured_at);
`

// New creates a SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

const insert = `
INSERT OR REPLACE INTO channel_snapshots (
	id, run_id, captured_at, rank_by, rank, account_id, display_title,
	subscriber_count, total_view_count, total_item_count, status,
	item_count, mean_views, outlier_threshold, outlier_count, top_bigram
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (b *sqliteBackend) Save(ctx context.Context, report *model.Report) error {
	snaps := storage.Snapshots(report)
	if len(snaps) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range snaps {
		_, err := tx.ExecContext(ctx, insert,
			s.ID,
			s.RunID,
			s.CapturedAt.UnixNano(),
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
		if err != nil {
			return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	query := `SELECT id, run_id, captured_at, rank_by, rank, account_id, display_title,
	subscriber_count, total_view_count, total_item_count, status,
	item_count, mean_views, outlier_threshold, outlier_count, top_bigram
	FROM channel_snapshots WHERE 1=1`
	args := []any{}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	if filter.Since != nil {
		query += ` AND captured_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}

	query += ` ORDER BY captured_at DESC, rank ASC`

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	results := []*storage.Snapshot{}
	for rows.Next() {
		var s storage.Snapshot
		var capturedAt int64
		var bigram sql.NullString

		err := rows.Scan(
			&s.ID, &s.RunID, &capturedAt, &s.RankBy, &s.Rank, &s.AccountID, &s.Title,
			&s.Subscribers, &s.TotalViews, &s.TotalItems, &s.Status,
			&s.ItemCount, &s.MeanViews, &s.OutlierThreshold, &s.OutlierCount, &bigram,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}

		s.CapturedAt = time.Unix(0, capturedAt).UTC()
		s.TopBigram = bigram.String
		results = append(results, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
