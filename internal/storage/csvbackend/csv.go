package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"run_id",
	"captured_at",
	"rank_by",
	"rank",
	"account_id",
	"display_title",
	"subscriber_count",
	"total_view_count",
	"total_item_count",
	"status",
	"item_count",
	"mean_views",
	"outlier_threshold",
	"outlier_count",
	"top_bigram",
}

// New creates a CSV-backed storage.Backend appending to filePath.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv export: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv export: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func encode(s *storage.Snapshot) []string {
	return []string{
		s.ID,
		s.RunID,
		s.CapturedAt.Format(time.RFC3339Nano),
		s.RankBy,
		strconv.Itoa(s.Rank),
		s.AccountID,
		s.Title,
		strconv.FormatInt(s.Subscribers, 10),
		strconv.FormatInt(s.TotalViews, 10),
		strconv.FormatInt(s.TotalItems, 10),
		s.Status,
		strconv.Itoa(s.ItemCount),
		strconv.FormatFloat(s.MeanViews, 'f', 2, 64),
		strconv.FormatFloat(s.OutlierThreshold, 'f', 2, 64),
		strconv.Itoa(s.OutlierCount),
		s.TopBigram,
	}
}

func decode(record []string) *storage.Snapshot {
	capturedAt, _ := time.Parse(time.RFC3339Nano, record[2])
	rank, _ := strconv.Atoi(record[4])
	subs, _ := strconv.ParseInt(record[7], 10, 64)
	views, _ := strconv.ParseInt(record[8], 10, 64)
	items, _ := strconv.ParseInt(record[9], 10, 64)
	itemCount, _ := strconv.Atoi(record[11])
	meanViews, _ := strconv.ParseFloat(record[12], 64)
	threshold, _ := strconv.ParseFloat(record[13], 64)
	outliers, _ := strconv.Atoi(record[14])

	return &storage.Snapshot{
		ID:               record[0],
		RunID:            record[1],
		CapturedAt:       capturedAt,
		RankBy:           record[3],
		Rank:             rank,
		AccountID:        record[5],
		Title:            record[6],
		Subscribers:      subs,
		TotalViews:       views,
		TotalItems:       items,
		Status:           record[10],
		ItemCount:        itemCount,
		MeanViews:        meanViews,
		OutlierThreshold: threshold,
		OutlierCount:     outliers,
		TopBigram:        record[15],
	}
}

func (b *csvBackend) Save(ctx context.Context, report *model.Report) error {
	snaps := storage.Snapshots(report)
	if len(snaps) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek csv export: %w", err)
	}

	w := csv.NewWriter(b.file)
	for _, s := range snaps {
		if err := w.Write(encode(s)); err != nil {
			return fmt.Errorf("write csv row %s: %w", s.ID, err)
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv export: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek csv export: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Snapshot{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var all []*storage.Snapshot
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(record) != len(headers) {
			continue // skip malformed rows
		}
		all = append(all, decode(record))
	}

	return filter.Apply(all), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
