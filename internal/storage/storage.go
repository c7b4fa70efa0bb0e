// Package storage exports per-run channel snapshots for external dashboards.
// The CLI and pipeline write snapshots but never read them back.
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
)

// Snapshot is one top-ranked channel as seen by one run.
type Snapshot struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	CapturedAt       time.Time `json:"captured_at"`
	RankBy           string    `json:"rank_by"`
	Rank             int       `json:"rank"`
	AccountID        string    `json:"account_id"`
	Title            string    `json:"display_title"`
	Subscribers      int64     `json:"subscriber_count"`
	TotalViews       int64     `json:"total_view_count"`
	TotalItems       int64     `json:"total_item_count"`
	Status           string    `json:"status"`
	ItemCount        int       `json:"item_count"`
	MeanViews        float64   `json:"mean_views"`
	OutlierThreshold float64   `json:"outlier_threshold"`
	OutlierCount     int       `json:"outlier_count"`
	TopBigram        string    `json:"top_bigram,omitempty"`
}

// Snapshots flattens a report into one Snapshot per top account, in rank order.
func Snapshots(r *model.Report) []*Snapshot {
	out := make([]*Snapshot, 0, len(r.TopAccounts))
	for i, rec := range r.TopAccounts {
		ar := r.PerAccount[rec.AccountID]
		s := &Snapshot{
			ID:               r.RunID + ":" + rec.AccountID,
			RunID:            r.RunID,
			CapturedAt:       r.FinishedAt,
			RankBy:           r.RankBy,
			Rank:             i + 1,
			AccountID:        rec.AccountID,
			Title:            rec.Title,
			Subscribers:      rec.Subscribers,
			TotalViews:       rec.TotalViews,
			TotalItems:       rec.TotalItems,
			Status:           string(ar.Status),
			ItemCount:        ar.Summary.ItemCount,
			MeanViews:        ar.Summary.MeanViews,
			OutlierThreshold: ar.Summary.OutlierThreshold,
			OutlierCount:     ar.Summary.OutlierCount,
		}
		if len(ar.Summary.TopBigrams) > 0 {
			s.TopBigram = ar.Summary.TopBigrams[0].Phrase()
		}
		out = append(out, s)
	}
	return out
}

// Filter selects stored snapshots.
type Filter struct {
	RunID     string
	AccountID string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Match reports whether s passes every set field of f.
func (f Filter) Match(s *Snapshot) bool {
	if f.RunID != "" && s.RunID != f.RunID {
		return false
	}
	if f.AccountID != "" && s.AccountID != f.AccountID {
		return false
	}
	if f.Since != nil && s.CapturedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Apply filters, orders and pages snapshots held in memory. Results are
// newest run first, rank ascending within a run.
func (f Filter) Apply(all []*Snapshot) []*Snapshot {
	matched := make([]*Snapshot, 0, len(all))
	for _, s := range all {
		if f.Match(s) {
			matched = append(matched, s)
		}
	}
	SortNewestFirst(matched)

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []*Snapshot{}
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

// SortNewestFirst orders snapshots by capture time descending, then rank.
func SortNewestFirst(s []*Snapshot) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].CapturedAt.Equal(s[j].CapturedAt) {
			return s[i].CapturedAt.After(s[j].CapturedAt)
		}
		return s[i].Rank < s[j].Rank
	})
}

// Backend stores and queries channel snapshots.
type Backend interface {
	Save(ctx context.Context, report *model.Report) error
	Query(ctx context.Context, filter Filter) ([]*Snapshot, error)
	Close() error
}
