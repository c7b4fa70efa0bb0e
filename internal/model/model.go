package model

import (
	"strings"
	"time"
)

// UnknownTitle is used for accounts whose display title was never provided.
const UnknownTitle = "Unknown Channel"

// AccountSighting is a single account occurrence in a search result.
type AccountSighting struct {
	AccountID string
	Title     string
}

// AccountStats holds the reach statistics reported for an account.
// Fields missing from the provider response stay zero.
type AccountStats struct {
	Subscribers int64 `json:"subscriber_count"`
	Views       int64 `json:"total_view_count"`
	Items       int64 `json:"total_item_count"`
}

// AccountRecord is the canonical, deduplicated entry for one account.
type AccountRecord struct {
	AccountID   string `json:"account_id"`
	Title       string `json:"display_title"`
	Subscribers int64  `json:"subscriber_count"`
	TotalViews  int64  `json:"total_view_count"`
	TotalItems  int64  `json:"total_item_count"`
}

// URL returns the public channel page of the account.
func (r AccountRecord) URL() string {
	return "https://www.youtube.com/channel/" + r.AccountID
}

// Item is a piece of content ("video") published by an account.
type Item struct {
	ItemID      string    `json:"item_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Description string    `json:"description"`
}

// ItemStats holds the per-item engagement counters.
type ItemStats struct {
	Views    int64 `json:"view_count"`
	Likes    int64 `json:"like_count"`
	Comments int64 `json:"comment_count"`
}

// AnalyzedItem joins an Item with its ItemStats. IsOutlier, LikeRatio and
// CommentRatio are filled by the analyzer only.
type AnalyzedItem struct {
	ItemID       string    `json:"item_id"`
	Title        string    `json:"title"`
	PublishedAt  time.Time `json:"published_at"`
	Views        int64     `json:"view_count"`
	Likes        int64     `json:"like_count"`
	Comments     int64     `json:"comment_count"`
	Description  string    `json:"description"`
	IsOutlier    bool      `json:"is_outlier"`
	LikeRatio    float64   `json:"like_ratio"`
	CommentRatio float64   `json:"comment_ratio"`
}

// Join builds the AnalyzedItem for item with the given stats.
func Join(item Item, stats ItemStats) AnalyzedItem {
	return AnalyzedItem{
		ItemID:      item.ItemID,
		Title:       item.Title,
		PublishedAt: item.PublishedAt,
		Views:       stats.Views,
		Likes:       stats.Likes,
		Comments:    stats.Comments,
		Description: item.Description,
	}
}

// Bigram is an ordered pair of adjacent title tokens and its frequency.
type Bigram struct {
	Pair  [2]string `json:"pair"`
	Count int       `json:"count"`
}

// Phrase renders the pair as "first second".
func (b Bigram) Phrase() string {
	return strings.Join(b.Pair[:], " ")
}

// AnalyticsSummary is the per-account aggregate over its analyzed items.
// Means and the threshold are rounded to two decimals.
type AnalyticsSummary struct {
	ItemCount        int      `json:"item_count"`
	MeanViews        float64  `json:"mean_views"`
	MeanLikes        float64  `json:"mean_likes"`
	MeanComments     float64  `json:"mean_comments"`
	OutlierThreshold float64  `json:"outlier_threshold"`
	OutlierCount     int      `json:"outlier_count"`
	TopBigrams       []Bigram `json:"top_bigrams"`
}

// KeywordMatch records how often a niche keyword appears in an account's items.
type KeywordMatch struct {
	Keyword   string   `json:"keyword"`
	Count     int      `json:"count"`
	ItemIDs   []string `json:"item_ids"`
	Sentences []string `json:"sentences,omitempty"`
}

// KeywordStat aggregates the search outcome of one keyword.
type KeywordStat struct {
	Keyword     string `json:"keyword"`
	Hits        int    `json:"hits"`
	Accounts    int    `json:"accounts"`
	NewAccounts int    `json:"new_accounts"`
	Failed      bool   `json:"failed,omitempty"`
}

// AccountStatus describes how far the deep analysis of an account got.
type AccountStatus string

const (
	StatusOK          AccountStatus = "ok"
	StatusNoItems     AccountStatus = "no_items"
	StatusNoItemStats AccountStatus = "no_item_stats"
)

// AccountReport is the deep-analysis output for one top account.
type AccountReport struct {
	Status         AccountStatus    `json:"status"`
	Items          []AnalyzedItem   `json:"items"`
	Summary        AnalyticsSummary `json:"summary"`
	KeywordMatches []KeywordMatch   `json:"keyword_matches,omitempty"`
}

// Outliers returns the items flagged as outliers, in item order.
func (r AccountReport) Outliers() []AnalyzedItem {
	var out []AnalyzedItem
	for _, it := range r.Items {
		if it.IsOutlier {
			out = append(out, it)
		}
	}
	return out
}

// Report is the complete result of one pipeline run. Renderers display it
// as-is and never re-derive ratios or thresholds.
type Report struct {
	RunID              string                   `json:"run_id"`
	StartedAt          time.Time                `json:"started_at"`
	FinishedAt         time.Time                `json:"finished_at"`
	RankBy             string                   `json:"rank_by"`
	Keywords           []KeywordStat            `json:"keywords"`
	TotalAccountsFound int                      `json:"total_accounts_found"`
	TopAccounts        []AccountRecord          `json:"top_accounts"`
	PerAccount         map[string]AccountReport `json:"per_account_reports"`
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
