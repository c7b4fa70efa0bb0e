package serp

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/nichescout/internal/metrics"
	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/scraper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultAPIBase is the YouTube Data API v3 root.
	DefaultAPIBase = "https://www.googleapis.com/youtube/v3"
	// DefaultWebBase is where the HTML fallback fetches result pages.
	DefaultWebBase = "https://www.youtube.com"

	// maxPageSize is the largest maxResults the search endpoint accepts.
	maxPageSize = 50

	kindVideo = "youtube#video"
)

// YouTubeConfig configures the YouTube adapter.
type YouTubeConfig struct {
	APIKey  string
	APIBase string
	WebBase string
	// HTMLFallback scrapes result pages when no key is set or the key's
	// quota is spent. The fallback has no account statistics and only
	// view counts for items.
	HTMLFallback bool
	// RespectRobots gates fallback pages on robots.txt.
	RespectRobots bool
	// RobotsAgent is the product token matched against robots.txt groups.
	RobotsAgent string
}

// YouTube implements Provider over the Data API v3 with an optional HTML
// fallback that parses ytInitialData.
type YouTube struct {
	cfg     YouTubeConfig
	fetcher *scraper.Fetcher
	robots  *scraper.RobotsChecker
	logger  *slog.Logger
	tracer  trace.Tracer

	mu    sync.Mutex
	views map[string]int64 // item views seen by the HTML fallback
}

var _ Provider = (*YouTube)(nil)

// NewYouTube creates the adapter. Either an API key or the HTML fallback is
// required.
func NewYouTube(cfg YouTubeConfig, fetcher *scraper.Fetcher, logger *slog.Logger) (*YouTube, error) {
	if fetcher == nil {
		return nil, errors.New("serp: fetcher is required")
	}
	if cfg.APIKey == "" && !cfg.HTMLFallback {
		return nil, errors.New("serp: an API key is required unless the HTML fallback is enabled")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.WebBase == "" {
		cfg.WebBase = DefaultWebBase
	}
	if cfg.RobotsAgent == "" {
		cfg.RobotsAgent = "nichescout"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	cfg.WebBase = strings.TrimRight(cfg.WebBase, "/")

	y := &YouTube{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		tracer:  otel.Tracer("nichescout/serp"),
		views:   make(map[string]int64),
	}
	if cfg.HTMLFallback && cfg.RespectRobots {
		y.robots = scraper.NewRobotsChecker(fetcher, logger)
	}
	return y, nil
}

// count decodes the string-encoded counters of the statistics part. Absent
// or null counters are zero.
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: count %q", errShape, s)
	}
	*c = count(n)
	return nil
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type statisticsListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount       count `json:"viewCount"`
			SubscriberCount count `json:"subscriberCount"`
			VideoCount      count `json:"videoCount"`
			LikeCount       count `json:"likeCount"`
			CommentCount    count `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Search runs one bounded search in the requested mode.
func (y *YouTube) Search(ctx context.Context, q Query) ([]Hit, error) {
	ctx, span := y.tracer.Start(ctx, "youtube.search", trace.WithAttributes(
		attribute.String("search.mode", q.Mode.String()),
		attribute.String("search.text", q.Text),
		attribute.String("search.account_id", q.AccountID),
		attribute.Int("search.limit", q.Limit),
	))
	defer span.End()

	start := time.Now()
	hits, err := y.search(ctx, q)
	y.observe(span, "search", start, err)
	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	return hits, err
}

func (y *YouTube) search(ctx context.Context, q Query) ([]Hit, error) {
	switch q.Mode {
	case ModeAccount:
		if strings.TrimSpace(q.Text) == "" {
			return nil, errors.New("serp: account search needs query text")
		}
	case ModeItem:
		if q.AccountID == "" {
			return nil, errors.New("serp: item search needs an account id")
		}
	default:
		return nil, fmt.Errorf("serp: unknown search mode %d", q.Mode)
	}

	if y.cfg.APIKey == "" {
		return y.scrapeSearch(ctx, q)
	}
	hits, err := y.apiSearch(ctx, q)
	if y.quotaFallback(err) {
		y.logger.Warn("api quota exceeded, falling back to html search", "mode", q.Mode.String(), "err", err)
		return y.scrapeSearch(ctx, q)
	}
	return hits, err
}

func (y *YouTube) apiSearch(ctx context.Context, q Query) ([]Hit, error) {
	params := url.Values{
		"part":       {"snippet"},
		"maxResults": {strconv.Itoa(pageSize(q.Limit))},
	}
	if q.Mode == ModeAccount {
		params.Set("q", q.Text)
		params.Set("type", "video")
	} else {
		params.Set("part", "snippet,id")
		params.Set("channelId", q.AccountID)
		params.Set("order", "date")
	}

	var resp searchListResponse
	if err := y.fetcher.FetchJSON(ctx, y.apiURL("search", params), &resp); err != nil {
		return nil, classify(err)
	}

	hits := make([]Hit, 0, len(resp.Items))
	for _, it := range resp.Items {
		if q.Mode == ModeAccount && (it.ID.VideoID == "" || it.Snippet.ChannelID == "") {
			continue
		}
		if q.Mode == ModeItem && (it.ID.Kind != kindVideo || it.ID.VideoID == "") {
			continue
		}
		published, _ := time.Parse(time.RFC3339, it.Snippet.PublishedAt)
		hits = append(hits, Hit{
			AccountID:    it.Snippet.ChannelID,
			AccountTitle: html.UnescapeString(it.Snippet.ChannelTitle),
			ItemID:       it.ID.VideoID,
			Title:        html.UnescapeString(it.Snippet.Title),
			Description:  html.UnescapeString(it.Snippet.Description),
			PublishedAt:  published,
		})
	}
	if q.Mode == ModeItem {
		for i := range hits {
			if hits[i].AccountID == "" {
				hits[i].AccountID = q.AccountID
			}
		}
	}
	return hits, nil
}

// AccountStats returns subscriber, view and item totals. An account the API
// does not know, or any fallback lookup, yields zero stats.
func (y *YouTube) AccountStats(ctx context.Context, accountID string) (model.AccountStats, error) {
	ctx, span := y.tracer.Start(ctx, "youtube.account_stats", trace.WithAttributes(
		attribute.String("account.id", accountID),
	))
	defer span.End()

	start := time.Now()
	stats, err := y.accountStats(ctx, accountID)
	y.observe(span, "channels", start, err)
	return stats, err
}

func (y *YouTube) accountStats(ctx context.Context, accountID string) (model.AccountStats, error) {
	if y.cfg.APIKey == "" {
		return model.AccountStats{}, nil
	}
	resp, err := y.statistics(ctx, "channels", accountID)
	if y.quotaFallback(err) {
		y.logger.Warn("api quota exceeded, using zero account stats", "account", accountID, "err", err)
		return model.AccountStats{}, nil
	}
	if err != nil || len(resp.Items) == 0 {
		return model.AccountStats{}, err
	}
	st := resp.Items[0].Statistics
	return model.AccountStats{
		Subscribers: int64(st.SubscriberCount),
		Views:       int64(st.ViewCount),
		Items:       int64(st.VideoCount),
	}, nil
}

// ItemStats returns view, like and comment counts, reporting false when the
// item is unknown.
func (y *YouTube) ItemStats(ctx context.Context, itemID string) (model.ItemStats, bool, error) {
	ctx, span := y.tracer.Start(ctx, "youtube.item_stats", trace.WithAttributes(
		attribute.String("item.id", itemID),
	))
	defer span.End()

	start := time.Now()
	stats, ok, err := y.itemStats(ctx, itemID)
	y.observe(span, "videos", start, err)
	span.SetAttributes(attribute.Bool("item.found", ok))
	return stats, ok, err
}

func (y *YouTube) itemStats(ctx context.Context, itemID string) (model.ItemStats, bool, error) {
	if y.cfg.APIKey == "" {
		return y.scrapedStats(itemID)
	}
	resp, err := y.statistics(ctx, "videos", itemID)
	if y.quotaFallback(err) {
		y.logger.Warn("api quota exceeded, using scraped view count", "item", itemID, "err", err)
		return y.scrapedStats(itemID)
	}
	if err != nil {
		return model.ItemStats{}, false, err
	}
	if len(resp.Items) == 0 {
		return model.ItemStats{}, false, nil
	}
	st := resp.Items[0].Statistics
	return model.ItemStats{
		Views:    int64(st.ViewCount),
		Likes:    int64(st.LikeCount),
		Comments: int64(st.CommentCount),
	}, true, nil
}

// scrapedStats returns the view count captured from a result page.
func (y *YouTube) scrapedStats(itemID string) (model.ItemStats, bool, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	views, ok := y.views[itemID]
	return model.ItemStats{Views: views}, ok, nil
}

func (y *YouTube) quotaFallback(err error) bool {
	return err != nil && y.cfg.HTMLFallback && errors.Is(err, ErrQuotaExceeded)
}

func (y *YouTube) statistics(ctx context.Context, endpoint, id string) (*statisticsListResponse, error) {
	params := url.Values{
		"part": {"statistics"},
		"id":   {id},
	}
	var resp statisticsListResponse
	if err := y.fetcher.FetchJSON(ctx, y.apiURL(endpoint, params), &resp); err != nil {
		return nil, classify(err)
	}
	return &resp, nil
}

func (y *YouTube) apiURL(endpoint string, params url.Values) string {
	params.Set("key", y.cfg.APIKey)
	return y.cfg.APIBase + "/" + endpoint + "?" + params.Encode()
}

func (y *YouTube) observe(span trace.Span, endpoint string, start time.Time, err error) {
	metrics.RecordProviderCall(endpoint, outcome(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return 5
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}
