package serp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/scraper"
)

const searchByKeyword = `{
  "kind": "youtube#searchListResponse",
  "items": [
    {"id": {"kind": "youtube#video", "videoId": "v1"},
     "snippet": {"channelId": "UC1", "channelTitle": "Alpha &amp; Co", "title": "HFY Story &#39;One&#39;", "publishedAt": "2024-03-01T10:00:00Z"}},
    {"id": {"kind": "youtube#video", "videoId": "v2"},
     "snippet": {"channelId": "", "channelTitle": "Nobody", "title": "orphan"}},
    {"id": {"kind": "youtube#video", "videoId": "v3"},
     "snippet": {"channelId": "UC2", "channelTitle": "Beta", "title": "HFY War"}}
  ]
}`

const searchByChannel = `{
  "items": [
    {"id": {"kind": "youtube#video", "videoId": "v10"},
     "snippet": {"channelId": "UC1", "title": "Newest", "description": "Latest HFY upload.", "publishedAt": "2024-03-05T08:30:00Z"}},
    {"id": {"kind": "youtube#playlist", "playlistId": "PL1"},
     "snippet": {"channelId": "UC1", "title": "A playlist"}},
    {"id": {"kind": "youtube#video", "videoId": "v11"},
     "snippet": {"channelId": "UC1", "title": "Older", "publishedAt": "not-a-date"}}
  ]
}`

type fakeAPI struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc
	requests []*http.Request
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{t: t, handlers: map[string]http.HandlerFunc{}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r)
		h, ok := f.handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return f, ts
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestYouTube(t *testing.T, cfg YouTubeConfig) *YouTube {
	t.Helper()
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{Timeout: 5 * time.Second, MaxRedirects: 5})
	if err != nil {
		t.Fatalf("fetcher: %v", err)
	}
	y, err := NewYouTube(cfg, fetcher, nil)
	if err != nil {
		t.Fatalf("NewYouTube: %v", err)
	}
	return y
}

func TestNewYouTube_RequiresKeyOrFallback(t *testing.T) {
	fetcher, _ := scraper.NewFetcher(scraper.FetchConfig{})
	if _, err := NewYouTube(YouTubeConfig{}, fetcher, nil); err == nil {
		t.Error("expected error without key and fallback")
	}
	if _, err := NewYouTube(YouTubeConfig{APIKey: "k"}, nil, nil); err == nil {
		t.Error("expected error without fetcher")
	}
	if _, err := NewYouTube(YouTubeConfig{HTMLFallback: true}, fetcher, nil); err != nil {
		t.Errorf("fallback-only adapter should be valid: %v", err)
	}
}

func TestYouTube_SearchAccounts(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/search"] = jsonHandler(http.StatusOK, searchByKeyword)
	y := newTestYouTube(t, YouTubeConfig{APIKey: "test-key", APIBase: ts.URL})

	hits, err := y.Search(context.Background(), Query{Text: "hfy stories", Mode: ModeAccount, Limit: 80})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits (orphan skipped), got %d: %+v", len(hits), hits)
	}
	if hits[0].AccountID != "UC1" || hits[0].AccountTitle != "Alpha & Co" || hits[0].ItemID != "v1" {
		t.Errorf("unexpected first hit: %+v", hits[0])
	}
	if hits[0].Title != "HFY Story 'One'" {
		t.Errorf("expected unescaped title, got %q", hits[0].Title)
	}
	if !hits[0].PublishedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected publish time %v", hits[0].PublishedAt)
	}
	if s := hits[1].Sighting(); s.AccountID != "UC2" || s.Title != "Beta" {
		t.Errorf("unexpected sighting %+v", s)
	}

	q := api.requests[0].URL.Query()
	if q.Get("q") != "hfy stories" || q.Get("type") != "video" || q.Get("part") != "snippet" {
		t.Errorf("unexpected search params: %v", q)
	}
	if q.Get("maxResults") != "50" {
		t.Errorf("expected maxResults clamped to 50, got %s", q.Get("maxResults"))
	}
	if q.Get("key") != "test-key" {
		t.Errorf("expected api key, got %q", q.Get("key"))
	}
}

func TestYouTube_SearchItems(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/search"] = jsonHandler(http.StatusOK, searchByChannel)
	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: ts.URL})

	hits, err := y.Search(context.Background(), Query{AccountID: "UC1", Mode: ModeItem, Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected playlist filtered out, got %+v", hits)
	}
	item := hits[0].Item()
	if item.ItemID != "v10" || item.Description != "Latest HFY upload." {
		t.Errorf("unexpected item %+v", item)
	}
	if !hits[1].PublishedAt.IsZero() {
		t.Errorf("unparsable date should be zero, got %v", hits[1].PublishedAt)
	}

	q := api.requests[0].URL.Query()
	if q.Get("channelId") != "UC1" || q.Get("order") != "date" || q.Get("maxResults") != "5" {
		t.Errorf("unexpected item search params: %v", q)
	}
	if q.Get("q") != "" {
		t.Errorf("item search should not send q, got %q", q.Get("q"))
	}
}

func TestYouTube_SearchValidation(t *testing.T) {
	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: "http://127.0.0.1:1"})
	ctx := context.Background()

	if _, err := y.Search(ctx, Query{Mode: ModeAccount, Text: "  "}); err == nil {
		t.Error("expected error for empty account search")
	}
	if _, err := y.Search(ctx, Query{Mode: ModeItem}); err == nil {
		t.Error("expected error for item search without account")
	}
	if _, err := y.Search(ctx, Query{Mode: Mode(9), Text: "x"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestYouTube_AccountStats(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/channels"] = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "UC1":
			_, _ = w.Write([]byte(`{"items":[{"id":"UC1","statistics":{"viewCount":"123456","subscriberCount":"7890","videoCount":"42"}}]}`))
		case "UC-hidden":
			_, _ = w.Write([]byte(`{"items":[{"id":"UC-hidden","statistics":{"viewCount":"10","hiddenSubscriberCount":true,"videoCount":"1"}}]}`))
		default:
			_, _ = w.Write([]byte(`{"items":[]}`))
		}
	}
	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: ts.URL})
	ctx := context.Background()

	st, err := y.AccountStats(ctx, "UC1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Subscribers != 7890 || st.Views != 123456 || st.Items != 42 {
		t.Errorf("unexpected stats %+v", st)
	}

	st, err = y.AccountStats(ctx, "UC-hidden")
	if err != nil || st.Subscribers != 0 || st.Views != 10 {
		t.Errorf("hidden subscribers should read as zero, got %+v, %v", st, err)
	}

	st, err = y.AccountStats(ctx, "UC-missing")
	if err != nil || st.Subscribers != 0 || st.Views != 0 || st.Items != 0 {
		t.Errorf("unknown account should yield zero stats, got %+v, %v", st, err)
	}

	if q := api.requests[0].URL.Query(); q.Get("part") != "statistics" {
		t.Errorf("expected statistics part, got %v", q)
	}
}

func TestYouTube_ItemStats(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "v1":
			_, _ = w.Write([]byte(`{"items":[{"id":"v1","statistics":{"viewCount":"300","likeCount":"30"}}]}`))
		case "vbad":
			_, _ = w.Write([]byte(`{"items":[{"id":"vbad","statistics":{"viewCount":"lots"}}]}`))
		default:
			_, _ = w.Write([]byte(`{"items":[]}`))
		}
	}
	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: ts.URL})
	ctx := context.Background()

	st, ok, err := y.ItemStats(ctx, "v1")
	if err != nil || !ok {
		t.Fatalf("expected stats, got ok=%v err=%v", ok, err)
	}
	if st.Views != 300 || st.Likes != 30 || st.Comments != 0 {
		t.Errorf("unexpected stats %+v", st)
	}

	if _, ok, err := y.ItemStats(ctx, "v-missing"); ok || err != nil {
		t.Errorf("missing item should report false without error, got ok=%v err=%v", ok, err)
	}

	if _, _, err := y.ItemStats(ctx, "vbad"); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestYouTube_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"quota", http.StatusForbidden, `{"error":{"code":403,"errors":[{"reason":"quotaExceeded"}]}}`, ErrQuotaExceeded},
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrQuotaExceeded},
		{"forbidden other", http.StatusForbidden, `{"error":{"code":403,"errors":[{"reason":"forbidden"}]}}`, ErrUnavailable},
		{"bad key", http.StatusBadRequest, `{"error":{"code":400,"errors":[{"reason":"keyInvalid"}]}}`, ErrUnavailable},
		{"server error", http.StatusInternalServerError, `oops`, ErrUnavailable},
		{"garbage", http.StatusOK, `<html>`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, ts := newFakeAPI(t)
			api.handlers["/search"] = jsonHandler(tt.status, tt.body)
			y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: ts.URL})

			_, err := y.Search(context.Background(), Query{Text: "hfy", Mode: ModeAccount, Limit: 5})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestYouTube_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: base})
	_, err := y.AccountStats(context.Background(), "UC1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestYouTube_Cancelled(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/search"] = jsonHandler(http.StatusOK, searchByKeyword)
	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: ts.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := y.Search(ctx, Query{Text: "hfy", Mode: ModeAccount, Limit: 5})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("cancellation should not be classified as a provider failure")
	}
}

func TestYouTube_QuotaFallsBackToHTML(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/youtube/v3/search"] = jsonHandler(http.StatusForbidden, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`)
	api.handlers["/results"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(resultsPage))
	}
	y := newTestYouTube(t, YouTubeConfig{
		APIKey:       "k",
		APIBase:      ts.URL + "/youtube/v3",
		WebBase:      ts.URL,
		HTMLFallback: true,
	})

	hits, err := y.Search(context.Background(), Query{Text: "hfy", Mode: ModeAccount, Limit: 5})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 fallback hits, got %+v", hits)
	}
	if !strings.Contains(api.requests[1].URL.RawQuery, "search_query=hfy") {
		t.Errorf("expected results page request, got %s", api.requests[1].URL)
	}
}

func TestYouTube_QuotaFallsBackToScrapedStats(t *testing.T) {
	quota := jsonHandler(http.StatusForbidden, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`)
	api, ts := newFakeAPI(t)
	api.handlers["/youtube/v3/search"] = quota
	api.handlers["/youtube/v3/videos"] = quota
	api.handlers["/youtube/v3/channels"] = quota
	api.handlers["/channel/UC9/videos"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(channelVideosPage))
	}
	y := newTestYouTube(t, YouTubeConfig{
		APIKey:       "k",
		APIBase:      ts.URL + "/youtube/v3",
		WebBase:      ts.URL,
		HTMLFallback: true,
	})
	ctx := context.Background()

	hits, err := y.Search(ctx, Query{AccountID: "UC9", Mode: ModeItem, Limit: 5})
	if err != nil {
		t.Fatalf("expected fallback search to succeed, got %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 uploads from the channel page, got %+v", hits)
	}

	tests := []struct {
		id     string
		views  int64
		wantOK bool
	}{
		{"c1", 900, true},
		{"c2", 100, true},
		{"c3", 0, false},
	}
	for _, tt := range tests {
		st, ok, err := y.ItemStats(ctx, tt.id)
		if err != nil {
			t.Errorf("ItemStats(%s): unexpected error %v", tt.id, err)
		}
		if ok != tt.wantOK || st.Views != tt.views {
			t.Errorf("ItemStats(%s) = %+v ok=%v, want views %d ok=%v", tt.id, st, ok, tt.views, tt.wantOK)
		}
	}

	acc, err := y.AccountStats(ctx, "UC9")
	if err != nil {
		t.Fatalf("expected zero account stats under quota, got %v", err)
	}
	if acc != (model.AccountStats{}) {
		t.Errorf("expected zero account stats, got %+v", acc)
	}
}

func TestYouTube_QuotaWithoutFallback(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/youtube/v3/videos"] = jsonHandler(http.StatusForbidden, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`)
	y := newTestYouTube(t, YouTubeConfig{APIKey: "k", APIBase: ts.URL + "/youtube/v3"})

	if _, _, err := y.ItemStats(context.Background(), "v1"); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded without fallback, got %v", err)
	}
}
