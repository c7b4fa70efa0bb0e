package serp

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

const resultsPage = `<!DOCTYPE html><html><head><title>hfy - YouTube</title>
<script nonce="x">var ytcfg = {"brace": "}"};</script>
<script nonce="y">var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[
 {"videoRenderer":{"videoId":"s1","title":{"runs":[{"text":"HFY: The \"Deathworlder\" {Part 1}"}]},
   "ownerText":{"runs":[{"text":"Alpha","navigationEndpoint":{"browseEndpoint":{"browseId":"UC1"}}}]},
   "descriptionSnippet":{"runs":[{"text":"Humans "},{"text":"are space orcs"}]},
   "viewCountText":{"simpleText":"1,234 views"}}},
 {"adSlotRenderer":{"videoRenderer":{"videoId":""}}},
 {"videoRenderer":{"videoId":"s2","title":{"runs":[{"text":"HFY War"}]},
   "ownerText":{"runs":[{"text":"Beta","navigationEndpoint":{"browseEndpoint":{"browseId":"UC2"}}}]},
   "viewCountText":{"simpleText":"No views"}}},
 {"videoRenderer":{"videoId":"s3","title":{"runs":[{"text":"Anonymous"}]}}}
]}}]}}}}};</script>
</head><body></body></html>`

const channelVideosPage = `<html><head><script>window["ytInitialData"] = {"contents":{"richGridRenderer":{"contents":[
 {"richItemRenderer":{"content":{"videoRenderer":{"videoId":"c1","title":{"runs":[{"text":"Newest upload"}]},"viewCountText":{"simpleText":"900 views"}}}}},
 {"richItemRenderer":{"content":{"videoRenderer":{"videoId":"c2","title":{"runs":[{"text":"Second upload"}]},"viewCountText":{"simpleText":"100 views"}}}}},
 {"richItemRenderer":{"content":{"videoRenderer":{"videoId":"c3","title":{"runs":[{"text":"Third upload"}]}}}}}
]}}};</script></head></html>`

const consentPage = `<html><body><form action="https://consent.youtube.com/save" method="POST"></form></body></html>`

func TestScrape_SearchAccounts(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/results"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sp") != "EgIQAQ==" {
			t.Errorf("expected videos-only filter, got %q", r.URL.Query().Get("sp"))
		}
		_, _ = w.Write([]byte(resultsPage))
	}
	y := newTestYouTube(t, YouTubeConfig{WebBase: ts.URL, HTMLFallback: true})

	hits, err := y.Search(context.Background(), Query{Text: "hfy", Mode: ModeAccount, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits with owners, got %+v", hits)
	}
	if hits[0].ItemID != "s1" || hits[0].AccountID != "UC1" || hits[0].AccountTitle != "Alpha" {
		t.Errorf("unexpected first hit %+v", hits[0])
	}
	if hits[0].Title != `HFY: The "Deathworlder" {Part 1}` {
		t.Errorf("unexpected title %q", hits[0].Title)
	}
	if hits[0].Description != "Humans are space orcs" {
		t.Errorf("unexpected description %q", hits[0].Description)
	}

	ctx := context.Background()
	st, ok, err := y.ItemStats(ctx, "s1")
	if err != nil || !ok || st.Views != 1234 {
		t.Errorf("expected cached views 1234, got %+v ok=%v err=%v", st, ok, err)
	}
	st, ok, _ = y.ItemStats(ctx, "s2")
	if !ok || st.Views != 0 {
		t.Errorf("expected zero views for s2, got %+v ok=%v", st, ok)
	}
	if _, ok, _ := y.ItemStats(ctx, "unseen"); ok {
		t.Error("unseen item should not have stats")
	}
	if acc, err := y.AccountStats(ctx, "UC1"); err != nil || acc.Subscribers != 0 {
		t.Errorf("fallback account stats should be zero, got %+v %v", acc, err)
	}
}

func TestScrape_SearchItems(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/channel/UC9/videos"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(channelVideosPage))
	}
	y := newTestYouTube(t, YouTubeConfig{WebBase: ts.URL, HTMLFallback: true})

	hits, err := y.Search(context.Background(), Query{AccountID: "UC9", Mode: ModeItem, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 || hits[0].ItemID != "c1" || hits[1].ItemID != "c2" {
		t.Fatalf("expected first two uploads in page order, got %+v", hits)
	}
	for _, h := range hits {
		if h.AccountID != "UC9" {
			t.Errorf("expected account id carried over, got %+v", h)
		}
	}
}

func TestScrape_Blocked(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/results"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(consentPage))
	}
	y := newTestYouTube(t, YouTubeConfig{WebBase: ts.URL, HTMLFallback: true})

	_, err := y.Search(context.Background(), Query{Text: "hfy", Mode: ModeAccount, Limit: 5})
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}
}

func TestScrape_RobotsDisallow(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/robots.txt"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /results\n"))
	}
	api.handlers["/results"] = func(w http.ResponseWriter, r *http.Request) {
		t.Error("results page fetched despite robots.txt")
	}
	y := newTestYouTube(t, YouTubeConfig{WebBase: ts.URL, HTMLFallback: true, RespectRobots: true})

	_, err := y.Search(context.Background(), Query{Text: "hfy", Mode: ModeAccount, Limit: 5})
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}
}

func TestScrape_MissingInitialData(t *testing.T) {
	api, ts := newFakeAPI(t)
	api.handlers["/results"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><script>var somethingElse = {};</script></html>`))
	}
	y := newTestYouTube(t, YouTubeConfig{WebBase: ts.URL, HTMLFallback: true})

	_, err := y.Search(context.Background(), Query{Text: "hfy", Mode: ModeAccount, Limit: 5})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1};var x = 2;`, `{"a":1}`},
		{`{"a":"}"}, trailing`, `{"a":"}"}`},
		{`{"a":"\"}"}`, `{"a":"\"}"}`},
		{`{"a":"\\"}rest`, `{"a":"\\"}`},
		{`{"a":{"b":[{}]}}x`, `{"a":{"b":[{}]}}`},
		{`{"unterminated":`, ``},
		{`[1,2]`, ``},
		{``, ``},
	}
	for _, tt := range tests {
		if got := string(extractJSON([]byte(tt.in))); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseViews(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"1,234 views", 1234, true},
		{"987 views", 987, true},
		{"No views", 0, true},
		{"1.2M views", 1200000, true},
		{"12K views", 12000, true},
		{"3.4k views", 3400, true},
		{"1B views", 1000000000, true},
		{"1.234 views", 1234, true},
		{"5 views and counting", 5, true},
		{"1 234 567 views", 1234567, true},
		{"", 0, false},
		{"views", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseViews(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseViews(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
