package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const videosOnlyFilter = "EgIQAQ%3D%3D"

// initialDataMarkers precede the ytInitialData object in page scripts.
var initialDataMarkers = []string{
	"var ytInitialData = ",
	`window["ytInitialData"] = `,
}

// errEnoughRenderers stops the renderer walk once the limit is reached.
var errEnoughRenderers = errors.New("enough renderers")

type textRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text               string `json:"text"`
		NavigationEndpoint struct {
			BrowseEndpoint struct {
				BrowseID string `json:"browseId"`
			} `json:"browseEndpoint"`
		} `json:"navigationEndpoint"`
	} `json:"runs"`
}

func (t textRuns) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

func (t textRuns) browseID() string {
	for _, r := range t.Runs {
		if id := r.NavigationEndpoint.BrowseEndpoint.BrowseID; id != "" {
			return id
		}
	}
	return ""
}

type videoRenderer struct {
	VideoID            string   `json:"videoId"`
	Title              textRuns `json:"title"`
	OwnerText          textRuns `json:"ownerText"`
	LongBylineText     textRuns `json:"longBylineText"`
	DescriptionSnippet textRuns `json:"descriptionSnippet"`
	ViewCountText      textRuns `json:"viewCountText"`
}

func (v videoRenderer) owner() textRuns {
	if len(v.OwnerText.Runs) > 0 {
		return v.OwnerText
	}
	return v.LongBylineText
}

// scrapeSearch serves a Query from public result pages.
func (y *YouTube) scrapeSearch(ctx context.Context, q Query) ([]Hit, error) {
	var pageURL string
	if q.Mode == ModeAccount {
		pageURL = y.cfg.WebBase + "/results?search_query=" + url.QueryEscape(q.Text) + "&sp=" + videosOnlyFilter
	} else {
		pageURL = y.cfg.WebBase + "/channel/" + url.PathEscape(q.AccountID) + "/videos"
	}

	if y.robots != nil {
		allowed, err := y.robots.Allowed(ctx, pageURL, y.cfg.RobotsAgent)
		if err != nil {
			return nil, classify(err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s disallowed by robots.txt", ErrBlocked, pageURL)
		}
	}

	res, err := y.fetcher.Fetch(ctx, pageURL, http.Header{
		"Accept": {"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"},
	})
	if err != nil {
		return nil, classify(err)
	}
	if res.Blocked() {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, res.BlockedBy)
	}
	if err := res.Err(); err != nil {
		return nil, classify(err)
	}

	data, err := initialData(res.Body)
	if err != nil {
		return nil, classify(err)
	}
	renderers, err := videoRenderers(data, pageSize(q.Limit))
	if err != nil {
		return nil, classify(err)
	}

	hits := make([]Hit, 0, len(renderers))
	y.mu.Lock()
	defer y.mu.Unlock()
	for _, vr := range renderers {
		hit := Hit{
			ItemID:      vr.VideoID,
			Title:       vr.Title.String(),
			Description: vr.DescriptionSnippet.String(),
		}
		if q.Mode == ModeAccount {
			owner := vr.owner()
			hit.AccountID = owner.browseID()
			hit.AccountTitle = owner.String()
			if hit.AccountID == "" {
				continue
			}
		} else {
			hit.AccountID = q.AccountID
		}
		if views, ok := parseViews(vr.ViewCountText.String()); ok {
			y.views[vr.VideoID] = views
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// initialData locates the ytInitialData object among the page's scripts.
func initialData(body []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", errShape, err)
	}

	var data []byte
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, marker := range initialDataMarkers {
			idx := strings.Index(text, marker)
			if idx < 0 {
				continue
			}
			data = extractJSON([]byte(text[idx+len(marker):]))
			if data != nil {
				return false
			}
		}
		return true
	})
	if data == nil {
		return nil, fmt.Errorf("%w: ytInitialData not found", errShape)
	}
	return data, nil
}

// extractJSON returns the JSON object starting at b[0], tracking brace depth
// outside string literals.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// videoRenderers collects videoRenderer objects in document order, stopping
// after limit entries.
func videoRenderers(data []byte, limit int) ([]videoRenderer, error) {
	w := &rendererWalker{dec: json.NewDecoder(bytes.NewReader(data)), limit: limit}
	if err := w.value(); err != nil && !errors.Is(err, errEnoughRenderers) {
		return nil, fmt.Errorf("%w: walk ytInitialData: %w", errShape, err)
	}
	return w.out, nil
}

type rendererWalker struct {
	dec   *json.Decoder
	limit int
	out   []videoRenderer
}

func (w *rendererWalker) value() error {
	tok, err := w.dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch delim {
	case '{':
		for w.dec.More() {
			keyTok, err := w.dec.Token()
			if err != nil {
				return err
			}
			if key, _ := keyTok.(string); key == "videoRenderer" {
				var vr videoRenderer
				if err := w.dec.Decode(&vr); err != nil {
					return err
				}
				if vr.VideoID != "" {
					w.out = append(w.out, vr)
					if len(w.out) >= w.limit {
						return errEnoughRenderers
					}
				}
				continue
			}
			if err := w.value(); err != nil {
				return err
			}
		}
	case '[':
		for w.dec.More() {
			if err := w.value(); err != nil {
				return err
			}
		}
	}
	_, err = w.dec.Token()
	return err
}

// parseViews reads "1,234 views" style text. "No views" is zero. An
// abbreviated count such as "1.2M views" is scaled by its K, M or B suffix.
func parseViews(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(s), "no views") {
		return 0, true
	}
	var num strings.Builder
	digits := 0
	rest := ""
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num.WriteRune(r)
			digits++
		case r == '.' && digits > 0:
			num.WriteRune(r)
		case r == '.' || r == ',' || r == ' ' || r == '\u00a0':
		default:
			if digits > 0 {
				rest = s[i:]
			}
		}
		if rest != "" {
			break
		}
	}
	if digits == 0 {
		return 0, false
	}

	mult := viewsMultiplier(rest)
	if mult == 1 {
		n, err := strconv.ParseInt(strings.ReplaceAll(num.String(), ".", ""), 10, 64)
		return n, err == nil
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * float64(mult))), true
}

// viewsMultiplier reads a single-letter magnitude suffix at the start of rest.
func viewsMultiplier(rest string) int64 {
	r, size := utf8.DecodeRuneInString(rest)
	if next, _ := utf8.DecodeRuneInString(rest[size:]); unicode.IsLetter(next) {
		return 1
	}
	switch unicode.ToUpper(r) {
	case 'K':
		return 1_000
	case 'M':
		return 1_000_000
	case 'B':
		return 1_000_000_000
	}
	return 1
}
