package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/nichescout/internal/fingerprint"
	"github.com/FranksOps/nichescout/internal/metrics"
	"github.com/FranksOps/nichescout/pkg/httpclient"
	"github.com/FranksOps/nichescout/pkg/proxy"
	"github.com/FranksOps/nichescout/pkg/ratelimit"
	"github.com/FranksOps/nichescout/pkg/useragent"
)

// DefaultMaxBody caps how much of a response body is read.
const DefaultMaxBody = 8 << 20

// errSnippet bounds the body kept on a *httpclient.StatusError.
const errSnippet = 4096

// ErrDecode marks a 2xx body that could not be decoded.
var ErrDecode = errors.New("decode json")

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures the provider transport.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	MaxBody      int64
	// Headers are sent with every request, e.g. a consent cookie.
	Headers     map[string]string
	ProxyPool   *proxy.Pool
	UAPool      *useragent.Pool
	Fingerprint fingerprint.Profile
	Limiter     *ratelimit.Limiter
	// InsecureSkipVerify is only meant for tests against httptest TLS servers.
	InsecureSkipVerify bool
}

// Response is the outcome of a single fetch.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	// BlockedBy names the wall or challenge detected in the response, if any.
	BlockedBy string
}

// Blocked reports whether a consent wall, captcha or bot challenge was seen.
func (r *Response) Blocked() bool { return r.BlockedBy != "" }

// Fetcher performs rate-limited GETs through a fingerprinted transport,
// rotating User-Agents and proxies.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	detectors []Detector
}

// NewFetcher initializes a Fetcher. One client is held for its lifetime so
// connection pooling and the cookie jar persist across requests.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}

	// The proxy is chosen per request and carried in the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(fingerprint.Options{
		Profile:            cfg.Fingerprint,
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Headers:      cfg.Headers,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		detectors: DefaultDetectors(),
	}, nil
}

// Fetch executes a GET to targetURL. Any HTTP status is returned as a
// Response; only transport failures and cancellation produce an error.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, header http.Header) (*Response, error) {
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	host := req.URL.Hostname()

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		metrics.RecordFetch(host, 0, time.Since(start), 0)
		return nil, err
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBody))
	duration := time.Since(start)
	metrics.RecordFetch(host, resp.StatusCode, duration, len(body))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	res := &Response{
		URL:        httpclient.Redact(resp.Request.URL),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}
	if src := Detect(res, f.detectors); src != "" {
		res.BlockedBy = src
		metrics.BlockedTotal.WithLabelValues(src).Inc()
	}
	return res, nil
}

// FetchJSON fetches targetURL and decodes a 2xx JSON body into v. Other
// statuses yield a *httpclient.StatusError carrying the start of the body.
func (f *Fetcher) FetchJSON(ctx context.Context, targetURL string, v any) error {
	res, err := f.Fetch(ctx, targetURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// Err returns a *httpclient.StatusError for non-2xx responses.
func (r *Response) Err() error {
	if r.StatusCode >= 200 && r.StatusCode <= 299 {
		return nil
	}
	snippet := r.Body
	if len(snippet) > errSnippet {
		snippet = snippet[:errSnippet]
	}
	return &httpclient.StatusError{StatusCode: r.StatusCode, URL: r.URL, Body: snippet}
}
