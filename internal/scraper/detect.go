package scraper

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
)

// Detector examines a response and names the wall or challenge that blocked
// it, or returns "" when the response looks like real content.
type Detector func(res *Response) string

// Block sources reported by the default detectors.
const (
	SourceConsent   = "consent"
	SourceCaptcha   = "captcha"
	SourceRateLimit = "rate_limit"
)

// DefaultDetectors returns the detectors applied to every fetch.
func DefaultDetectors() []Detector {
	return []Detector{
		detectConsent,
		detectCaptcha,
		detectRateLimit,
	}
}

// Detect runs res through detectors and returns the first source reported.
func Detect(res *Response, detectors []Detector) string {
	if res == nil {
		return ""
	}
	for _, d := range detectors {
		if src := d(res); src != "" {
			return src
		}
	}
	return ""
}

// detectConsent spots the EU cookie consent interstitial, reached either
// by redirect or served inline.
func detectConsent(res *Response) string {
	if u, err := url.Parse(res.URL); err == nil {
		host := strings.ToLower(u.Hostname())
		if strings.HasPrefix(host, "consent.") {
			return SourceConsent
		}
	}
	if bytes.Contains(res.Body, []byte(`action="https://consent.youtube.com/`)) ||
		bytes.Contains(res.Body, []byte(`action="https://consent.google.com/`)) {
		return SourceConsent
	}
	return ""
}

// detectCaptcha spots the "unusual traffic" interstitial and reCAPTCHA walls.
func detectCaptcha(res *Response) string {
	if u, err := url.Parse(res.URL); err == nil && strings.HasPrefix(u.Path, "/sorry/") {
		return SourceCaptcha
	}
	if bytes.Contains(res.Body, []byte("Our systems have detected unusual traffic")) ||
		bytes.Contains(res.Body, []byte("www.google.com/recaptcha/api")) {
		return SourceCaptcha
	}
	return ""
}

func detectRateLimit(res *Response) string {
	if res.StatusCode == http.StatusTooManyRequests {
		return SourceRateLimit
	}
	return ""
}
