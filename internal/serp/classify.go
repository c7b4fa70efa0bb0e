package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/FranksOps/nichescout/internal/scraper"
	"github.com/FranksOps/nichescout/pkg/httpclient"
)

// errShape marks a decoded response whose structure is not what the adapter expects.
var errShape = errors.New("unexpected response shape")

// quotaReasons are the Google API error reasons that mean the key is spent.
var quotaReasons = map[string]bool{
	"quotaExceeded":           true,
	"dailyLimitExceeded":      true,
	"rateLimitExceeded":       true,
	"userRateLimitExceeded":   true,
	"dailyLimitExceededUnreg": true,
}

type googleError struct {
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// classify maps a transport or decode failure onto the provider error
// kinds. Context cancellation passes through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrBlocked) {
		return err
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		if isQuota(se) {
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if errors.Is(err, scraper.ErrDecode) || errors.Is(err, errShape) {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func isQuota(se *httpclient.StatusError) bool {
	if se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if se.StatusCode != http.StatusForbidden {
		return false
	}
	var ge googleError
	if err := json.Unmarshal(se.Body, &ge); err != nil {
		return false
	}
	if ge.Error.Status == "RESOURCE_EXHAUSTED" {
		return true
	}
	for _, e := range ge.Error.Errors {
		if quotaReasons[e.Reason] {
			return true
		}
	}
	return false
}

// outcome labels a provider call for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}
