// Package serp adapts search providers to the discovery pipeline.
package serp

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
)

// Provider failures. The pipeline recovers from each of them locally.
var (
	// ErrUnavailable covers transport failures and unexpected statuses.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrMalformed means the response could not be decoded into the expected shape.
	ErrMalformed = errors.New("malformed provider response")
	// ErrQuotaExceeded means the API key ran out of daily quota.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrBlocked means a consent wall, captcha or bot challenge was served.
	ErrBlocked = errors.New("provider blocked the request")
)

// Mode selects what a Search returns.
type Mode int

const (
	// ModeAccount searches items by keyword; each hit names its account.
	ModeAccount Mode = iota
	// ModeItem lists the most recent items of Query.AccountID.
	ModeItem
)

func (m Mode) String() string {
	switch m {
	case ModeAccount:
		return "account"
	case ModeItem:
		return "item"
	default:
		return "unknown"
	}
}

// Query is one bounded search request.
type Query struct {
	Text      string
	AccountID string
	Mode      Mode
	Limit     int
}

// Hit is a single search result. ModeAccount hits always carry AccountID;
// ModeItem hits always carry ItemID.
type Hit struct {
	AccountID    string
	AccountTitle string
	ItemID       string
	Title        string
	Description  string
	PublishedAt  time.Time
}

// Sighting returns the account part of the hit.
func (h Hit) Sighting() model.AccountSighting {
	return model.AccountSighting{AccountID: h.AccountID, Title: h.AccountTitle}
}

// Item returns the item part of the hit.
func (h Hit) Item() model.Item {
	return model.Item{
		ItemID:      h.ItemID,
		Title:       h.Title,
		PublishedAt: h.PublishedAt,
		Description: h.Description,
	}
}

// Provider is the search and statistics source the pipeline drives.
type Provider interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
	AccountStats(ctx context.Context, accountID string) (model.AccountStats, error)
	// ItemStats reports false when the provider has no record of the item.
	ItemStats(ctx context.Context, itemID string) (model.ItemStats, bool, error)
}
