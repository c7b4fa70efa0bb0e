package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FranksOps/nichescout/internal/model"
)

// KeyFunc extracts the numeric ranking key from a record.
type KeyFunc func(model.AccountRecord) int64

// BySubscribers ranks by subscriber count.
func BySubscribers(r model.AccountRecord) int64 { return r.Subscribers }

// ByViews ranks by total view count.
func ByViews(r model.AccountRecord) int64 { return r.TotalViews }

// ByItems ranks by total published item count.
func ByItems(r model.AccountRecord) int64 { return r.TotalItems }

// KeyByName resolves a configured ranking key name.
func KeyByName(name string) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "subscribers":
		return BySubscribers, nil
	case "views":
		return ByViews, nil
	case "items", "videos":
		return ByItems, nil
	default:
		return nil, fmt.Errorf("unknown rank key %q", name)
	}
}

// TopK returns the k records with the largest key, descending. Equal keys
// keep their input order, so callers passing registration order get
// first-registered-first. k is clamped to [0, len(records)] and records is
// not modified.
func TopK(records []model.AccountRecord, key KeyFunc, k int) []model.AccountRecord {
	if k > len(records) {
		k = len(records)
	}
	if k <= 0 {
		return []model.AccountRecord{}
	}

	sorted := make([]model.AccountRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return key(sorted[i]) > key(sorted[j])
	})

	return sorted[:k:k]
}
