// Package registry deduplicates account sightings gathered across keyword
// searches into one record per account.
package registry

import "github.com/FranksOps/nichescout/internal/model"

// Registry maps account IDs to records and remembers registration order.
// It is owned by a single pipeline run and is not safe for concurrent use.
type Registry struct {
	order   []string
	records map[string]*model.AccountRecord
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]*model.AccountRecord)}
}

// Register inserts the sighting's account if it is not known yet and reports
// whether it was new. The title of the first sighting is kept.
func (r *Registry) Register(s model.AccountSighting) bool {
	if s.AccountID == "" {
		return false
	}
	if _, ok := r.records[s.AccountID]; ok {
		return false
	}
	title := s.Title
	if title == "" {
		title = model.UnknownTitle
	}
	r.order = append(r.order, s.AccountID)
	r.records[s.AccountID] = &model.AccountRecord{AccountID: s.AccountID, Title: title}
	return true
}

// Enrich overwrites the numeric fields of the account. An unknown id gets a
// minimal record instead of an error so that one stray stats response cannot
// fail the enrichment pass.
func (r *Registry) Enrich(id string, stats model.AccountStats) {
	rec, ok := r.records[id]
	if !ok {
		r.Register(model.AccountSighting{AccountID: id})
		rec, ok = r.records[id]
		if !ok {
			return
		}
	}
	rec.Subscribers = stats.Subscribers
	rec.TotalViews = stats.Views
	rec.TotalItems = stats.Items
}

// Len returns the number of distinct accounts.
func (r *Registry) Len() int { return len(r.order) }

// IDs returns account IDs in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (model.AccountRecord, bool) {
	rec, ok := r.records[id]
	if !ok {
		return model.AccountRecord{}, false
	}
	return *rec, true
}

// Records returns copies of all records in registration order.
func (r *Registry) Records() []model.AccountRecord {
	out := make([]model.AccountRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id])
	}
	return out
}
