package registry

import (
	"testing"

	"github.com/FranksOps/nichescout/internal/model"
)

func TestRegister_Idempotent(t *testing.T) {
	r := New()

	for i := 0; i < 5; i++ {
		title := "First Title"
		if i > 0 {
			title = "Later Title"
		}
		r.Register(model.AccountSighting{AccountID: "UC1", Title: title})
	}

	if r.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", r.Len())
	}

	rec, ok := r.Get("UC1")
	if !ok {
		t.Fatal("expected UC1 to be registered")
	}
	if rec.Title != "First Title" {
		t.Errorf("expected title from first sighting, got %q", rec.Title)
	}
}

func TestRegister_ReportsNew(t *testing.T) {
	r := New()
	if !r.Register(model.AccountSighting{AccountID: "UC1", Title: "a"}) {
		t.Error("first registration should report new")
	}
	if r.Register(model.AccountSighting{AccountID: "UC1", Title: "a"}) {
		t.Error("second registration should not report new")
	}
	if r.Register(model.AccountSighting{AccountID: "", Title: "no id"}) {
		t.Error("sighting without id should be ignored")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 record, got %d", r.Len())
	}
}

func TestRegister_UnknownTitle(t *testing.T) {
	r := New()
	r.Register(model.AccountSighting{AccountID: "UC1"})

	rec, _ := r.Get("UC1")
	if rec.Title != model.UnknownTitle {
		t.Errorf("expected %q, got %q", model.UnknownTitle, rec.Title)
	}
}

func TestEnrich_Overwrites(t *testing.T) {
	r := New()
	r.Register(model.AccountSighting{AccountID: "UC1", Title: "one"})

	r.Enrich("UC1", model.AccountStats{Subscribers: 10, Views: 20, Items: 3})
	r.Enrich("UC1", model.AccountStats{Subscribers: 7})

	rec, _ := r.Get("UC1")
	if rec.Subscribers != 7 || rec.TotalViews != 0 || rec.TotalItems != 0 {
		t.Errorf("expected overwritten stats {7 0 0}, got {%d %d %d}", rec.Subscribers, rec.TotalViews, rec.TotalItems)
	}
	if rec.Title != "one" {
		t.Errorf("enrich must not touch title, got %q", rec.Title)
	}
}

func TestEnrich_UnregisteredCreatesRecord(t *testing.T) {
	r := New()
	r.Enrich("UC9", model.AccountStats{Subscribers: 42})

	rec, ok := r.Get("UC9")
	if !ok {
		t.Fatal("expected minimal record for unregistered id")
	}
	if rec.Subscribers != 42 {
		t.Errorf("expected 42 subscribers, got %d", rec.Subscribers)
	}
	if rec.Title != model.UnknownTitle {
		t.Errorf("expected unknown title, got %q", rec.Title)
	}
}

func TestRecords_RegistrationOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b", "a"} {
		r.Register(model.AccountSighting{AccountID: id, Title: id})
	}

	recs := r.Records()
	want := []string{"c", "a", "b"}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(recs))
	}
	for i, id := range want {
		if recs[i].AccountID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, recs[i].AccountID)
		}
	}

	// Records hands out copies.
	recs[0].Subscribers = 99
	if rec, _ := r.Get("c"); rec.Subscribers != 0 {
		t.Error("mutating Records() result leaked into registry")
	}

	ids := r.IDs()
	ids[0] = "zzz"
	if r.IDs()[0] != "c" {
		t.Error("mutating IDs() result leaked into registry")
	}
}
