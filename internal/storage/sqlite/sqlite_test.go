package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/nichescout/internal/storage"
	"github.com/FranksOps/nichescout/internal/storage/storagetest"
)

func TestSQLiteBackend(t *testing.T) {
	// Use an in-memory database for testing
	dsn := "file::memory:?cache=shared"
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	if err := b.Save(ctx, storagetest.Report("run1", now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("Failed to save run1: %v", err)
	}
	if err := b.Save(ctx, storagetest.Report("run2", now)); err != nil {
		t.Fatalf("Failed to save run2: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{RunID: "run2"})
	if err != nil {
		t.Fatalf("Failed to query results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	got := results[0]
	if got.ID != "run2:UCa" || got.Rank != 1 {
		t.Errorf("Expected run2:UCa ranked first, got %s (rank %d)", got.ID, got.Rank)
	}
	if got.Title != "Stellar, \"Tales\"" {
		t.Errorf("Unexpected title %q", got.Title)
	}
	if got.Subscribers != 1500 || got.TotalViews != 90000 || got.TotalItems != 40 {
		t.Errorf("Unexpected stats: %+v", got)
	}
	if got.Status != "ok" || got.ItemCount != 3 || got.OutlierCount != 1 {
		t.Errorf("Unexpected summary fields: %+v", got)
	}
	if got.MeanViews != 1333.33 || got.OutlierThreshold != 2000 {
		t.Errorf("Unexpected float fields: %+v", got)
	}
	if got.TopBigram != "space orcs" {
		t.Errorf("Expected top bigram 'space orcs', got %q", got.TopBigram)
	}
	if !got.CapturedAt.Equal(now) {
		t.Errorf("Expected CapturedAt %v, got %v", now, got.CapturedAt)
	}
	if results[1].TopBigram != "" || results[1].Status != "no_items" {
		t.Errorf("Unexpected second snapshot: %+v", results[1])
	}

	// Test Since filter
	past := now.Add(-1 * time.Hour)
	resultsSince, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query results with Since: %v", err)
	}
	if len(resultsSince) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsSince))
	}

	// Test AccountID filter with ordering and paging
	history, err := b.Query(ctx, storage.Filter{AccountID: "UCa"})
	if err != nil {
		t.Fatalf("Failed to query account history: %v", err)
	}
	if len(history) != 2 || history[0].RunID != "run2" || history[1].RunID != "run1" {
		t.Fatalf("Expected newest first history, got %+v", history)
	}

	offset, err := b.Query(ctx, storage.Filter{Offset: 3})
	if err != nil {
		t.Fatalf("Failed to query with offset only: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "run1:UCb" {
		t.Fatalf("Expected run1:UCb at offset 3, got %+v", offset)
	}

	limited, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run2:UCa" {
		t.Fatalf("Expected run2:UCa with limit 1, got %+v", limited)
	}

	// Saving the same run again replaces its rows.
	if err := b.Save(ctx, storagetest.Report("run2", now)); err != nil {
		t.Fatalf("Failed to re-save run2: %v", err)
	}
	again, err := b.Query(ctx, storage.Filter{RunID: "run2"})
	if err != nil {
		t.Fatalf("Failed to query after re-save: %v", err)
	}
	if len(again) != 2 {
		t.Errorf("Expected re-save to replace rows, got %d", len(again))
	}
}
