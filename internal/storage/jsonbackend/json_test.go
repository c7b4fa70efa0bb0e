package jsonbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/storage"
	"github.com/FranksOps/nichescout/internal/storage/storagetest"
)

func TestJSONBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "nichescout.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	if err := b.Save(ctx, storagetest.Report("run1", now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("Failed to save run1: %v", err)
	}
	if err := b.Save(ctx, storagetest.Report("run2", now.Add(-1*time.Hour))); err != nil {
		t.Fatalf("Failed to save run2: %v", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 4 {
		t.Errorf("Expected 4 NDJSON lines, got %d", lines)
	}

	// Test RunID Filter
	byRun, err := b.Query(ctx, storage.Filter{RunID: "run1"})
	if err != nil {
		t.Fatalf("Failed to query by run: %v", err)
	}
	if len(byRun) != 2 || byRun[0].AccountID != "UCa" {
		t.Fatalf("Expected run1 snapshots in rank order, got %+v", byRun)
	}

	// Test Since Filter
	past := now.Add(-90 * time.Minute)
	since, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(since) != 2 || since[0].RunID != "run2" {
		t.Fatalf("Expected only run2 snapshots, got %+v", since)
	}

	// Test offset
	offset, err := b.Query(ctx, storage.Filter{Offset: 3})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "run1:UCb" {
		t.Errorf("Expected run1:UCb at offset 3, got %+v", offset)
	}
}

func TestJSONBackend_EmptyReport(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "nichescout.jsonl")
	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := b.Save(ctx, &model.Report{RunID: "empty"}); err != nil {
		t.Fatalf("Failed to save empty report: %v", err)
	}
	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no snapshots, got %d", len(all))
	}
}
