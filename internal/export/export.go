// Package export opens the configured snapshot backend.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/nichescout/internal/storage"
	"github.com/FranksOps/nichescout/internal/storage/csvbackend"
	"github.com/FranksOps/nichescout/internal/storage/jsonbackend"
	"github.com/FranksOps/nichescout/internal/storage/postgres"
	"github.com/FranksOps/nichescout/internal/storage/sqlite"
)

// Backend names a storage implementation.
type Backend string

const (
	None     Backend = "none"
	CSV      Backend = "csv"
	JSON     Backend = "json"
	SQLite   Backend = "sqlite"
	Postgres Backend = "postgres"
)

// ErrDisabled is returned by Open for the none backend.
var ErrDisabled = errors.New("export: disabled")

// ParseBackend validates a configured backend name. Empty selects None.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return None, nil
	case None, CSV, JSON, SQLite, Postgres:
		return b, nil
	default:
		return "", fmt.Errorf("unknown export backend %q", s)
	}
}

// DefaultTarget is the file used when a file backend has no target set.
// Postgres has no default DSN.
func DefaultTarget(b Backend) string {
	switch b {
	case CSV:
		return "nichescout.csv"
	case JSON:
		return "nichescout.jsonl"
	case SQLite:
		return "nichescout.db"
	default:
		return ""
	}
}

// Open returns the storage.Backend for b writing to target, a file path or
// a Postgres DSN.
func Open(ctx context.Context, b Backend, target string) (storage.Backend, error) {
	if target == "" {
		target = DefaultTarget(b)
	}
	switch b {
	case None, "":
		return nil, ErrDisabled
	case CSV:
		return csvbackend.New(target)
	case JSON:
		return jsonbackend.New(target)
	case SQLite:
		return sqlite.New(target)
	case Postgres:
		if target == "" {
			return nil, errors.New("export: postgres requires a DSN")
		}
		return postgres.New(ctx, target)
	default:
		return nil, fmt.Errorf("unknown export backend %q", b)
	}
}
