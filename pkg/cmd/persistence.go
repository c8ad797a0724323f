// Package cmd wires shared infrastructure for the binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/persistence/memory"
	"github.com/glowdesk/reflow/pkg/persistence/postgresql"
)

// NewPersistence picks the store implementation from the database URL
// scheme. An empty URL or "memory://" selects the in-memory store, which
// loses everything on restart and exists for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case databaseURL == "" || strings.HasPrefix(databaseURL, "memory://"):
		logger.Warn("Using in-memory persistence, data is not durable")

		return memory.NewPersistence(), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", databaseURL)
	}
}
