package engine

import (
	"context"
	"fmt"

	"github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
)

// Migrate copies every scheme from src into dst and returns the number
// copied. Records are replayed oldest first so dst keeps their relative
// listing order. dst assigns new ids and timestamps.
// This works for:
// - Embedded -> Remote (pushing a local data directory to a server)
// - Remote -> Embedded (taking an offline copy)
// - between any two configured backends
func Migrate(ctx context.Context, src, dst engine.Store) (int, error) {
	list, err := src.FindMany(ctx, schema.Filter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list schemes: %w", err)
	}

	copied := 0
	for i := len(list) - 1; i >= 0; i-- {
		s := list[i]
		if _, err := dst.Create(ctx, s.Input()); err != nil {
			return copied, fmt.Errorf("failed to copy scheme %s: %w", s.ID.Hex(), err)
		}
		copied++
	}
	return copied, nil
}
