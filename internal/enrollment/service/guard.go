package service

import (
	"context"
	"fmt"
)

// handleGuard answers whether a handle is already enrolled. It only produces
// the fast rejection; the store's unique constraint is what holds under races.
type handleGuard struct {
	store Store
}

// Taken reports whether handle collides with an existing record, ignoring case.
func (g *handleGuard) Taken(ctx context.Context, handle string) (bool, error) {
	exists, err := g.store.HandleExists(ctx, handle)
	if err != nil {
		return false, fmt.Errorf("checking handle: %w", err)
	}
	return exists, nil
}
