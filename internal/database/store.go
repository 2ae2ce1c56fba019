package database

import (
	"context"

	"tchudometro/internal/models"
)

// Store persists the whole guild dataset. Save always replaces everything
// previously stored; there are no partial updates.
type Store interface {
	// Load returns the stored dataset, or an empty one when nothing was saved yet.
	Load(ctx context.Context) (models.Guilds, error)
	// Save replaces the stored dataset with guilds.
	Save(ctx context.Context, guilds models.Guilds) error
}
