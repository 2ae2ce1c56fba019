package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"tchudometro/internal/models"
)

// ErrUnchanged can be returned by an update function to skip the save
var ErrUnchanged = errors.New("record unchanged")

// Repository owns the in-memory guild state and keeps it in sync with a Store.
// Every mutation is applied to a copy, the whole dataset is saved, and only
// then does the copy replace the in-memory state.
type Repository struct {
	mu     sync.Mutex
	store  Store
	guilds models.Guilds
	logger zerolog.Logger
}

// NewRepository loads the dataset from store
func NewRepository(ctx context.Context, store Store, logger zerolog.Logger) (*Repository, error) {
	guilds, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load guilds: %w", err)
	}
	logger.Info().Int("guilds", len(guilds)).Msg("guild state loaded")

	return &Repository{
		store:  store,
		guilds: guilds,
		logger: logger,
	}, nil
}

// Update runs fn against a copy of the guild record, creating it if needed,
// and persists the result. Updates are serialized; fn returning ErrUnchanged
// leaves both memory and store untouched.
func (r *Repository) Update(ctx context.Context, guildID string, fn func(g *models.GuildRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.guilds.Clone()
	g, ok := next[guildID]
	if !ok {
		g = models.NewGuildRecord()
		next[guildID] = g
	}

	if err := fn(g); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}

	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to save guild %s: %w", guildID, err)
	}
	r.guilds = next
	return nil
}

// Guild returns a copy of the guild record
func (r *Repository) Guild(guildID string) (*models.GuildRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.guilds[guildID]
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

// GuildIDs returns the IDs of every known guild
func (r *Repository) GuildIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.guilds))
	for id := range r.guilds {
		ids = append(ids, id)
	}
	return ids
}

// Flush saves the current state, used on shutdown
func (r *Repository) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Save(ctx, r.guilds); err != nil {
		return fmt.Errorf("failed to flush guilds: %w", err)
	}
	r.logger.Debug().Int("guilds", len(r.guilds)).Msg("guild state flushed")
	return nil
}
