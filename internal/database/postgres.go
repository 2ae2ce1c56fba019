package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"tchudometro/internal/models"
)

// PostgresStore keeps one JSONB row per guild
type PostgresStore struct {
	db *DB
}

// NewPostgresStore creates a store on top of an open database
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load reads every guild row
func (s *PostgresStore) Load(ctx context.Context) (models.Guilds, error) {
	rows, err := s.db.conn.QueryContext(ctx, "SELECT guild_id, record FROM guild_records")
	if err != nil {
		return nil, fmt.Errorf("failed to query guild records: %w", err)
	}
	defer rows.Close()

	guilds := models.Guilds{}
	for rows.Next() {
		var (
			guildID string
			raw     []byte
		)
		if err := rows.Scan(&guildID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan guild record: %w", err)
		}
		record := models.NewGuildRecord()
		if err := json.Unmarshal(raw, record); err != nil {
			return nil, fmt.Errorf("failed to decode guild %s: %w", guildID, err)
		}
		if record.Users == nil {
			record.Users = make(map[string]*models.UserRecord)
		}
		guilds[guildID] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read guild records: %w", err)
	}
	return guilds, nil
}

// Save replaces all rows with the given dataset in one transaction
func (s *PostgresStore) Save(ctx context.Context, guilds models.Guilds) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(guilds))
	for guildID, record := range guilds {
		raw, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode guild %s: %w", guildID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO guild_records (guild_id, record, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (guild_id) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
			guildID, raw)
		if err != nil {
			return fmt.Errorf("failed to save guild %s: %w", guildID, err)
		}
		ids = append(ids, guildID)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM guild_records WHERE NOT (guild_id = ANY($1))", pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to prune guild records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit guild records: %w", err)
	}
	return nil
}
