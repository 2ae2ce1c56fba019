// Package tracker turns voice join/leave events into call time, XP and levels.
package tracker

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tchudometro/internal/database"
	"tchudometro/internal/models"
)

const (
	// XPBlock is the length of call time that earns one XP reward
	XPBlock = 600 * time.Second
	// XPPerBlock is the XP awarded per complete block
	XPPerBlock = 10
	// XPPerLevel is the XP needed for each level
	XPPerLevel = 100
	// RankingSize is the number of entries returned by Ranking
	RankingSize = 10
)

// XPGain returns the XP earned for a call of the given length in seconds.
// Only complete 10 minute blocks count.
func XPGain(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Floor(seconds/XPBlock.Seconds())) * XPPerBlock
}

// LevelFor returns the level that corresponds to an XP total
func LevelFor(xp int64) int64 {
	if xp <= 0 {
		return 0
	}
	return xp / XPPerLevel
}

// PresenceChange describes a member moving in or out of voice
type PresenceChange struct {
	GuildID   string
	UserID    string
	WasInCall bool
	IsInCall  bool
	At        time.Time
}

// Tracker applies presence changes to the guild state
type Tracker struct {
	repo   *database.Repository
	logger zerolog.Logger
}

// New creates a tracker writing through repo
func New(repo *database.Repository, logger zerolog.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		logger: logger.With().Str("component", "tracker").Logger(),
	}
}

// OnPresenceChange records a join or settles a leave. A level-up is returned
// when the settled call pushed the member to a higher level.
//
// Any update that leaves the member out of voice settles a recorded join,
// even when the previous state was unknown to the gateway cache.
func (t *Tracker) OnPresenceChange(ctx context.Context, pc PresenceChange) (*models.LevelUp, error) {
	switch {
	case !pc.WasInCall && pc.IsInCall:
		return nil, t.join(ctx, pc)
	case !pc.IsInCall:
		return t.leave(ctx, pc)
	default:
		return nil, nil
	}
}

func (t *Tracker) join(ctx context.Context, pc PresenceChange) error {
	return t.repo.Update(ctx, pc.GuildID, func(g *models.GuildRecord) error {
		u := g.User(pc.UserID)
		if u.InCall() {
			t.logger.Debug().Str("guild", pc.GuildID).Str("user", pc.UserID).
				Time("joined_at", *u.JoinedAt).Msg("duplicate join ignored")
			return database.ErrUnchanged
		}
		at := pc.At
		u.JoinedAt = &at
		t.logger.Debug().Str("guild", pc.GuildID).Str("user", pc.UserID).Msg("join")
		return nil
	})
}

func (t *Tracker) leave(ctx context.Context, pc PresenceChange) (*models.LevelUp, error) {
	var levelUp *models.LevelUp

	err := t.repo.Update(ctx, pc.GuildID, func(g *models.GuildRecord) error {
		u, ok := g.Users[pc.UserID]
		if !ok || !u.InCall() {
			t.logger.Debug().Str("guild", pc.GuildID).Str("user", pc.UserID).
				Msg("leave without recorded join discarded")
			return database.ErrUnchanged
		}

		seconds := pc.At.Sub(*u.JoinedAt).Seconds()
		if seconds < 0 {
			t.logger.Warn().Str("guild", pc.GuildID).Str("user", pc.UserID).
				Float64("seconds", seconds).Msg("negative call duration clamped")
			seconds = 0
		}
		u.JoinedAt = nil

		gain := XPGain(seconds)
		before := u.Stats.Level
		u.Stats.TotalCallSeconds += seconds
		u.Stats.Sessions++
		u.Stats.XP += gain
		if level := LevelFor(u.Stats.XP); level > before {
			u.Stats.Level = level
			levelUp = &models.LevelUp{GuildID: pc.GuildID, UserID: pc.UserID, Level: level}
		}

		t.logger.Info().Str("guild", pc.GuildID).Str("user", pc.UserID).
			Float64("seconds", seconds).Int64("xp_gain", gain).Msg("leave")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return levelUp, nil
}

// Reconcile aligns recorded joins with the members currently in voice.
// Joins of members no longer in voice are lost sessions and are dropped;
// members in voice without a join start a new session at the given time.
func (t *Tracker) Reconcile(ctx context.Context, guildID string, inCall []string, at time.Time) error {
	present := make(map[string]bool, len(inCall))
	for _, id := range inCall {
		present[id] = true
	}

	return t.repo.Update(ctx, guildID, func(g *models.GuildRecord) error {
		changed := false
		for id, u := range g.Users {
			if u.InCall() && !present[id] {
				u.JoinedAt = nil
				changed = true
				t.logger.Warn().Str("guild", guildID).Str("user", id).Msg("dropped stale join")
			}
		}
		for id := range present {
			u := g.User(id)
			if !u.InCall() {
				joined := at
				u.JoinedAt = &joined
				changed = true
			}
		}
		if !changed {
			return database.ErrUnchanged
		}
		return nil
	})
}

// Ranking returns the members with the most call time, highest first
func (t *Tracker) Ranking(guildID string, limit int) []models.RankingEntry {
	g, ok := t.repo.Guild(guildID)
	if !ok {
		return nil
	}

	entries := make([]models.RankingEntry, 0, len(g.Users))
	for id, u := range g.Users {
		if !u.Stats.Tracked() {
			continue
		}
		entries = append(entries, models.RankingEntry{UserID: id, TotalSeconds: u.Stats.TotalCallSeconds})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalSeconds != entries[j].TotalSeconds {
			return entries[i].TotalSeconds > entries[j].TotalSeconds
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Level returns the XP and level of a member
func (t *Tracker) Level(guildID, userID string) (xp, level int64) {
	g, ok := t.repo.Guild(guildID)
	if !ok {
		return 0, 0
	}
	u, ok := g.Users[userID]
	if !ok {
		return 0, 0
	}
	return u.Stats.XP, u.Stats.Level
}
