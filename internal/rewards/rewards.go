// Package rewards derives the daily summary and the monthly least-active
// award from the tracked call time of each guild.
package rewards

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tchudometro/internal/database"
	"tchudometro/internal/models"
)

// Summary counts the members above and below the guild's minimum call time
type Summary struct {
	Active   int
	Inactive int
}

// Award describes the outcome of a monthly award
type Award struct {
	GuildID      string
	UserID       string
	RoleID       string
	TotalSeconds float64
	Removed      []string
}

// RoleManager resolves and edits guild roles
type RoleManager interface {
	HasRole(ctx context.Context, guildID, roleID string) bool
	HasMember(ctx context.Context, guildID, userID string) bool
	RoleHolders(ctx context.Context, guildID, roleID string) ([]string, error)
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
}

// Engine computes rewards from the repository state
type Engine struct {
	repo        *database.Repository
	resetTotals bool
	logger      zerolog.Logger
}

// New creates an engine. With resetTotals set, the call time of every member
// of a guild is zeroed after its monthly award, so each award compares one
// month only.
func New(repo *database.Repository, resetTotals bool, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:        repo,
		resetTotals: resetTotals,
		logger:      logger.With().Str("component", "rewards").Logger(),
	}
}

// IsAwardDay reports whether the monthly award runs on the day of t
func IsAwardDay(t time.Time) bool {
	return t.Day() == 1
}

// Summarize splits the members of g by the configured minimum call time.
// Members without any call time are not counted.
func Summarize(g *models.GuildRecord) Summary {
	minimum := float64(models.DefaultMinCallTime)
	if g.Config != nil && g.Config.MinCallTime > 0 {
		minimum = float64(g.Config.MinCallTime)
	}

	var s Summary
	for _, u := range g.Users {
		total := u.Stats.TotalCallSeconds
		switch {
		case total >= minimum:
			s.Active++
		case total > 0:
			s.Inactive++
		}
	}
	return s
}

// LeastActive returns the tracked member with the least call time.
// Ties go to the lowest user ID.
func LeastActive(g *models.GuildRecord) (string, float64, bool) {
	ids := make([]string, 0, len(g.Users))
	for id, u := range g.Users {
		if u.Stats.Tracked() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", 0, false
	}
	sort.Strings(ids)

	best := ids[0]
	for _, id := range ids[1:] {
		if g.Users[id].Stats.TotalCallSeconds < g.Users[best].Stats.TotalCallSeconds {
			best = id
		}
	}
	return best, g.Users[best].Stats.TotalCallSeconds, true
}

// DailySummary computes the summary of a guild
func (e *Engine) DailySummary(guildID string) Summary {
	g, ok := e.repo.Guild(guildID)
	if !ok {
		return Summary{}
	}
	return Summarize(g)
}

// MonthlyAward moves the configured role to the least active member of the
// guild. It returns false when there is nothing to award: no tracked members,
// no configuration, a role or member that cannot be resolved, or an award
// already given on the same day.
func (e *Engine) MonthlyAward(ctx context.Context, guildID string, roles RoleManager, now time.Time) (*Award, bool, error) {
	log := e.logger.With().Str("guild", guildID).Logger()

	g, ok := e.repo.Guild(guildID)
	if !ok || !g.Configured() {
		log.Debug().Msg("award skipped, guild not configured")
		return nil, false, nil
	}
	if g.LastAward != nil && sameDay(*g.LastAward, now) {
		log.Debug().Msg("award already given today")
		return nil, false, nil
	}

	userID, total, ok := LeastActive(g)
	if !ok {
		log.Debug().Msg("award skipped, no tracked members")
		return nil, false, nil
	}

	roleID := g.Config.RoleID
	if !roles.HasRole(ctx, guildID, roleID) {
		log.Warn().Str("role", roleID).Msg("award skipped, role not found")
		return nil, false, nil
	}
	if !roles.HasMember(ctx, guildID, userID) {
		log.Warn().Str("user", userID).Msg("award skipped, member not found")
		return nil, false, nil
	}

	holders, err := roles.RoleHolders(ctx, guildID, roleID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list role holders: %w", err)
	}

	award := &Award{GuildID: guildID, UserID: userID, RoleID: roleID, TotalSeconds: total}
	for _, holder := range holders {
		if err := roles.RemoveRole(ctx, guildID, holder, roleID); err != nil {
			log.Warn().Err(err).Str("user", holder).Msg("failed to remove award role")
			continue
		}
		award.Removed = append(award.Removed, holder)
	}
	if err := roles.AddRole(ctx, guildID, userID, roleID); err != nil {
		return nil, false, fmt.Errorf("failed to grant award role: %w", err)
	}

	err = e.repo.Update(ctx, guildID, func(g *models.GuildRecord) error {
		at := now
		g.LastAward = &at
		g.AwardedTo = userID
		if e.resetTotals {
			for _, u := range g.Users {
				u.Stats.TotalCallSeconds = 0
			}
		}
		return nil
	})
	if err != nil {
		return award, true, err
	}

	log.Info().Str("user", userID).Float64("seconds", total).Bool("reset", e.resetTotals).Msg("monthly award given")
	return award, true, nil
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
