// Package setup asks a guild owner for the announcement channel and the award
// role the first time the bot sees the guild.
package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tchudometro/internal/database"
	"tchudometro/internal/models"
)

// DefaultTimeout bounds each question asked to the owner
const DefaultTimeout = 60 * time.Second

var (
	// ErrNoChannels means the guild has no text channel to post in
	ErrNoChannels = errors.New("guild has no text channels")
	// ErrNoRoles means the guild has no role that could be awarded
	ErrNoRoles = errors.New("guild has no assignable roles")
)

// Choice is one selectable channel or role
type Choice struct {
	ID   string
	Name string
}

// Kind tells which setting a question is about
type Kind int

const (
	KindChannel Kind = iota
	KindRole
)

// Question is sent to the owner, who answers with an index into Choices
type Question struct {
	Kind    Kind
	GuildID string
	OwnerID string
	Choices []Choice
}

// Prompter talks to the guild owner
type Prompter interface {
	// Ask blocks until the owner picks a choice or ctx is done
	Ask(ctx context.Context, q Question) (int, error)
	// Notify sends a plain message to the owner
	Notify(ctx context.Context, ownerID, message string) error
	// Confirm reports the saved configuration to the owner
	Confirm(ctx context.Context, ownerID string, cfg models.GuildConfig) error
}

// Guild is what the wizard needs to know about a guild
type Guild struct {
	ID           string
	Name         string
	OwnerID      string
	TextChannels []Choice
	Roles        []Choice
}

// Wizard runs the first-time setup of a guild
type Wizard struct {
	repo     *database.Repository
	prompter Prompter
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewWizard creates a wizard; a non-positive timeout uses DefaultTimeout
func NewWizard(repo *database.Repository, prompter Prompter, timeout time.Duration, logger zerolog.Logger) *Wizard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Wizard{
		repo:     repo,
		prompter: prompter,
		timeout:  timeout,
		logger:   logger.With().Str("component", "setup").Logger(),
	}
}

// Run configures the guild unless it already is. The returned config is nil
// when the guild was configured before.
func (w *Wizard) Run(ctx context.Context, guild Guild) (*models.GuildConfig, error) {
	log := w.logger.With().Str("guild", guild.ID).Logger()

	if g, ok := w.repo.Guild(guild.ID); ok && g.Configured() {
		log.Debug().Msg("guild already configured, skipping setup")
		return nil, nil
	}
	if guild.OwnerID == "" {
		return nil, fmt.Errorf("guild %s has no owner", guild.ID)
	}
	if len(guild.TextChannels) == 0 {
		return nil, ErrNoChannels
	}

	channel, err := w.ask(ctx, Question{Kind: KindChannel, GuildID: guild.ID, OwnerID: guild.OwnerID, Choices: guild.TextChannels})
	if err != nil {
		return nil, err
	}

	if len(guild.Roles) == 0 {
		if err := w.prompter.Notify(ctx, guild.OwnerID, "❌ Nenhum cargo disponível para escolher. Crie um cargo e tente novamente!"); err != nil {
			log.Warn().Err(err).Msg("failed to notify owner")
		}
		return nil, ErrNoRoles
	}

	role, err := w.ask(ctx, Question{Kind: KindRole, GuildID: guild.ID, OwnerID: guild.OwnerID, Choices: guild.Roles})
	if err != nil {
		return nil, err
	}

	cfg := models.GuildConfig{
		ChannelID:          channel.ID,
		RoleID:             role.ID,
		MinCallTime:        models.DefaultMinCallTime,
		WeeklyRequiredTime: models.DefaultWeeklyRequiredTime,
	}
	err = w.repo.Update(ctx, guild.ID, func(g *models.GuildRecord) error {
		if g.Configured() {
			return database.ErrUnchanged
		}
		c := cfg
		g.Config = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("channel", cfg.ChannelID).Str("role", cfg.RoleID).Msg("guild configured")

	if err := w.prompter.Confirm(ctx, guild.OwnerID, cfg); err != nil {
		log.Warn().Err(err).Msg("failed to send setup confirmation")
	}
	return &cfg, nil
}

// ask waits for the owner's answer and falls back to the first choice when
// the wait expires or the answer is unusable
func (w *Wizard) ask(ctx context.Context, q Question) (Choice, error) {
	qctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	idx, err := w.prompter.Ask(qctx, q)
	if ctx.Err() != nil {
		return Choice{}, ctx.Err()
	}
	if err != nil || idx < 0 || idx >= len(q.Choices) {
		w.logger.Info().Err(err).Str("guild", q.GuildID).Int("kind", int(q.Kind)).
			Msg("no usable answer, using first option")
		idx = 0
	}
	return q.Choices[idx], nil
}
