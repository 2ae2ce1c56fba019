package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"tchudometro/internal/config"
	"tchudometro/internal/database"
	"tchudometro/internal/rewards"
	"tchudometro/internal/scheduler"
	"tchudometro/internal/setup"
	"tchudometro/internal/tracker"
)

// Bot represents the Discord bot
type Bot struct {
	session   *discordgo.Session
	cfg       *config.Config
	repo      *database.Repository
	tracker   *tracker.Tracker
	announcer *announcer
	wizard    *setup.Wizard
	prompts   *prompter
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inSetup  sync.Map // guildID -> struct{}
	mu       sync.Mutex
	stopping bool
	workers  sync.WaitGroup
}

// New creates a new Discord bot
func New(cfg *config.Config, repo *database.Repository, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages
	// handlers run one at a time, in gateway order, so presence changes for
	// the same member are never applied concurrently
	session.SyncEvents = true

	bot := &Bot{
		session: session,
		cfg:     cfg,
		repo:    repo,
		tracker: tracker.New(repo, logger),
		prompts: newPrompter(session, logger),
		logger:  logger.With().Str("component", "discord").Logger(),
	}
	bot.announcer = &announcer{
		repo:    repo,
		rewards: rewards.New(repo, cfg.ResetTotalsOnAward, logger),
		roles:   &roleManager{session: session},
		out:     session,
		logger:  bot.logger,
	}
	bot.wizard = setup.NewWizard(repo, bot.prompts, cfg.SetupTimeout, logger)
	bot.scheduler = scheduler.New(logger, scheduler.WithLocation(cfg.Location))

	// Add event handlers
	session.AddHandler(bot.ready)
	session.AddHandler(bot.guildCreate)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.interactionCreate)

	return bot, nil
}

// Start opens the gateway connection and starts the daily tasks
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.registerTasks(); err != nil {
		return err
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.scheduler.Start(b.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	b.logger.Info().Msg("✅ bot is running")
	return nil
}

// Stop closes the gateway, stops the scheduler, waits for background work and
// persists state
func (b *Bot) Stop(ctx context.Context) error {
	// no gateway event is delivered after this point
	if err := b.session.Close(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to close Discord session")
	}

	b.mu.Lock()
	b.stopping = true
	b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	b.scheduler.Stop()
	b.workers.Wait()

	return b.repo.Flush(ctx)
}

// eventContext is the context gateway handlers write state with. It ignores
// shutdown so an event already being handled is still persisted.
func (b *Bot) eventContext() context.Context {
	return context.WithoutCancel(b.ctx)
}

// background runs fn outside the gateway handler so slow work does not hold
// up event delivery. Work requested during shutdown is dropped.
func (b *Bot) background(fn func(ctx context.Context)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping {
		b.logger.Debug().Msg("shutting down, background work dropped")
		return
	}

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		fn(b.ctx)
	}()
}

// ready registers the slash commands once the session is identified
func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("connected")

	cmds, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", Commands)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to register slash commands")
		return
	}
	b.logger.Info().Int("commands", len(cmds)).Msg("📌 slash commands synced")
}
