package discord

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"

	"tchudometro/internal/setup"
	"tchudometro/internal/tracker"
)

// presenceFromUpdate converts a gateway voice update into a presence change.
// Moving between channels keeps the member in a call.
func presenceFromUpdate(vs *discordgo.VoiceStateUpdate, at time.Time) tracker.PresenceChange {
	pc := tracker.PresenceChange{
		GuildID:  vs.GuildID,
		UserID:   vs.UserID,
		IsInCall: vs.ChannelID != "",
		At:       at,
	}
	if vs.BeforeUpdate != nil {
		pc.WasInCall = vs.BeforeUpdate.ChannelID != ""
	}
	return pc
}

// voiceStateUpdate handles voice state updates
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID == "" {
		return
	}
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}

	pc := presenceFromUpdate(vs, time.Now().UTC())
	levelUp, err := b.tracker.OnPresenceChange(b.eventContext(), pc)
	if err != nil {
		b.logger.Error().Err(err).Str("guild", pc.GuildID).Str("user", pc.UserID).Msg("failed to record voice change")
		return
	}
	if levelUp != nil {
		b.background(func(ctx context.Context) {
			b.announcer.levelUp(*levelUp)
		})
	}
}

// guildCreate reconciles voice sessions and starts setup for new guilds
func (b *Bot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}

	inCall := voiceMembers(g.Guild)
	if err := b.tracker.Reconcile(b.eventContext(), g.ID, inCall, time.Now().UTC()); err != nil {
		b.logger.Error().Err(err).Str("guild", g.ID).Msg("failed to reconcile voice sessions")
	}

	if rec, ok := b.repo.Guild(g.ID); ok && rec.Configured() {
		return
	}
	if _, running := b.inSetup.LoadOrStore(g.ID, struct{}{}); running {
		return
	}

	guild := setupGuild(g.Guild)
	b.background(func(ctx context.Context) {
		defer b.inSetup.Delete(guild.ID)
		if _, err := b.wizard.Run(ctx, guild); err != nil {
			b.logger.Warn().Err(err).Str("guild", guild.ID).Msg("setup did not complete")
		}
	})
}

// voiceMembers lists the non-bot members connected to a voice channel.
// Bot voice updates are never tracked, so their joins would never settle.
func voiceMembers(g *discordgo.Guild) []string {
	bots := make(map[string]bool)
	for _, m := range g.Members {
		if m.User != nil && m.User.Bot {
			bots[m.User.ID] = true
		}
	}

	inCall := make([]string, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == "" || bots[vs.UserID] {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
			continue
		}
		inCall = append(inCall, vs.UserID)
	}
	return inCall
}

// setupGuild lists the text channels and assignable roles of a guild
func setupGuild(g *discordgo.Guild) setup.Guild {
	guild := setup.Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID}

	channels := append([]*discordgo.Channel(nil), g.Channels...)
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Position < channels[j].Position })
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText {
			guild.TextChannels = append(guild.TextChannels, setup.Choice{ID: ch.ID, Name: ch.Name})
		}
	}
	// lowest roles first, so the fallback answer is one the bot can assign
	roles := append([]*discordgo.Role(nil), g.Roles...)
	sort.SliceStable(roles, func(i, j int) bool { return roles[i].Position < roles[j].Position })
	for _, role := range roles {
		// @everyone shares the guild ID; managed roles belong to integrations
		if role.ID == g.ID || role.Managed {
			continue
		}
		guild.Roles = append(guild.Roles, setup.Choice{ID: role.ID, Name: role.Name})
	}
	return guild
}
