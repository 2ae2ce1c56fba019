package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"tchudometro/internal/models"
	"tchudometro/internal/tracker"
	"tchudometro/pkg/utils"
)

// Commands are the slash commands registered globally when the bot connects
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "ranking",
		Description: "Mostra quem ficou mais tempo em call",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "periodo",
			Description: "Período exibido no título (ex: semana)",
			Required:    false,
		}},
	},
	{
		Name:        "level",
		Description: "Mostra seu XP e nível no servidor",
	},
}

// interactionCreate routes slash commands and setup buttons
func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "ranking":
			b.handleRankingCommand(s, i)
		case "level":
			b.handleLevelCommand(s, i)
		}
	case discordgo.InteractionMessageComponent:
		b.prompts.handleComponent(s, i)
	}
}

// handleRankingCommand answers /ranking with the top members by call time
func (b *Bot) handleRankingCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		b.respond(s, i, &discordgo.InteractionResponseData{Content: "Use este comando em um servidor.", Flags: discordgo.MessageFlagsEphemeral})
		return
	}

	period := "semana"
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "periodo" && opt.StringValue() != "" {
			period = opt.StringValue()
		}
	}

	entries := b.tracker.Ranking(i.GuildID, tracker.RankingSize)
	if len(entries) == 0 {
		b.respond(s, i, &discordgo.InteractionResponseData{Content: "Nenhum dado registrado ainda! 😢", Flags: discordgo.MessageFlagsEphemeral})
		return
	}

	names := make([]string, len(entries))
	for n, e := range entries {
		names[n] = b.displayName(i.GuildID, e.UserID)
	}
	b.respond(s, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{rankingEmbed(period, entries, names)}})
}

// handleLevelCommand answers /level with the caller's XP and level
func (b *Bot) handleLevelCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		b.respond(s, i, &discordgo.InteractionResponseData{Content: "Use este comando em um servidor.", Flags: discordgo.MessageFlagsEphemeral})
		return
	}

	xp, level := b.tracker.Level(i.GuildID, i.Member.User.ID)
	b.respond(s, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{levelEmbed(xp, level)}})
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("guild", i.GuildID).Msg("failed to respond to interaction")
	}
}

// displayName resolves a member name from the state cache, falling back to a mention
func (b *Bot) displayName(guildID, userID string) string {
	member, err := b.session.State.Member(guildID, userID)
	if err != nil || member == nil || member.User == nil {
		return utils.FormatUserMention(userID)
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}

func rankingEmbed(period string, entries []models.RankingEntry, names []string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🏆 Ranking - %s", capitalize(period)),
		Description: "Veja quem mais ficou em call!",
		Color:       colorGold,
	}
	for n, e := range entries {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  utils.TruncateString(fmt.Sprintf("%s %s", utils.FormatRankingPosition(n+1), names[n]), 256),
			Value: fmt.Sprintf("🕒 **%s**", utils.FormatHoursMinutes(e.TotalSeconds)),
		})
	}
	return embed
}

func levelEmbed(xp, level int64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📊 Seu progresso",
		Description: fmt.Sprintf("🎮 **XP:** %d\n🏆 **Nível:** %d", xp, level),
		Color:       colorBlue,
	}
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
