package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"tchudometro/internal/database"
	"tchudometro/internal/models"
	"tchudometro/internal/rewards"
	"tchudometro/internal/scheduler"
	"tchudometro/pkg/utils"
)

const (
	colorBlue  = 0x3498db
	colorGreen = 0x2ecc71
	colorGold  = 0xf1c40f
	colorRed   = 0xe74c3c
)

// pollReactions are added under the daily poll, in display order
var pollReactions = []string{"🟠", "🔵", "🟢", "🔴"}

// poster is the part of the Discord session used to publish announcements
type poster interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

// announcer publishes the scheduled messages and level-ups of every guild
type announcer struct {
	repo    *database.Repository
	rewards *rewards.Engine
	roles   rewards.RoleManager
	out     poster
	logger  zerolog.Logger
}

// registerTasks wires the daily poll, the nightly summary and the monthly award
func (b *Bot) registerTasks() error {
	tasks := []scheduler.Task{
		{Name: "daily-poll", Hour: b.cfg.PollHour, Minute: b.cfg.PollMinute, Run: b.announcer.dailyPoll},
		{Name: "daily-summary", Hour: b.cfg.SummaryHour, Minute: b.cfg.SummaryMinute, Run: b.announcer.dailySummary},
		{Name: "monthly-award", Hour: b.cfg.AwardHour, Minute: 0, Run: b.announcer.monthlyAward},
	}
	for _, task := range tasks {
		if err := b.scheduler.Add(task); err != nil {
			return fmt.Errorf("failed to register task: %w", err)
		}
	}
	return nil
}

// dailyPoll posts the daily poll in every configured guild
func (a *announcer) dailyPoll(ctx context.Context, _ time.Time) {
	log := zerolog.Ctx(ctx)
	for _, guildID := range a.repo.GuildIDs() {
		msg := a.sendToGuild(guildID, pollEmbed())
		if msg == nil {
			continue
		}
		for _, emoji := range pollReactions {
			if err := a.out.MessageReactionAdd(msg.ChannelID, msg.ID, emoji); err != nil {
				log.Warn().Err(err).Str("guild", guildID).Msg("failed to add poll reaction")
			}
		}
	}
}

// dailySummary posts the active/inactive counts of every configured guild
func (a *announcer) dailySummary(ctx context.Context, _ time.Time) {
	log := zerolog.Ctx(ctx)
	for _, guildID := range a.repo.GuildIDs() {
		summary := a.rewards.DailySummary(guildID)
		log.Debug().Str("guild", guildID).Int("active", summary.Active).Int("inactive", summary.Inactive).Msg("summary")
		a.sendToGuild(guildID, summaryEmbed(summary))
	}
}

// monthlyAward hands the award role to the least active member on the first
// day of the month
func (a *announcer) monthlyAward(ctx context.Context, now time.Time) {
	if !rewards.IsAwardDay(now) {
		return
	}
	log := zerolog.Ctx(ctx)

	for _, guildID := range a.repo.GuildIDs() {
		award, ok, err := a.rewards.MonthlyAward(ctx, guildID, a.roles, now)
		if err != nil {
			log.Error().Err(err).Str("guild", guildID).Msg("monthly award failed")
		}
		if !ok {
			continue
		}
		a.sendToGuild(guildID, awardEmbed(utils.FormatUserMention(award.UserID)))
	}
}

// levelUp posts the level-up embed in the guild's channel
func (a *announcer) levelUp(lu models.LevelUp) {
	a.sendToGuild(lu.GuildID, levelUpEmbed(utils.FormatUserMention(lu.UserID), lu.Level))
}

// sendToGuild posts an embed in the guild's configured channel. Guilds without
// configuration or with a missing channel are skipped.
func (a *announcer) sendToGuild(guildID string, embed *discordgo.MessageEmbed) *discordgo.Message {
	g, ok := a.repo.Guild(guildID)
	if !ok || !g.Configured() || g.Config.ChannelID == "" {
		return nil
	}

	msg, err := a.out.ChannelMessageSendEmbed(g.Config.ChannelID, embed)
	if err != nil {
		a.logger.Warn().Err(err).Str("guild", guildID).Str("channel", g.Config.ChannelID).Msg("failed to send message")
		return nil
	}
	return msg
}

func pollEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📢 Hoje é 'EITCHA' ou 'TCHUDU BEM'?",
		Description: "Vote abaixo e registre sua presença! 🎮",
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🟠 EiTCHAAAAAAA", Value: "🔥 Fiquei mais de 1h!"},
			{Name: "🔵 OPA...", Value: "👀 Ainda não sei..."},
			{Name: "🟢 TCHUDU BEM....", Value: "💤 Passei menos de 1h na call..."},
			{Name: "🔴 FUI BUSCAR O CRACHÁ", Value: "🚪 Não participei hoje."},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "📅 Vote antes da meia-noite!"},
	}
}

func summaryEmbed(s rewards.Summary) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📊 **Resumo do Dia**",
		Description: "Aqui está o desempenho de hoje! ⏳",
		Color:       colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🔥 EiTCHAAAAAAA", Value: fmt.Sprintf("🏆 %d jogadores ficaram mais de 1h!", s.Active)},
			{Name: "😴 TCHUDU BEM.... (;-;)", Value: fmt.Sprintf("💤 %d passaram menos de 1h.", s.Inactive)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "📅 Estatísticas atualizadas diariamente."},
	}
}

func awardEmbed(mention string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🏅 Novo Tchudu Bem Master!",
		Description: fmt.Sprintf("😱 %s ficou com **menos tempo em call** este mês!", mention),
		Color:       colorRed,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Tente se redimir no próximo mês... 😂"},
	}
}

func levelUpEmbed(mention string, level int64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎉 Subiu de nível!",
		Description: fmt.Sprintf("Parabéns %s, você agora é **Nível %d**!", mention, level),
		Color:       colorGreen,
	}
}
