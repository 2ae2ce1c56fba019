package discord

import (
	"github.com/bwmarrin/discordgo"
)

// messageCreate handles message creation events. Only direct messages matter:
// they carry the owner's answers during setup.
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID != "" {
		return
	}
	b.prompts.handleDirectMessage(m)
}
