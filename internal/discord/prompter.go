package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"tchudometro/internal/models"
	"tchudometro/internal/setup"
	"tchudometro/pkg/utils"
)

const (
	setupButtonPrefix = "setup-role"
	maxRoleButtons    = 25
	buttonsPerRow     = 5
)

// pendingQuestion is a setup question waiting for the owner's answer
type pendingQuestion struct {
	ownerID string
	choices []setup.Choice
	answer  chan int
}

// prompter asks setup questions through direct messages
type prompter struct {
	session *discordgo.Session
	logger  zerolog.Logger

	mu sync.Mutex
	// channel questions are answered by a numeric DM, keyed by owner
	byOwner map[string]*pendingQuestion
	// role questions are answered with a button, keyed by guild
	byGuild map[string]*pendingQuestion
}

func newPrompter(session *discordgo.Session, logger zerolog.Logger) *prompter {
	return &prompter{
		session: session,
		logger:  logger.With().Str("component", "prompter").Logger(),
		byOwner: make(map[string]*pendingQuestion),
		byGuild: make(map[string]*pendingQuestion),
	}
}

// Ask implements setup.Prompter
func (p *prompter) Ask(ctx context.Context, q setup.Question) (int, error) {
	dm, err := p.session.UserChannelCreate(q.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to open DM with owner: %w", err)
	}

	pq := &pendingQuestion{ownerID: q.OwnerID, choices: q.Choices, answer: make(chan int, 1)}

	var msg *discordgo.Message
	switch q.Kind {
	case setup.KindChannel:
		if !p.register(p.byOwner, q.OwnerID, pq) {
			return 0, fmt.Errorf("owner %s already has a pending question", q.OwnerID)
		}
		defer p.unregister(p.byOwner, q.OwnerID)
		msg, err = p.session.ChannelMessageSendEmbed(dm.ID, channelQuestionEmbed(q.Choices))
	case setup.KindRole:
		if !p.register(p.byGuild, q.GuildID, pq) {
			return 0, fmt.Errorf("guild %s already has a pending question", q.GuildID)
		}
		defer p.unregister(p.byGuild, q.GuildID)
		msg, err = p.session.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{roleQuestionEmbed()},
			Components: roleButtons(q.GuildID, q.Choices),
		})
	default:
		return 0, fmt.Errorf("unknown question kind %d", q.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to send question: %w", err)
	}

	select {
	case idx := <-pq.answer:
		return idx, nil
	case <-ctx.Done():
		if q.Kind == setup.KindRole {
			p.expireButtons(msg)
		}
		return 0, ctx.Err()
	}
}

// Notify implements setup.Prompter
func (p *prompter) Notify(_ context.Context, ownerID, message string) error {
	dm, err := p.session.UserChannelCreate(ownerID)
	if err != nil {
		return err
	}
	_, err = p.session.ChannelMessageSend(dm.ID, message)
	return err
}

// Confirm implements setup.Prompter
func (p *prompter) Confirm(_ context.Context, ownerID string, cfg models.GuildConfig) error {
	dm, err := p.session.UserChannelCreate(ownerID)
	if err != nil {
		return err
	}
	_, err = p.session.ChannelMessageSendEmbed(dm.ID, confirmEmbed(cfg))
	return err
}

func (p *prompter) register(m map[string]*pendingQuestion, key string, pq *pendingQuestion) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := m[key]; busy {
		return false
	}
	m[key] = pq
	return true
}

func (p *prompter) unregister(m map[string]*pendingQuestion, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(m, key)
}

func (p *prompter) lookup(m map[string]*pendingQuestion, key string) *pendingQuestion {
	p.mu.Lock()
	defer p.mu.Unlock()
	return m[key]
}

// deliver hands an answer to a waiting question without blocking
func (pq *pendingQuestion) deliver(idx int) {
	select {
	case pq.answer <- idx:
	default:
	}
}

// handleDirectMessage answers a pending channel question with the owner's reply
func (p *prompter) handleDirectMessage(m *discordgo.MessageCreate) {
	pq := p.lookup(p.byOwner, m.Author.ID)
	if pq == nil {
		return
	}
	if idx, ok := parseChoice(m.Content, len(pq.choices)); ok {
		pq.deliver(idx)
	}
}

// handleComponent answers a pending role question with the clicked button
func (p *prompter) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, idx, ok := parseRoleButton(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}

	pq := p.lookup(p.byGuild, guildID)
	var content string
	switch {
	case pq == nil || idx >= len(pq.choices):
		content = "❌ Tempo esgotado! Esta escolha não está mais disponível."
	case user == nil || user.ID != pq.ownerID:
		content = "❌ Apenas o dono do servidor pode selecionar o cargo!"
	default:
		pq.deliver(idx)
		content = fmt.Sprintf("✅ Cargo **%s** selecionado!", pq.choices[idx].Name)
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to respond to setup button")
	}
}

// expireButtons removes the role buttons once the question timed out
func (p *prompter) expireButtons(msg *discordgo.Message) {
	if msg == nil {
		return
	}
	content := "⏳ Tempo esgotado! O primeiro cargo da lista será usado."
	empty := []discordgo.MessageComponent{}
	_, err := p.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         msg.ID,
		Channel:    msg.ChannelID,
		Content:    &content,
		Components: &empty,
	})
	if err != nil {
		p.logger.Debug().Err(err).Msg("failed to expire setup buttons")
	}
}

// parseChoice reads a 1-based option number typed by the owner
func parseChoice(content string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

func roleButtonID(guildID string, idx int) string {
	return fmt.Sprintf("%s:%s:%d", setupButtonPrefix, guildID, idx)
}

func parseRoleButton(customID string) (string, int, bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != setupButtonPrefix || parts[1] == "" {
		return "", 0, false
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return parts[1], idx, true
}

// roleButtons lays out one button per role, five per row
func roleButtons(guildID string, choices []setup.Choice) []discordgo.MessageComponent {
	if len(choices) > maxRoleButtons {
		choices = choices[:maxRoleButtons]
	}

	var rows []discordgo.MessageComponent
	var row discordgo.ActionsRow
	for idx, c := range choices {
		row.Components = append(row.Components, discordgo.Button{
			Label:    utils.TruncateString(c.Name, 80),
			Style:    discordgo.PrimaryButton,
			CustomID: roleButtonID(guildID, idx),
		})
		if len(row.Components) == buttonsPerRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func channelQuestionEmbed(choices []setup.Choice) *discordgo.MessageEmbed {
	lines := make([]string, len(choices))
	for n, c := range choices {
		lines[n] = fmt.Sprintf("%d️⃣  #%s", n+1, c.Name)
	}
	return &discordgo.MessageEmbed{
		Title:       "📢 Configuração do Tchudozômetro",
		Description: "Por favor, escolha o canal onde o bot enviará as enquetes diárias!",
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📜 Opções disponíveis:", Value: utils.TruncateString(strings.Join(lines, "\n"), 1024)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "⏳ Responda com o número correspondente."},
	}
}

func roleQuestionEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🏅 Escolha o cargo do 'Tchudu Bem Master...'",
		Description: "Clique no botão correspondente ao cargo desejado!",
		Color:       colorGold,
	}
}

func confirmEmbed(cfg models.GuildConfig) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "✅ Configuração concluída!",
		Description: "Tchudozômetro está pronto para começar!",
		Color:       colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📢 Canal escolhido:", Value: utils.FormatChannelMention(cfg.ChannelID)},
			{Name: "🏅 Cargo escolhido:", Value: utils.FormatRoleMention(cfg.RoleID)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "🚀 O bot começará a enviar as enquetes diariamente!"},
	}
}
