package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLength is Discord's limit on message content.
const maxMessageLength = 2000

// Config holds bot configuration
type Config struct {
	Token   string
	GuildID string // empty registers commands globally
}

// Bot connects the command Handler to a Discord session.
type Bot struct {
	config  Config
	session *discordgo.Session
	handler *Handler
	logger  *slog.Logger
}

// New creates the Discord session, opens it and registers the slash commands.
func New(config Config, handler *Handler, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	b := &Bot{
		config:  config,
		session: dg,
		handler: handler,
		logger:  logger,
	}

	dg.AddHandler(b.handleCommands)
	dg.AddHandler(b.handleMessageCreate)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	logger.Info("discord bot connected", "user", dg.State.User.Username, "guild_id", config.GuildID)
	return b, nil
}

// Run prunes expired conversations until ctx is done, then closes the session.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return b.Close()
		case <-ticker.C:
			if n := b.handler.Conversations().Prune(); n > 0 {
				b.logger.Debug("pruned expired conversations", "count", n)
			}
		}
	}
}

// Close gracefully shuts down the bot
func (b *Bot) Close() error {
	return b.session.Close()
}

// SendDM opens a direct message channel with the user and posts content.
func (b *Bot) SendDM(userID, content string) error {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	if _, err := b.session.ChannelMessageSend(ch.ID, truncate(content)); err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	return nil
}

// handleCommands routes slash commands to the Handler. Scans can take a while,
// so the response is deferred and edited once the command finishes.
func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	userID := interactionUserID(i)
	if userID == "" {
		return
	}
	cmd := commandFromInteraction(i.ApplicationCommandData())

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error("failed to defer interaction", "command", cmd.Name, "error", err)
		return
	}

	reply := truncate(b.handler.Handle(context.Background(), userID, cmd))
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		b.logger.Error("failed to respond to command", "command", cmd.Name, "error", err)
	}
}

// handleMessageCreate completes pending conversations from direct messages.
func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Skip messages from our own bot to avoid loops
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if m.GuildID != "" {
		return
	}

	reply, ok := b.handler.HandleText(context.Background(), m.Author.ID, m.Content)
	if !ok {
		reply = "💡 Use /help to see the available commands."
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, truncate(reply)); err != nil {
		b.logger.Error("failed to reply to message", "user_id", m.Author.ID, "error", err)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= maxMessageLength {
		return content
	}
	return string(runes[:maxMessageLength-1]) + "…"
}
