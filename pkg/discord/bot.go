package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/config"
	"craft-flipping/pkg/logging"
)

// Bot represents the Discord bot instance
type Bot struct {
	session          *discordgo.Session
	config           *config.DiscordConfig
	logger           *logging.Logger
	commands         *CommandHandler
	channelID        string
	mu               sync.RWMutex
	ready            bool
	lastCommandTime  time.Time
	commandsReceived int64
}

// NewBot creates a new Discord bot instance. commands may be nil for a send-only bot.
func NewBot(cfg *config.DiscordConfig, commands *CommandHandler, logger *logging.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	bot := &Bot{
		session:   session,
		config:    cfg,
		logger:    logging.OrQuiet(logger),
		commands:  commands,
		channelID: cfg.ChannelID,
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onMessageCreate)

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return bot, nil
}

// Start opens the session and waits for the ready event
func (b *Bot) Start(ctx context.Context) error {
	b.logger.WithDiscord().Info("Starting Discord bot")

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.After(30 * time.Second)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for Discord bot to be ready")
		case <-ticker.C:
			if b.IsReady() {
				b.logger.WithDiscord().Info("Discord bot is ready and connected")
				return nil
			}
		}
	}
}

// Stop stops the Discord bot
func (b *Bot) Stop() error {
	b.logger.WithDiscord().Info("Stopping Discord bot")
	return b.session.Close()
}

// SendMessage sends a plain message to the configured channel, splitting it when needed
func (b *Bot) SendMessage(content string) (*discordgo.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("message content cannot be empty")
	}

	if len(content) > messageLimit {
		return b.sendLongMessage(content)
	}

	message, err := b.session.ChannelMessageSend(b.channelID, content)
	if err != nil {
		b.logger.DiscordError("send_message", err)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	b.logger.DiscordMessage(b.channelID, message.ID, len(content))
	return message, nil
}

// SendEmbed sends an embedded message to the configured channel
func (b *Bot) SendEmbed(embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return b.sendEmbedTo(b.channelID, embed)
}

func (b *Bot) sendEmbedTo(channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	message, err := b.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		b.logger.DiscordError("send_embed", err)
		return nil, fmt.Errorf("failed to send embed: %w", err)
	}

	b.logger.DiscordMessage(channelID, message.ID, len(embed.Description))
	return message, nil
}

// SendReport posts a ranked report, split across embeds when it is too long
func (b *Bot) SendReport(ctx context.Context, title, content string, itemCount int) error {
	footer := fmt.Sprintf("%d crafts ranked • Generated at", itemCount)
	return b.sendResponse(ctx, b.channelID, Response{Title: title, Description: content, Color: ColorOK}, footer)
}

// SendError sends an error message to the configured channel
func (b *Bot) SendError(reportName string, err error) error {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("❌ Error in Report: %s", reportName),
		Description: fmt.Sprintf("```\n%s\n```", Truncate(err.Error(), embedTextLimit-8)),
		Color:       ColorError,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Error occurred at",
		},
	}

	_, sendErr := b.SendEmbed(embed)
	return sendErr
}

// sendLongMessage splits long messages into multiple Discord messages
func (b *Bot) sendLongMessage(content string) (*discordgo.Message, error) {
	chunks := NewSplitter(messageSplitLen).SplitWithParts(content)

	var firstMessage *discordgo.Message
	for i, chunk := range chunks {
		message, err := b.session.ChannelMessageSend(b.channelID, chunk)
		if err != nil {
			b.logger.DiscordError("send_long_message", err)
			return firstMessage, fmt.Errorf("failed to send message part %d: %w", i+1, err)
		}

		if i == 0 {
			firstMessage = message
		}

		b.logger.DiscordMessage(b.channelID, message.ID, len(chunk))

		if i < len(chunks)-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	return firstMessage, nil
}

// sendResponse renders a command response as one or more embeds
func (b *Bot) sendResponse(ctx context.Context, channelID string, resp Response, footer string) error {
	chunks := NewSplitter(embedSplitLen).Split(resp.Description)

	for i, chunk := range chunks {
		title := resp.Title
		if i > 0 {
			title = fmt.Sprintf("%s (continued)", resp.Title)
		}

		embed := &discordgo.MessageEmbed{
			Title:       title,
			Description: chunk,
			Color:       resp.Color,
			Timestamp:   time.Now().Format(time.RFC3339),
		}
		if footer != "" && i == len(chunks)-1 {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
		}

		if _, err := b.sendEmbedTo(channelID, embed); err != nil {
			return fmt.Errorf("failed to send part %d: %w", i+1, err)
		}

		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(150 * time.Millisecond):
			}
		}
	}

	return nil
}

// onReady handles the ready event
func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()

	b.logger.WithDiscord().WithFields(logrus.Fields{
		"bot_user_id": event.User.ID,
		"guild_count": len(event.Guilds),
	}).Info("Discord bot ready")

	if err := s.UpdateGameStatus(0, "⚒️ Craft Flipping"); err != nil {
		b.logger.WithDiscord().WithError(err).Warn("Failed to set bot status")
	}
}

// onMessageCreate routes prefixed messages in the configured channel to the command handler
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.commands == nil {
		return
	}
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if m.ChannelID != b.channelID {
		return
	}
	if !b.commands.Matches(m.Content) {
		return
	}

	// off the event loop: refresh blocks until the fetch completes
	go b.handleCommand(m)
}

func (b *Bot) handleCommand(m *discordgo.MessageCreate) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithDiscord().WithField("panic", r).Error("Command handler panic recovered")

			embed := &discordgo.MessageEmbed{
				Title:       "❌ Command Error",
				Description: "An unexpected error occurred while processing your command.",
				Color:       ColorError,
				Timestamp:   time.Now().Format(time.RFC3339),
			}
			if _, err := b.sendEmbedTo(m.ChannelID, embed); err != nil {
				b.logger.WithDiscord().WithError(err).Error("Failed to send error embed")
			}
		}
	}()

	b.mu.Lock()
	b.lastCommandTime = time.Now()
	b.commandsReceived++
	commandCount := b.commandsReceived
	b.mu.Unlock()

	start := time.Now()
	b.logger.WithDiscord().WithField("user_id", m.Author.ID).WithFields(logrus.Fields{
		"message":       m.Content,
		"command_count": commandCount,
	}).Info("Processing bot command")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	b.commands.HandleAt(ctx, m.Content, m.Timestamp, func(resp Response) {
		if err := b.sendResponse(ctx, m.ChannelID, resp, ""); err != nil {
			b.logger.WithDiscord().WithError(err).Error("Failed to send command response")
		}
	})

	b.logger.WithDiscord().WithField("user_id", m.Author.ID).WithFields(logrus.Fields{
		"message":         m.Content,
		"processing_time": time.Since(start),
	}).Info("Bot command completed")
}

// Stats returns how many commands were handled and when the last one arrived
func (b *Bot) Stats() (int64, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commandsReceived, b.lastCommandTime
}

// IsReady returns whether the bot is ready to send messages
func (b *Bot) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// GetChannelID returns the configured channel ID
func (b *Bot) GetChannelID() string {
	return b.channelID
}
