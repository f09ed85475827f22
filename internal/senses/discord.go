package senses

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/demerzel/internal/logging"
)

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string
	OwnerID   string
}

// DiscordRecognizer turns the owner's messages in one channel into final
// transcripts, so the agent can be driven by text when no microphone is
// attached.
type DiscordRecognizer struct {
	session   *discordgo.Session
	channelID string
	ownerID   string
	botID     string
	clock     func() time.Time

	mu  sync.Mutex
	out chan Transcript
}

// NewDiscordRecognizer creates the session; Listen connects it
func NewDiscordRecognizer(cfg DiscordConfig) (*DiscordRecognizer, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	d := &DiscordRecognizer{
		session:   session,
		channelID: cfg.ChannelID,
		ownerID:   cfg.OwnerID,
		clock:     time.Now,
	}
	session.AddHandler(d.handleMessage)

	// We only need message content
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return d, nil
}

// Session returns the underlying Discord session (for sharing with the poster)
func (d *DiscordRecognizer) Session() *discordgo.Session {
	return d.session
}

func (d *DiscordRecognizer) Listen(ctx context.Context) (<-chan Transcript, error) {
	if err := d.session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}
	d.botID = d.session.State.User.ID
	logging.Info("discord-sense", "Connected as %s", d.session.State.User.Username)

	out := make(chan Transcript, 16)
	d.mu.Lock()
	d.out = out
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		if err := d.session.Close(); err != nil {
			logging.Warn("discord-sense", "close: %v", err)
		}
		d.mu.Lock()
		close(out)
		d.out = nil
		d.mu.Unlock()
	}()
	return out, nil
}

func (d *DiscordRecognizer) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := d.toTranscript(m)
	if !ok {
		return
	}
	logging.Debug("discord-sense", "Transcript: %s", logging.Truncate(t.Text, 50))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		return
	}
	select {
	case d.out <- t:
	default:
		logging.Warn("discord-sense", "dropping message, loop is behind: %s", logging.Truncate(t.Text, 30))
	}
}

// toTranscript filters and converts a message. Only the owner (when one is
// configured) in the configured channel (when one is set) is heard.
func (d *DiscordRecognizer) toTranscript(m *discordgo.MessageCreate) (Transcript, bool) {
	if m.Author == nil || m.Author.ID == d.botID || m.Author.Bot {
		return Transcript{}, false
	}
	if d.channelID != "" && m.ChannelID != d.channelID {
		return Transcript{}, false
	}
	if d.ownerID != "" && m.Author.ID != d.ownerID {
		return Transcript{}, false
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return Transcript{}, false
	}
	return Transcript{Text: text, Final: true, At: d.clock(), Source: "discord"}, true
}
