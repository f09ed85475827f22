package effectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/demerzel/internal/logging"
)

// messageSender is the slice of *discordgo.Session the poster needs
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordPoster is the discord.post actuator: it posts an announcement to a
// fixed channel.
type DiscordPoster struct {
	session    messageSender
	channelID  string
	maxRetries int
	backoff    time.Duration
}

// NewDiscordPoster posts to channelID through an open session
func NewDiscordPoster(session *discordgo.Session, channelID string) *DiscordPoster {
	return newDiscordPoster(session, channelID)
}

func newDiscordPoster(session messageSender, channelID string) *DiscordPoster {
	return &DiscordPoster{
		session:    session,
		channelID:  channelID,
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
}

func (p *DiscordPoster) Invoke(ctx context.Context, args map[string]any) (string, error) {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return "", fmt.Errorf("missing content")
	}

	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.backoff * time.Duration(attempt)):
			}
			logging.Info("discord-effector", "retrying post (attempt %d): %v", attempt+1, err)
		}
		_, err = p.session.ChannelMessageSend(p.channelID, content, discordgo.WithContext(ctx))
		if err == nil {
			return "Announced.", nil
		}
		if isNonRetryableError(err) {
			break
		}
	}
	return "", fmt.Errorf("post to discord: %w", err)
}

// isNonRetryableError reports client errors (4xx) that will fail the same way
// again. Network errors and 5xx are worth retrying.
func isNonRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}
