// Package discord posts run bulletins to a Discord channel as embeds.
package discord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/quill/internal/bulletin"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 30 * time.Second
	// maxDescription is Discord's embed description limit.
	maxDescription = 4096
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier implements bulletin.Notifier for Discord. It only uses the REST
// API, so no gateway connection is opened.
type Notifier struct {
	sess        session
	channelID   string
	baseBackoff time.Duration
}

// Opts holds parameters for creating a Discord Notifier.
type Opts struct {
	Token     string // bot token, without the "Bot " prefix
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("discord: bot token is required")
		}
		s, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = s
	}
	return &Notifier{sess: sess, channelID: opts.ChannelID, baseBackoff: baseBackoff}, nil
}

func (n *Notifier) Name() string { return "discord" }

// Notify sends b as a single embed.
func (n *Notifier) Notify(ctx context.Context, b bulletin.Bulletin) error {
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{toEmbed(b)}}
	err := n.retryOnRateLimit(ctx, func() error {
		_, sendErr := n.sess.ChannelMessageSendComplex(n.channelID, msg, discordgo.WithContext(ctx))
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func toEmbed(b bulletin.Bulletin) *discordgo.MessageEmbed {
	desc := b.Body
	if len(desc) > maxDescription {
		desc = desc[:maxDescription-3] + "..."
	}
	embed := &discordgo.MessageEmbed{
		Title:       b.Title,
		Description: desc,
	}
	if b.Color != "" {
		embed.Color = parseHexColor(b.Color)
	}
	for _, f := range b.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}

func isRateLimited(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusTooManyRequests
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (n *Notifier) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRateLimited(err) || attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * n.baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
