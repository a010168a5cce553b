// Package slack posts run bulletins to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/quill/internal/bulletin"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Notifier implements bulletin.Notifier for Slack.
type Notifier struct {
	client    slackClient
	channelID string
}

// Opts holds parameters for creating a Slack Notifier.
type Opts struct {
	Token     string // xoxb-... Slack bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("slack: bot token is required")
		}
		client = slackapi.New(opts.Token)
	}
	return &Notifier{client: client, channelID: opts.ChannelID}, nil
}

func (n *Notifier) Name() string { return "slack" }

// Notify posts b as a single attachment with a plain text fallback.
func (n *Notifier) Notify(ctx context.Context, b bulletin.Bulletin) error {
	options := buildMessageOptions(b)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := n.client.PostMessage(n.channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func buildMessageOptions(b bulletin.Bulletin) []slackapi.MsgOption {
	return []slackapi.MsgOption{
		slackapi.MsgOptionAttachments(toAttachment(b)),
		slackapi.MsgOptionText(b.Title, false),
	}
}

func toAttachment(b bulletin.Bulletin) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    b.Title,
		Text:     b.Body,
		Color:    b.Color,
		Fallback: b.Text(),
	}
	for _, f := range b.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
