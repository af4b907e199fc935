// Package mattermost renders giveaway events as Mattermost webhook messages.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/giveaway-engine/internal/config"
	"github.com/aimd54/giveaway-engine/internal/service/giveaway"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

const (
	botUsername = "Giveaway Bot"

	colorActive    = "#2389D7"
	colorEnded     = "#3DB887"
	colorCancelled = "#D24B4E"
)

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// Notify posts the rendering of a giveaway event. Events without a public
// rendering are skipped.
func (c *Client) Notify(ctx context.Context, event giveaway.Event) error {
	msg, ok := Render(event)
	if !ok {
		return nil
	}
	return c.SendMessage(ctx, msg)
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// Render builds the message announcing an event. Per-participant events
// (entries, leaves, weight adjustments, edits) are not announced.
func Render(event giveaway.Event) (*Message, bool) {
	g := event.Giveaway
	if g == nil {
		return nil, false
	}

	var att Attachment
	switch event.Type {
	case giveaway.EventCreated:
		att = Attachment{
			Color:   colorActive,
			Pretext: "🎉 **New giveaway!**",
			Title:   g.Title,
			Text:    g.Description,
			Fields: []Field{
				{Short: true, Title: "Prize", Value: g.Prize},
				{Short: true, Title: "Winners", Value: fmt.Sprintf("%d", g.WinnerCount)},
				{Short: true, Title: "Ends", Value: g.EndsAt.UTC().Format(time.RFC1123)},
				{Short: true, Title: "Host", Value: mention(g.HostID)},
			},
		}
		if req := describeRequirements(g.Requirements.MinLevel, len(g.Requirements.RequiredRoles), g.Requirements.RequireVoice); req != "" {
			att.Fields = append(att.Fields, Field{Title: "Requirements", Value: req})
		}

	case giveaway.EventEnded:
		att = Attachment{
			Color:   colorEnded,
			Pretext: "🏆 **Giveaway ended**",
			Title:   g.Title,
			Fields: []Field{
				{Short: true, Title: "Prize", Value: g.Prize},
				{Short: true, Title: "Participants", Value: fmt.Sprintf("%d", event.Participants)},
			},
		}
		if len(event.Winners) == 0 {
			att.Text = "No one entered, so no winners were drawn."
		} else {
			att.Text = "Congratulations " + mentions(event.Winners) + "!"
		}

	case giveaway.EventRerolled:
		att = Attachment{
			Color:   colorEnded,
			Pretext: "🎲 **Giveaway rerolled**",
			Title:   g.Title,
			Text:    "New winners: " + mentions(event.Winners),
			Footer:  fmt.Sprintf("Reroll #%d", g.RerollCount),
		}

	case giveaway.EventCancelled:
		att = Attachment{
			Color:   colorCancelled,
			Pretext: "🚫 **Giveaway cancelled**",
			Title:   g.Title,
		}
		if event.Reason != "" {
			att.Text = "Reason: " + event.Reason
		}

	case giveaway.EventClaimed:
		att = Attachment{
			Color: colorEnded,
			Title: g.Title,
			Text:  fmt.Sprintf("%s claimed **%s**", mention(event.ParticipantID), g.Prize),
		}

	default:
		return nil, false
	}

	att.Fallback = fmt.Sprintf("Giveaway %s: %s", event.Type, g.Title)
	return &Message{
		Username:    botUsername,
		Attachments: []Attachment{att},
	}, true
}

func describeRequirements(minLevel, roles int, voice bool) string {
	var parts []string
	if minLevel > 0 {
		parts = append(parts, fmt.Sprintf("level %d+", minLevel))
	}
	if roles > 0 {
		parts = append(parts, "one of the required roles")
	}
	if voice {
		parts = append(parts, "in a voice channel")
	}
	return strings.Join(parts, ", ")
}

func mention(userID string) string {
	return "@" + userID
}

func mentions(userIDs []string) string {
	out := make([]string, len(userIDs))
	for i, id := range userIDs {
		out[i] = mention(id)
	}
	return strings.Join(out, ", ")
}
