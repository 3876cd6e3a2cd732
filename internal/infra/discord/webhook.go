package discord

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"npc_respawn_tracker/internal/domain/npc"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

var ErrInvalidWebhookURL = errors.New("invalid discord webhook url")

const (
	colorApproaching = 0xF1C40F
	colorUp          = 0x2ECC71
)

// WebhookExecutor is the part of *discordgo.Session used to post messages.
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// WebhookNotifier posts respawn notifications to a single Discord channel webhook.
type WebhookNotifier struct {
	session  WebhookExecutor
	id       string
	token    string
	username string
	logger   *logrus.Entry
}

// NewWebhookNotifier builds a notifier for a URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewWebhookNotifier(webhookURL string, logger *logrus.Entry) (*WebhookNotifier, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution authenticates with the token in the path, so no bot token is needed.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newWebhookNotifier(session, id, token, logger), nil
}

func newWebhookNotifier(session WebhookExecutor, id, token string, logger *logrus.Entry) *WebhookNotifier {
	return &WebhookNotifier{session: session, id: id, token: token, username: "Respawn Tracker", logger: logger}
}

// ParseWebhookURL extracts the webhook id and token.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidWebhookURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("%w: scheme %q", ErrInvalidWebhookURL, u.Scheme)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" {
			id, token = parts[i+1], parts[i+2]
			break
		}
	}
	if id == "" || token == "" {
		return "", "", fmt.Errorf("%w: missing id or token", ErrInvalidWebhookURL)
	}
	return id, token, nil
}

// Deliver posts one message per notification regardless of how many users subscribed.
func (w *WebhookNotifier) Deliver(ctx context.Context, n npc.Notification) error {
	params := &discordgo.WebhookParams{
		Username: w.username,
		Embeds:   []*discordgo.MessageEmbed{notificationEmbed(n)},
	}
	if _, err := w.session.WebhookExecute(w.id, w.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("execute discord webhook: %w", err)
	}
	w.logger.WithFields(logrus.Fields{
		"definition_id": n.DefinitionID,
		"kind":          n.Kind,
	}).Debug("Posted notification to Discord")
	return nil
}

func notificationEmbed(n npc.Notification) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s (%s)", n.NPCName, npc.VariantLabel(n.IsInstance)),
		Description: n.Text(),
		Timestamp:   n.KilledAt.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Zone", Value: n.ZoneName, Inline: true},
		},
	}
	switch n.Kind {
	case npc.KindWindowApproaching:
		embed.Color = colorApproaching
		if n.Window.HasOpen() {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Opens", Value: discordTimestamp(n.Window.OpensAt), Inline: true})
		}
	case npc.KindNowUp:
		embed.Color = colorUp
	}
	if n.Window.HasClose() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Closes", Value: discordTimestamp(n.Window.ClosesAt), Inline: true})
	}
	return embed
}

// discordTimestamp renders a time that each Discord client shows in its own timezone.
func discordTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}
