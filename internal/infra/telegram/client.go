// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	"npc_respawn_tracker/internal/domain/npc"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Client sends direct messages to Telegram users.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// TelebotAdapter implements Client on top of a telebot.Bot.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	_, err := tba.bot.Send(&telebot.User{ID: recipientChatID}, text, options)
	return err
}

// Notifier delivers respawn notifications as direct messages, one per recipient.
// It fails only when no recipient could be reached.
type Notifier struct {
	client Client
	logger *logrus.Entry
}

func NewNotifier(client Client, logger *logrus.Entry) *Notifier {
	return &Notifier{client: client, logger: logger}
}

func (n *Notifier) Deliver(ctx context.Context, notification npc.Notification) error {
	if len(notification.Recipients) == 0 {
		return nil
	}
	text := notification.Text()
	var errs []error
	for _, userID := range notification.Recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.client.SendMessage(userID, text, nil); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":       userID,
				"definition_id": notification.DefinitionID,
			}).Warn("Failed to send respawn notification")
			errs = append(errs, fmt.Errorf("user %d: %w", userID, err))
		}
	}
	if len(errs) == len(notification.Recipients) {
		return errors.Join(errs...)
	}
	return nil
}
