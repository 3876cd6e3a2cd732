// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"npc_respawn_tracker/internal/app"
	"npc_respawn_tracker/internal/domain/npc"
	idb "npc_respawn_tracker/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// defaultLeadMinutes is used when /subscribe omits the lead time.
const defaultLeadMinutes = 15

// UserServices bundles what the public commands need.
type UserServices struct {
	Subscriptions *app.SubscriptionService
	Notifications *app.NotificationService
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	svc UserServices,
	adminTelegramID, guildID int64,
	baseLogger *logrus.Entry,
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithFields(logrus.Fields{"command": "/start", "sender_id": senderID}).Info("Processing /start command")
		if senderID == adminTelegramID {
			return c.Send(fmt.Sprintf("Hello, %s! You are the tracker administrator. Use /help for the command list.", c.Sender().FirstName))
		}
		return c.Send("Hello! I track NPC kills and tell you when respawn windows open. Use /npcs to see tracked NPCs and /help for commands.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithFields(logrus.Fields{"command": "/help", "sender_id": senderID}).Info("Processing /help command")

		var helpText strings.Builder
		helpText.WriteString("Commands:\n\n")
		helpText.WriteString("`/npcs`\n - List tracked NPCs.\n\n")
		helpText.WriteString("`/timers`\n - Show current respawn windows.\n\n")
		helpText.WriteString("`/subscribe <npc id> [instance|open] [minutes]`\n - Get a message before the window opens (default 15 min) and when it is up.\n\n")
		helpText.WriteString("`/unsubscribe <npc id> [instance|open]`\n - Stop notifications.\n\n")
		helpText.WriteString("`/subscriptions`\n - List your subscriptions.\n\n")
		if senderID == adminTelegramID {
			helpText.WriteString("Administrator:\n\n")
			helpText.WriteString("`/add_npc <name> | [zone] | [min] | [max] | [raid,instance]`\n - Track a new NPC.\n\n")
			helpText.WriteString("`/edit_npc <id> <name> | [zone] | [min] | [max] | [raid,instance]`\n - Change an NPC.\n\n")
			helpText.WriteString("`/remove_npc <id>`\n - Stop tracking an NPC.\n\n")
			helpText.WriteString("`/suggest_respawn <id>`\n - Fill respawn minutes from the game database.\n\n")
			helpText.WriteString("`/kill <id> [instance|open] [time]`\n - Record a kill by hand.\n\n")
			helpText.WriteString("`/clarifications`\n - Review kills that could not be matched.\n\n")
			helpText.WriteString("`/resolve <clarification id> <npc id|new> [instance|open]`, `/dismiss <clarification id>`\n\n")
			helpText.WriteString("Send a log file as a document to import kills from it.")
		}
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})

	b.Handle("/subscribe", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{"handler": "/subscribe", "sender_id": c.Sender().ID})
		args := c.Args()
		if len(args) < 1 || len(args) > 3 {
			return c.Send("Invalid format. Use: /subscribe <npc id> [instance|open] [minutes]")
		}
		defID, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		isInstance := false
		lead := defaultLeadMinutes
		for _, arg := range args[1:] {
			if n, convErr := strconv.Atoi(arg); convErr == nil {
				lead = n
				continue
			}
			v, err := parseVariant(arg)
			if err != nil {
				return c.Send("Error: " + err.Error())
			}
			if v != nil {
				isInstance = *v
			}
		}

		sub, err := svc.Subscriptions.Subscribe(ctx, c.Sender().ID, defID, isInstance, lead)
		switch {
		case errors.Is(err, idb.ErrDefinitionNotFound):
			return c.Send("Error: NPC not found.")
		case errors.Is(err, app.ErrInvalidLeadTime), errors.Is(err, app.ErrNoInstanceVersion):
			return c.Send("Error: " + err.Error() + ".")
		case err != nil:
			log.WithError(err).Error("Failed to subscribe")
			return c.Send("Could not save the subscription, please try again later.")
		}
		return c.Send(fmt.Sprintf("Subscribed to NPC #%d (%s), %d min before the window opens.", sub.DefinitionID, npc.VariantLabel(sub.IsInstance), sub.NotifyMinutes))
	})

	b.Handle("/unsubscribe", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{"handler": "/unsubscribe", "sender_id": c.Sender().ID})
		args := c.Args()
		if len(args) < 1 || len(args) > 2 {
			return c.Send("Invalid format. Use: /unsubscribe <npc id> [instance|open]")
		}
		defID, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		isInstance := false
		if len(args) == 2 {
			v, err := parseVariant(args[1])
			if err != nil {
				return c.Send("Error: " + err.Error())
			}
			if v != nil {
				isInstance = *v
			}
		}
		err = svc.Subscriptions.Unsubscribe(ctx, c.Sender().ID, defID, isInstance)
		switch {
		case errors.Is(err, idb.ErrSubscriptionNotFound):
			return c.Send("You are not subscribed to that NPC.")
		case err != nil:
			log.WithError(err).Error("Failed to unsubscribe")
			return c.Send("Could not update the subscription, please try again later.")
		}
		return c.Send(fmt.Sprintf("Notifications for NPC #%d (%s) are off.", defID, npc.VariantLabel(isInstance)))
	})

	b.Handle("/subscriptions", func(c telebot.Context) error {
		subs, err := svc.Subscriptions.ListForUser(ctx, c.Sender().ID)
		if err != nil {
			baseLogger.WithError(err).WithField("sender_id", c.Sender().ID).Error("Failed to list subscriptions")
			return c.Send("Could not load your subscriptions, please try again later.")
		}
		var response strings.Builder
		for _, s := range subs {
			if !s.Enabled {
				continue
			}
			fmt.Fprintf(&response, "NPC #%d (%s), %d min ahead\n", s.DefinitionID, npc.VariantLabel(s.IsInstance), s.NotifyMinutes)
		}
		if response.Len() == 0 {
			return c.Send("You have no active subscriptions.")
		}
		return c.Send("Your subscriptions:\n" + response.String())
	})

	b.Handle("/timers", func(c telebot.Context) error {
		timers, err := svc.Notifications.ListTimers(ctx, guildID)
		if err != nil {
			baseLogger.WithError(err).Error("Failed to list timers")
			return c.Send("Could not load timers, please try again later.")
		}
		if len(timers) == 0 {
			return c.Send("No kills recorded yet.")
		}
		now := time.Now().UTC()
		var response strings.Builder
		for _, t := range timers {
			response.WriteString(formatTimer(t, now))
			response.WriteString("\n")
		}
		return c.Send(response.String())
	})
}
