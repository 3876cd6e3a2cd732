package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"npc_respawn_tracker/internal/app"
	"npc_respawn_tracker/internal/domain/npc"
	idb "npc_respawn_tracker/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Inline button endpoints of the clarification queue. Payloads are "|"-joined.
var (
	btnAccept  = &telebot.Btn{Unique: "clr_accept"}  // clarificationID|definitionID|variant
	btnNew     = &telebot.Btn{Unique: "clr_new"}     // clarificationID
	btnDismiss = &telebot.Btn{Unique: "clr_dismiss"} // clarificationID
)

// RegisterClarificationHandlers registers the admin clarification queue.
func RegisterClarificationHandlers(ctx context.Context, b *telebot.Bot, clarifications *app.ClarificationService, definitions *app.DefinitionService, adminTelegramID, guildID int64, baseLogger *logrus.Entry) {
	b.Handle("/clarifications", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{"handler": "/clarifications", "sender_id": c.Sender().ID})
		live, err := clarifications.ListLive(ctx, c.Sender().ID, guildID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			handlerLogger.WithError(err).Error("Failed to list clarifications")
			return c.Send("Could not load the clarification queue.")
		}
		if len(live) == 0 {
			return c.Send("No kills need clarification.")
		}
		handlerLogger.WithField("count", len(live)).Info("Sending clarification queue")
		for _, clar := range live {
			markup, err := clarificationMarkup(ctx, definitions, clar, guildID)
			if err != nil {
				handlerLogger.WithError(err).WithField("clarification_id", clar.ID).Warn("Failed to build resolution buttons")
			}
			if err := c.Send(formatClarification(clar), &telebot.SendOptions{ReplyMarkup: markup}); err != nil {
				return err
			}
		}
		return nil
	})

	b.Handle("/resolve", func(c telebot.Context) error {
		// /resolve <clarificationID> <definitionID|new> [instance|open]
		args := c.Args()
		if len(args) < 2 || len(args) > 3 {
			return c.Send("Invalid format. Use: /resolve <clarification id> <npc id|new> [instance|open]")
		}
		req, err := parseResolveArgs(args)
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		return c.Send(resolve(ctx, clarifications, c.Sender().ID, req, baseLogger))
	})

	b.Handle("/dismiss", func(c telebot.Context) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid format. Use: /dismiss <clarification id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		req := app.ResolveRequest{ClarificationID: id, Action: app.ActionDismiss}
		return c.Send(resolve(ctx, clarifications, c.Sender().ID, req, baseLogger))
	})

	callback := func(parse func(data []string) (app.ResolveRequest, error)) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			if c.Sender().ID != adminTelegramID {
				return c.Respond(&telebot.CallbackResponse{Text: msgUnauthorized})
			}
			req, err := parse(strings.Split(c.Callback().Data, "|"))
			if err != nil {
				c.Bot().OnError(fmt.Errorf("invalid clarification callback %q: %w", c.Callback().Data, err), c)
				return c.Respond(&telebot.CallbackResponse{Text: "Invalid action."})
			}
			text := resolve(ctx, clarifications, c.Sender().ID, req, baseLogger)
			if err := c.Edit(text); err != nil {
				baseLogger.WithError(err).Debug("Could not edit clarification message")
			}
			return c.Respond(&telebot.CallbackResponse{Text: text})
		}
	}

	b.Handle(btnAccept, callback(func(data []string) (app.ResolveRequest, error) {
		if len(data) != 3 {
			return app.ResolveRequest{}, errors.New("want 3 fields")
		}
		return parseResolveArgs(data)
	}))
	b.Handle(btnNew, callback(func(data []string) (app.ResolveRequest, error) {
		if len(data) != 1 {
			return app.ResolveRequest{}, errors.New("want 1 field")
		}
		return parseResolveArgs([]string{data[0], "new"})
	}))
	b.Handle(btnDismiss, callback(func(data []string) (app.ResolveRequest, error) {
		if len(data) != 1 {
			return app.ResolveRequest{}, errors.New("want 1 field")
		}
		id, err := parseID(data[0])
		return app.ResolveRequest{ClarificationID: id, Action: app.ActionDismiss}, err
	}))
}

// parseResolveArgs reads [clarificationID, definitionID|"new", variant?].
func parseResolveArgs(args []string) (app.ResolveRequest, error) {
	id, err := parseID(args[0])
	if err != nil {
		return app.ResolveRequest{}, err
	}
	req := app.ResolveRequest{ClarificationID: id, Action: app.ActionAccept}
	if strings.EqualFold(args[1], "new") {
		req.NewDefinition = &npc.Definition{}
	} else if req.DefinitionID, err = parseID(args[1]); err != nil {
		return app.ResolveRequest{}, err
	}
	if len(args) > 2 {
		if req.IsInstance, err = parseVariant(args[2]); err != nil {
			return app.ResolveRequest{}, err
		}
	}
	return req, nil
}

func resolve(ctx context.Context, clarifications *app.ClarificationService, senderID int64, req app.ResolveRequest, log *logrus.Entry) string {
	log = log.WithFields(logrus.Fields{
		"sender_id":        senderID,
		"clarification_id": req.ClarificationID,
		"action":           req.Action,
	})
	res, err := clarifications.Resolve(ctx, senderID, req)
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		log.Warn("Unauthorized access attempt")
		return msgUnauthorized
	case errors.Is(err, idb.ErrClarificationNotFound):
		return fmt.Sprintf("Clarification #%d not found.", req.ClarificationID)
	case errors.Is(err, app.ErrVariantRequired):
		return "This NPC has an instance version: add instance or open."
	case errors.Is(err, app.ErrInvalidResolution), errors.Is(err, app.ErrDefinitionGuildMismatch), errors.Is(err, idb.ErrDefinitionNotFound):
		return "Error: " + err.Error() + "."
	case err != nil:
		log.WithError(err).Error("Failed to resolve clarification")
		return "An error occurred: " + err.Error()
	}

	if res.AlreadyResolved {
		return fmt.Sprintf("Clarification #%d was already resolved.", req.ClarificationID)
	}
	if req.Action == app.ActionDismiss {
		return fmt.Sprintf("Clarification #%d dismissed.", req.ClarificationID)
	}
	msg := fmt.Sprintf("Clarification #%d accepted as %s", req.ClarificationID, res.Definition.Name)
	if res.Kill != nil {
		msg += fmt.Sprintf(" (%s), kill #%d recorded", npc.VariantLabel(res.Kill.IsInstance), res.Kill.ID)
	}
	return msg + "."
}

// clarificationMarkup offers one button per plausible resolution.
func clarificationMarkup(ctx context.Context, definitions *app.DefinitionService, clar *npc.PendingClarification, guildID int64) (*telebot.ReplyMarkup, error) {
	markup := &telebot.ReplyMarkup{}
	id := strconv.FormatInt(clar.ID, 10)
	var rows []telebot.Row

	switch clar.Type {
	case npc.ClarificationVariantAmbiguous:
		if clar.CandidateDefinitionID.Valid {
			defID := strconv.FormatInt(clar.CandidateDefinitionID.Int64, 10)
			rows = append(rows, markup.Row(
				markup.Data("Instance", btnAccept.Unique, id, defID, "instance"),
				markup.Data("Open world", btnAccept.Unique, id, defID, "open"),
			))
		}
	case npc.ClarificationZoneAmbiguous:
		defs, err := definitions.List(ctx, guildID)
		if err != nil {
			rows = append(rows, markup.Row(markup.Data("Dismiss", btnDismiss.Unique, id)))
			markup.Inline(rows...)
			return markup, err
		}
		rows = append(rows, zoneChoiceRows(markup, clar, defs)...)
	case npc.ClarificationUnknownNPC:
		rows = append(rows, markup.Row(markup.Data("Track as new NPC", btnNew.Unique, id)))
	}
	rows = append(rows, markup.Row(markup.Data("Dismiss", btnDismiss.Unique, id)))
	markup.Inline(rows...)
	return markup, nil
}

// zoneChoiceRows offers each same-name definition. An instanced definition gets
// one button per variant unless the observation already tells which one died.
func zoneChoiceRows(markup *telebot.ReplyMarkup, clar *npc.PendingClarification, defs []*npc.Definition) []telebot.Row {
	id := strconv.FormatInt(clar.ID, 10)
	var rows []telebot.Row
	for _, d := range defs {
		if d.NormalizedName != clar.NormalizedName {
			continue
		}
		defID := strconv.FormatInt(d.ID, 10)
		if !d.HasInstanceVersion || clar.InstanceHint.Valid {
			rows = append(rows, markup.Row(markup.Data(d.ZoneLabel(), btnAccept.Unique, id, defID, "")))
			continue
		}
		rows = append(rows, markup.Row(
			markup.Data(d.ZoneLabel()+" (instance)", btnAccept.Unique, id, defID, "instance"),
			markup.Data(d.ZoneLabel()+" (open world)", btnAccept.Unique, id, defID, "open"),
		))
	}
	return rows
}
