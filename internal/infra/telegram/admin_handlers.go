package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"npc_respawn_tracker/internal/app"
	idb "npc_respawn_tracker/internal/infra/database"
	"npc_respawn_tracker/internal/infra/gamedb"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// maxLogUploadBytes is the largest log accepted; larger uploads are rejected whole.
const maxLogUploadBytes = 20 << 20

var msgLogTooLarge = fmt.Sprintf("The file is larger than %d MB and was not processed. Split the log and upload the parts.", maxLogUploadBytes>>20)

const msgUnauthorized = "Error: you are not allowed to run this command."

// AdminServices bundles what the admin commands need.
type AdminServices struct {
	Definitions    *app.DefinitionService
	Clarifications *app.ClarificationService
	Ingest         *app.IngestService
}

// RegisterAdminHandlers registers definition management, manual kills and log uploads.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, svc AdminServices, adminTelegramID, guildID int64, baseLogger *logrus.Entry) {
	adminOnly := func(command string, h func(c telebot.Context, log *logrus.Entry) error) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			if c.Sender().ID != adminTelegramID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			handlerLogger.Info("Command received")
			return h(c, handlerLogger)
		}
	}

	b.Handle("/npcs", func(c telebot.Context) error {
		defs, err := svc.Definitions.List(ctx, guildID)
		if err != nil {
			baseLogger.WithError(err).Error("Failed to list definitions")
			return c.Send("Could not load NPC definitions, please try again later.")
		}
		if len(defs) == 0 {
			return c.Send("No NPCs are tracked yet.")
		}
		var response strings.Builder
		response.WriteString("Tracked NPCs:\n")
		for _, d := range defs {
			response.WriteString(formatDefinition(d))
			response.WriteString("\n")
		}
		return c.Send(response.String())
	})

	b.Handle("/add_npc", adminOnly("/add_npc", func(c telebot.Context, log *logrus.Entry) error {
		def, err := parseDefinitionArgs(c.Message().Payload)
		if err != nil {
			return c.Send("Invalid format. /add_npc " + err.Error())
		}
		def.GuildID = guildID
		created, err := svc.Definitions.Create(ctx, c.Sender().ID, def)
		if err != nil {
			return c.Send(definitionErrorText(err, log))
		}
		log.WithField("definition_id", created.ID).Info("Definition added")
		return c.Send("Added " + formatDefinition(created))
	}))

	b.Handle("/edit_npc", adminOnly("/edit_npc", func(c telebot.Context, log *logrus.Entry) error {
		idPart, rest, found := strings.Cut(c.Message().Payload, " ")
		if !found {
			return c.Send("Invalid format. /edit_npc <id> " + errBadDefinitionArgs.Error())
		}
		id, err := parseID(idPart)
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		def, err := parseDefinitionArgs(rest)
		if err != nil {
			return c.Send("Invalid format. /edit_npc <id> " + err.Error())
		}
		def.ID = id
		def.GuildID = guildID
		updated, err := svc.Definitions.Update(ctx, c.Sender().ID, def)
		if err != nil {
			return c.Send(definitionErrorText(err, log))
		}
		return c.Send("Updated " + formatDefinition(updated))
	}))

	b.Handle("/remove_npc", adminOnly("/remove_npc", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid format. Use: /remove_npc <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		if err := svc.Definitions.Delete(ctx, c.Sender().ID, id); err != nil {
			return c.Send(definitionErrorText(err, log))
		}
		return c.Send(fmt.Sprintf("NPC #%d removed together with its kills and subscriptions.", id))
	}))

	b.Handle("/suggest_respawn", adminOnly("/suggest_respawn", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Invalid format. Use: /suggest_respawn <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		def, minM, maxM, err := svc.Definitions.SuggestRespawn(ctx, c.Sender().ID, id)
		switch {
		case errors.Is(err, gamedb.ErrNotConfigured):
			return c.Send("The game database is not configured.")
		case errors.Is(err, gamedb.ErrSpawnNotFound):
			return c.Send("The game database has no spawn point for this NPC.")
		case err != nil:
			return c.Send(definitionErrorText(err, log))
		}
		return c.Send(fmt.Sprintf("Game spawn timing: %d-%d min.\n%s", minM, maxM, formatDefinition(def)))
	}))

	b.Handle("/kill", adminOnly("/kill", func(c telebot.Context, log *logrus.Entry) error {
		// /kill <id> [instance|open] [RFC3339 time]
		args := c.Args()
		if len(args) < 1 || len(args) > 3 {
			return c.Send("Invalid format. Use: /kill <id> [instance|open] [2006-01-02T15:04:05Z]")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: " + err.Error())
		}
		mk := app.ManualKill{DefinitionID: id, KilledAt: time.Now().UTC(), Killer: c.Sender().Username}
		for _, arg := range args[1:] {
			if ts, err := time.Parse(time.RFC3339, arg); err == nil {
				mk.KilledAt = ts
				continue
			}
			if mk.IsInstance, err = parseVariant(arg); err != nil {
				return c.Send("Error: " + err.Error())
			}
		}
		kill, created, err := svc.Definitions.RecordManualKill(ctx, c.Sender().ID, mk)
		if err != nil {
			return c.Send(definitionErrorText(err, log))
		}
		if !created {
			return c.Send("This kill was already recorded.")
		}
		return c.Send(fmt.Sprintf("Kill #%d recorded at %s.", kill.ID, kill.KilledAt.UTC().Format(timeLayout)))
	}))

	b.Handle(telebot.OnDocument, adminOnly("upload", func(c telebot.Context, log *logrus.Entry) error {
		doc := c.Message().Document
		if doc == nil {
			return nil
		}
		log = log.WithField("file_name", doc.FileName)
		if doc.FileSize > maxLogUploadBytes {
			return c.Send(msgLogTooLarge)
		}
		reader, err := c.Bot().File(&doc.File)
		if err != nil {
			log.WithError(err).Error("Failed to download log file")
			return c.Send("Could not download the file.")
		}
		defer reader.Close()
		text, err := readLogUpload(reader, maxLogUploadBytes)
		if errors.Is(err, errLogTooLarge) {
			log.Warn("Log upload rejected: too large")
			return c.Send(msgLogTooLarge)
		}
		if err != nil {
			log.WithError(err).Error("Failed to read log file")
			return c.Send("Could not read the file.")
		}

		report, err := svc.Ingest.IngestLog(ctx, app.LogUpload{
			GuildID:    guildID,
			Text:       text,
			ReceivedAt: c.Message().Time().UTC(),
		})
		if err != nil {
			log.WithError(err).Error("Failed to ingest log")
			return c.Send("Failed to process the log: " + err.Error())
		}
		return c.Send(formatIngestReport(report))
	}))
}

var errLogTooLarge = errors.New("log upload too large")

// readLogUpload reads the whole upload. A file over limit is rejected rather than
// cut, which could split a line and drop the tail of the log.
func readLogUpload(r io.Reader, limit int64) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(raw)) > limit {
		return "", errLogTooLarge
	}
	return string(raw), nil
}

// definitionErrorText maps service errors to replies; unexpected ones are logged.
func definitionErrorText(err error, log *logrus.Entry) string {
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return msgUnauthorized
	case errors.Is(err, idb.ErrDefinitionNotFound):
		return "Error: NPC not found."
	case errors.Is(err, idb.ErrDuplicateDefinition):
		return "Error: this NPC already exists in that zone."
	case errors.Is(err, app.ErrInvalidRespawnRange),
		errors.Is(err, app.ErrEmptyNPCName),
		errors.Is(err, app.ErrVariantRequired),
		errors.Is(err, app.ErrDefinitionGuildMismatch):
		return "Error: " + err.Error() + "."
	}
	log.WithError(err).Error("Command failed")
	return "An error occurred: " + err.Error()
}
