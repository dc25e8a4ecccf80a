package bot

import (
	"context"
	"fmt"
	"log/slog"

	"telegram-join-approve-bot/storage"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

const (
	msgOnlyAdmins  = "Only Admins!"
	msgDatabaseErr = "Error: Database error. Try again later."
	msgNeedTarget  = "Send this command in your group, or pass the chat id first, e.g. %s -1001234567890"
	usageStart     = "Auto-approve bot is active.\n\n" +
		"Add me as an admin with the \"invite users\" right to a channel or group with join requests, " +
		"I will approve them and welcome every new member in private.\n\n" +
		"Admin commands (in the group, or here with the chat id as first argument):\n" +
		"/settext <message> - change the welcome text, {name} and {title} are replaced\n" +
		"/setbuttons <rows> - one row per line, \"Label - https://url\", buttons in a row split by |\n" +
		"/setphoto, /setvideo, /setvoice - send the media with this caption\n" +
		"/toggle - turn auto-approve on or off\n" +
		"/stats - join counters\n" +
		"/panel - settings panel\n\n" +
		"Example:\n/settext Hello {name}! Welcome to {title}"
)

type mediaCommand struct {
	field storage.Field
	kind  string
}

var mediaByCommand = map[string]mediaCommand{
	"setphoto": {field: storage.FieldPhotoRef, kind: "photo"},
	"setvideo": {field: storage.FieldVideoRef, kind: "video"},
	"setvoice": {field: storage.FieldVoiceRef, kind: "voice"},
}

func mediaCommands() []string {
	return []string{"setphoto", "setvideo", "setvoice"}
}

func (b *Bot) startHandler(ctx *th.Context, msg telego.Message) error {
	slog.Info("bot: /start")

	b.reply(ctx, msg.Chat.ID, usageStart)
	return nil
}

// adminTarget resolves the target chat of a settings command, ensures the
// settings record exists and the sender administers that chat. The
// returned bool is false when the command was already answered.
func (b *Bot) adminTarget(ctx context.Context, msg telego.Message, command, payload string) (int64, string, bool) {
	chatID, rest, ok := targetChat(msg, payload)
	if !ok {
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf(msgNeedTarget, "/"+command))
		return 0, "", false
	}

	if !b.messageFromAdmin(ctx, msg, chatID) {
		b.reply(ctx, msg.Chat.ID, msgOnlyAdmins)
		return 0, "", false
	}

	if _, err := b.settings.GetOrCreate(ctx, chatID); err != nil {
		b.metrics.IncStoreErrors("get_settings")
		slog.Error("bot: Cannot load chat settings", "error", err, "chat_id", chatID)
		b.reply(ctx, msg.Chat.ID, msgDatabaseErr)
		return 0, "", false
	}

	return chatID, rest, true
}

func (b *Bot) setTextHandler(ctx *th.Context, msg telego.Message) error {
	slog.Info("bot: /settext")

	_ = b.setText(ctx, msg)
	return nil
}

func (b *Bot) setText(ctx context.Context, msg telego.Message) error {
	_, payload := splitCommand(msg.Text)
	chatID, text, ok := b.adminTarget(ctx, msg, "settext", payload)
	if !ok {
		return nil
	}

	if text == "" {
		b.reply(ctx, msg.Chat.ID, "Usage: /settext <your message>")
		return nil
	}

	return b.updateSetting(ctx, msg.Chat.ID, chatID, storage.FieldWelcomeText, text, "Custom text updated!")
}

func (b *Bot) setButtonsHandler(ctx *th.Context, msg telego.Message) error {
	slog.Info("bot: /setbuttons")

	_ = b.setButtons(ctx, msg)
	return nil
}

func (b *Bot) setButtons(ctx context.Context, msg telego.Message) error {
	_, payload := splitCommand(msg.Text)
	chatID, layout, ok := b.adminTarget(ctx, msg, "setbuttons", payload)
	if !ok {
		return nil
	}

	rows, err := parseButtons(layout)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Error: %v\nUsage: /setbuttons Label - https://url | Other - https://url", err))
		return nil
	}

	done := "Buttons updated!"
	if len(rows) == 0 {
		done = "Buttons removed!"
	}
	return b.updateSetting(ctx, msg.Chat.ID, chatID, storage.FieldButtons, rows, done)
}

func (b *Bot) setMediaHandler(ctx *th.Context, msg telego.Message) error {
	_ = b.setMedia(ctx, msg)
	return nil
}

func (b *Bot) setMedia(ctx context.Context, msg telego.Message) error {
	cmd, payload := splitCommand(msg.Caption)
	media, known := mediaByCommand[cmd]
	if !known {
		return nil
	}
	slog.Info("bot: /" + cmd)

	chatID, _, ok := b.adminTarget(ctx, msg, cmd, payload)
	if !ok {
		return nil
	}

	fileID := mediaFileID(msg, media.kind)
	if fileID == "" {
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Please send a %s with caption /%s", media.kind, cmd))
		return nil
	}

	return b.updateSetting(ctx, msg.Chat.ID, chatID, media.field, fileID, "Welcome "+media.kind+" updated!")
}

// mediaFileID picks the largest photo size or the attached video or voice
func mediaFileID(msg telego.Message, kind string) string {
	switch kind {
	case "photo":
		if len(msg.Photo) > 0 {
			return msg.Photo[len(msg.Photo)-1].FileID
		}
	case "video":
		if msg.Video != nil {
			return msg.Video.FileID
		}
	case "voice":
		if msg.Voice != nil {
			return msg.Voice.FileID
		}
	}
	return ""
}

func (b *Bot) toggleHandler(ctx *th.Context, msg telego.Message) error {
	slog.Info("bot: /toggle")

	_ = b.toggle(ctx, msg)
	return nil
}

func (b *Bot) toggle(ctx context.Context, msg telego.Message) error {
	_, payload := splitCommand(msg.Text)
	chatID, _, ok := b.adminTarget(ctx, msg, "toggle", payload)
	if !ok {
		return nil
	}

	enabled, err := b.toggleEnabled(ctx, chatID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, msgDatabaseErr)
		return err
	}

	b.reply(ctx, msg.Chat.ID, "Auto-approve is now "+onOff(enabled)+".")
	return nil
}

// toggleEnabled flips the enabled flag and returns the new value
func (b *Bot) toggleEnabled(ctx context.Context, chatID int64) (bool, error) {
	settings, err := b.settings.GetOrCreate(ctx, chatID)
	if err != nil {
		b.metrics.IncStoreErrors("get_settings")
		slog.Error("bot: Cannot load chat settings", "error", err, "chat_id", chatID)
		return false, err
	}

	enabled := !settings.Enabled
	if err := b.settings.UpdateField(ctx, chatID, storage.FieldEnabled, enabled); err != nil {
		b.metrics.IncStoreErrors("update_settings")
		slog.Error("bot: Failed to toggle chat", "error", err, "chat_id", chatID)
		return false, err
	}

	b.metrics.IncAdminActions("toggle")
	slog.Info("bot: Auto-approve toggled", "chat_id", chatID, "enabled", enabled)
	return enabled, nil
}

func (b *Bot) statsHandler(ctx *th.Context, msg telego.Message) error {
	slog.Info("bot: /stats")

	_ = b.showStats(ctx, msg)
	return nil
}

func (b *Bot) showStats(ctx context.Context, msg telego.Message) error {
	_, payload := splitCommand(msg.Text)
	chatID, _, ok := b.adminTarget(ctx, msg, "stats", payload)
	if !ok {
		return nil
	}

	text, err := b.statsText(ctx, chatID)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, msgDatabaseErr)
		return err
	}

	b.reply(ctx, msg.Chat.ID, text)
	return nil
}

func (b *Bot) statsText(ctx context.Context, chatID int64) (string, error) {
	stats, err := b.stats.Read(ctx, chatID)
	if err != nil {
		b.metrics.IncStoreErrors("read_stats")
		slog.Error("bot: Failed to read stats", "error", err, "chat_id", chatID)
		return "", err
	}

	return fmt.Sprintf("Join stats\nTotal approved: %d\nToday: %d", stats.Total, stats.Today), nil
}

func (b *Bot) updateSetting(ctx context.Context, replyTo, chatID int64, field storage.Field, value any, done string) error {
	if err := b.settings.UpdateField(ctx, chatID, field, value); err != nil {
		b.metrics.IncStoreErrors("update_settings")
		slog.Error("bot: Failed to update settings", "error", err, "chat_id", chatID, "field", field)
		b.reply(ctx, replyTo, msgDatabaseErr)
		return err
	}

	b.metrics.IncAdminActions(string(field))
	slog.Info("bot: Settings updated", "chat_id", chatID, "field", field)
	b.reply(ctx, replyTo, done)
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}
