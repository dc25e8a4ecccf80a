package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"telegram-join-approve-bot/storage"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	panelPrefix = "panel:"

	panelToggle  = "toggle"
	panelStats   = "stats"
	panelPreview = "preview"
	panelClose   = "close"
)

func panelData(action string, chatID int64) string {
	return panelPrefix + action + ":" + strconv.FormatInt(chatID, 10)
}

// parsePanelData splits "panel:<action>:<chat_id>"
func parsePanelData(data string) (string, int64, bool) {
	rest, found := strings.CutPrefix(data, panelPrefix)
	if !found {
		return "", 0, false
	}

	action, rawID, found := strings.Cut(rest, ":")
	if !found {
		return "", 0, false
	}

	chatID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return action, chatID, true
}

func panelKeyboard(chatID int64, enabled bool) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Auto-approve: "+onOff(enabled)).WithCallbackData(panelData(panelToggle, chatID)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Stats").WithCallbackData(panelData(panelStats, chatID)),
			tu.InlineKeyboardButton("Preview").WithCallbackData(panelData(panelPreview, chatID)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Close").WithCallbackData(panelData(panelClose, chatID)),
		),
	)
}

func panelText(s *storage.ChatSettings) string {
	media := func(ref string) string {
		if ref == "" {
			return "none"
		}
		return "set"
	}

	return fmt.Sprintf(
		"Welcome settings for chat %d\n\n"+
			"Auto-approve: %s\n"+
			"Photo: %s\nVideo: %s\nVoice: %s\n\n"+
			"Text:\n%s\n\n"+
			"Buttons:\n%s",
		s.ChatID,
		onOff(s.Enabled),
		media(s.PhotoRef), media(s.VideoRef), media(s.VoiceRef),
		s.WelcomeText,
		formatButtons(s.Buttons),
	)
}

func (b *Bot) panelHandler(ctx *th.Context, msg telego.Message) error {
	slog.Info("bot: /panel")

	_ = b.openPanel(ctx, msg)
	return nil
}

func (b *Bot) openPanel(ctx context.Context, msg telego.Message) error {
	_, payload := splitCommand(msg.Text)
	chatID, _, ok := b.adminTarget(ctx, msg, "panel", payload)
	if !ok {
		return nil
	}

	settings, err := b.settings.GetOrCreate(ctx, chatID)
	if err != nil {
		b.metrics.IncStoreErrors("get_settings")
		slog.Error("bot: Cannot load chat settings", "error", err, "chat_id", chatID)
		b.reply(ctx, msg.Chat.ID, msgDatabaseErr)
		return err
	}

	message := tu.Message(tu.ID(msg.Chat.ID), panelText(settings)).
		WithReplyMarkup(panelKeyboard(chatID, settings.Enabled))
	if _, err := b.gw.SendMessage(ctx, message); err != nil {
		slog.Error("bot: Failed to send panel", "error", err, "chat_id", msg.Chat.ID)
		return err
	}

	return nil
}

func (b *Bot) panelCallbackHandler(ctx *th.Context, query telego.CallbackQuery) error {
	_ = b.handlePanelCallback(ctx, query)
	return nil
}

func (b *Bot) handlePanelCallback(ctx context.Context, query telego.CallbackQuery) error {
	action, chatID, ok := parsePanelData(query.Data)
	if !ok {
		b.answer(ctx, query.ID, "Unknown action", false)
		return nil
	}

	admin, err := b.isAdmin(ctx, chatID, query.From.ID)
	if err != nil {
		slog.Warn("bot: Admin check failed", "error", err, "chat_id", chatID, "user_id", query.From.ID)
	}
	if !admin {
		b.answer(ctx, query.ID, msgOnlyAdmins, true)
		return nil
	}

	slog.Info("bot: Panel action", "action", action, "chat_id", chatID, "user_id", query.From.ID)

	switch action {
	case panelToggle:
		enabled, err := b.toggleEnabled(ctx, chatID)
		if err != nil {
			b.answer(ctx, query.ID, msgDatabaseErr, true)
			return err
		}
		b.refreshPanel(ctx, query, chatID)
		b.answer(ctx, query.ID, "Auto-approve "+onOff(enabled), false)

	case panelStats:
		text, err := b.statsText(ctx, chatID)
		if err != nil {
			b.answer(ctx, query.ID, msgDatabaseErr, true)
			return err
		}
		b.answer(ctx, query.ID, text, true)

	case panelPreview:
		return b.previewWelcome(ctx, query, chatID)

	case panelClose:
		b.editPanel(ctx, query, "Panel closed.", nil)
		b.answer(ctx, query.ID, "", false)

	default:
		b.answer(ctx, query.ID, "Unknown action", false)
	}

	return nil
}

// previewWelcome sends the welcome of chatID to the admin who asked
func (b *Bot) previewWelcome(ctx context.Context, query telego.CallbackQuery, chatID int64) error {
	settings, err := b.settings.GetOrCreate(ctx, chatID)
	if err != nil {
		b.metrics.IncStoreErrors("get_settings")
		b.answer(ctx, query.ID, msgDatabaseErr, true)
		return err
	}

	title := strconv.FormatInt(chatID, 10)
	if query.Message != nil && query.Message.GetChat().ID == chatID && query.Message.GetChat().Title != "" {
		title = query.Message.GetChat().Title
	}

	text := storage.Render(settings, displayName(query.From), title)
	if derr := b.deliverWelcome(ctx, query.From.ID, settings, text); derr != nil {
		slog.Warn("bot: Preview not delivered", "error", derr, "user_id", query.From.ID)
		b.answer(ctx, query.ID, "Start a private chat with me first to see the preview.", true)
		return nil
	}

	b.answer(ctx, query.ID, "Preview sent in private.", false)
	return nil
}

func (b *Bot) refreshPanel(ctx context.Context, query telego.CallbackQuery, chatID int64) {
	settings, err := b.settings.GetOrCreate(ctx, chatID)
	if err != nil {
		b.metrics.IncStoreErrors("get_settings")
		slog.Error("bot: Cannot load chat settings", "error", err, "chat_id", chatID)
		return
	}

	b.editPanel(ctx, query, panelText(settings), panelKeyboard(chatID, settings.Enabled))
}

func (b *Bot) editPanel(ctx context.Context, query telego.CallbackQuery, text string, keyboard *telego.InlineKeyboardMarkup) {
	if query.Message == nil {
		return
	}

	_, err := b.gw.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(query.Message.GetChat().ID),
		MessageID:   query.Message.GetMessageID(),
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		slog.Error("bot: Failed to edit panel", "error", err, "chat_id", query.Message.GetChat().ID)
	}
}

func (b *Bot) answer(ctx context.Context, queryID, text string, alert bool) {
	err := b.gw.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		slog.Error("bot: Failed to answer callback query", "error", err)
	}
}
