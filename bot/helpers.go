package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"telegram-join-approve-bot/storage"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	chatTypePrivate = "private"
	fallbackName    = "User"
)

var ErrButtonFormat = errors.New("invalid button format")

// splitCommand separates "/cmd@bot payload" into "cmd" and the raw payload.
// Newlines inside the payload are kept.
func splitCommand(text string) (string, string) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	end := strings.IndexFunc(text, unicode.IsSpace)
	head, payload := text, ""
	if end >= 0 {
		head, payload = text[:end], text[end:]
	}

	cmd, _, _ := strings.Cut(head[1:], "@")
	return strings.ToLower(cmd), strings.TrimSpace(payload)
}

// targetChat resolves the chat a command applies to. Commands sent in a
// group apply to that group; in a private chat the first word of the
// payload may name a chat id.
func targetChat(msg telego.Message, payload string) (int64, string, bool) {
	if msg.Chat.Type != chatTypePrivate {
		return msg.Chat.ID, payload, true
	}

	first, rest := cutWord(payload)
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil || id >= 0 {
		return 0, payload, false
	}

	return id, rest, true
}

func cutWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}
	return s[:end], strings.TrimSpace(s[end:])
}

// parseButtons reads one row per line, buttons separated by "|", each
// button written as "Label - https://url"
func parseButtons(payload string) (storage.ButtonRows, error) {
	rows := storage.ButtonRows{}

	for lineNo, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var row []storage.Button
		for _, part := range strings.Split(line, "|") {
			label, url, found := strings.Cut(part, " - ")
			label, url = strings.TrimSpace(label), strings.TrimSpace(url)
			if !found || label == "" || !validButtonURL(url) {
				return nil, fmt.Errorf("%w: line %d: %q", ErrButtonFormat, lineNo+1, strings.TrimSpace(part))
			}
			row = append(row, storage.Button{Label: label, URL: url})
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func validButtonURL(url string) bool {
	for _, prefix := range []string{"https://", "http://", "tg://"} {
		if strings.HasPrefix(url, prefix) && len(url) > len(prefix) {
			return true
		}
	}
	return false
}

// inlineKeyboard converts stored rows, nil for no buttons
func inlineKeyboard(rows storage.ButtonRows) *telego.InlineKeyboardMarkup {
	if rows.Count() == 0 {
		return nil
	}

	keyboard := make([][]telego.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tu.InlineKeyboardButton(btn.Label).WithURL(btn.URL))
		}
		keyboard = append(keyboard, buttons)
	}

	return tu.InlineKeyboard(keyboard...)
}

func displayName(user telego.User) string {
	if name := strings.TrimSpace(user.FirstName); name != "" {
		return name
	}
	return fallbackName
}

func formatButtons(rows storage.ButtonRows) string {
	if rows.Count() == 0 {
		return "none"
	}

	var lines []string
	for _, row := range rows {
		parts := make([]string, 0, len(row))
		for _, btn := range row {
			parts = append(parts, btn.Label+" - "+btn.URL)
		}
		lines = append(lines, strings.Join(parts, " | "))
	}
	return strings.Join(lines, "\n")
}

// retryAfter extracts the flood wait from a Bot API error, the telego
// error text ends with "retry after: N"
func retryAfter(err error) (time.Duration, bool) {
	if err == nil || !strings.Contains(err.Error(), "Too Many Requests") {
		return 0, false
	}

	parts := strings.Split(err.Error(), "retry after: ")
	if len(parts) != 2 {
		return 0, false
	}

	var seconds int
	if _, _ = fmt.Sscanf(parts[1], "%d", &seconds); seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// reply sends a plain text answer, waiting out a single flood limit
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	message := tu.Message(tu.ID(chatID), text)

	_, err := b.gw.SendMessage(ctx, message)
	if wait, ok := retryAfter(err); ok {
		slog.Info("bot: Rate limit hit, waiting", "seconds", wait.Seconds())
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(wait):
			_, err = b.gw.SendMessage(ctx, message)
		}
	}
	if err != nil {
		slog.Error("bot: Failed to send message", "error", err, "chat_id", chatID, "text_length", len(text))
	}
}
