package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

const (
	memberStatusCreator       = "creator"
	memberStatusAdministrator = "administrator"
)

func (b *Bot) loggingMiddleware(ctx *th.Context, update telego.Update) error {
	eventID := uuid.NewString()
	slog.Debug("bot: Update received", "event_id", eventID, "update_id", update.UpdateID, "type", updateType(update))

	err := ctx.Next(update)
	if err != nil {
		slog.Error("bot: Update handling failed", "event_id", eventID, "update_id", update.UpdateID, "error", err)
	}

	return err
}

func updateType(update telego.Update) string {
	switch {
	case update.ChatJoinRequest != nil:
		return "chat_join_request"
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.Message != nil:
		return "message"
	default:
		return "other"
	}
}

// isAdmin reports whether userID is the creator or an administrator of chatID
func (b *Bot) isAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := b.gw.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	if member == nil {
		return false, nil
	}

	status := member.MemberStatus()
	return status == memberStatusCreator || status == memberStatusAdministrator, nil
}

// messageFromAdmin checks the sender of msg against the target chat.
// Anonymous group admins post on behalf of the chat itself.
func (b *Bot) messageFromAdmin(ctx context.Context, msg telego.Message, chatID int64) bool {
	if msg.SenderChat != nil && msg.SenderChat.ID == chatID {
		return true
	}
	if msg.From == nil {
		return false
	}

	ok, err := b.isAdmin(ctx, chatID, msg.From.ID)
	if err != nil {
		slog.Warn("bot: Admin check failed", "error", err, "chat_id", chatID, "user_id", msg.From.ID)
		return false
	}

	return ok
}

// captionCommand matches media messages whose caption starts with one of
// the given commands, e.g. a photo captioned "/setphoto"
func captionCommand(commands ...string) th.Predicate {
	return func(_ context.Context, update telego.Update) bool {
		if update.Message == nil || update.Message.Caption == "" {
			return false
		}

		cmd, _ := splitCommand(update.Message.Caption)
		for _, c := range commands {
			if strings.EqualFold(cmd, c) {
				return true
			}
		}
		return false
	}
}
