package bot

import (
	"context"
	"fmt"
	"log/slog"

	"telegram-join-approve-bot/metrics"
	"telegram-join-approve-bot/storage"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

func (b *Bot) joinRequestHandler(ctx *th.Context, req telego.ChatJoinRequest) error {
	_ = b.handleJoinRequest(ctx, req)

	return nil
}

// handleJoinRequest approves or declines a join request according to the
// chat settings. On approval it counts the join and tries to welcome the
// user; a failed welcome is logged and dropped.
func (b *Bot) handleJoinRequest(ctx context.Context, req telego.ChatJoinRequest) error {
	chatID, userID := req.Chat.ID, req.From.ID

	settings, err := b.settings.GetOrCreate(ctx, chatID)
	if err != nil {
		b.metrics.IncStoreErrors("get_settings")
		b.metrics.IncJoinRequests(metrics.OutcomeFailed)
		slog.Error("bot: Cannot load chat settings for join request", "error", err, "chat_id", chatID, "user_id", userID)
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if !settings.Enabled {
		err := b.gw.DeclineChatJoinRequest(ctx, &telego.DeclineChatJoinRequestParams{
			ChatID: telego.ChatID{ID: chatID},
			UserID: userID,
		})
		if err != nil {
			b.metrics.IncJoinRequests(metrics.OutcomeFailed)
			slog.Error("bot: Failed to decline join request", "error", err, "chat_id", chatID, "user_id", userID)
			return fmt.Errorf("failed to decline: %w", err)
		}

		b.metrics.IncJoinRequests(metrics.OutcomeDeclined)
		slog.Info("bot: Join request declined", "chat_id", chatID, "user_id", userID)
		return nil
	}

	err = b.gw.ApproveChatJoinRequest(ctx, &telego.ApproveChatJoinRequestParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
	if err != nil {
		b.metrics.IncJoinRequests(metrics.OutcomeFailed)
		slog.Error("bot: Failed to approve join request", "error", err, "chat_id", chatID, "user_id", userID)
		return fmt.Errorf("failed to approve: %w", err)
	}
	b.metrics.IncJoinRequests(metrics.OutcomeApproved)
	slog.Info("bot: Join request approved", "chat_id", chatID, "user_id", userID)

	if err := b.stats.RecordJoin(ctx, chatID); err != nil {
		b.metrics.IncStoreErrors("record_join")
		slog.Error("bot: Failed to record join", "error", err, "chat_id", chatID)
	}

	text := storage.Render(settings, displayName(req.From), req.Chat.Title)
	if derr := b.deliverWelcome(ctx, welcomeRecipient(req), settings, text); derr != nil {
		b.metrics.IncDeliveries(metrics.DeliveryFailed)
		slog.Warn("bot: Welcome message not delivered", "error", derr, "chat_id", chatID, "user_id", userID, "part", derr.Part)
		return nil
	}

	b.metrics.IncDeliveries(metrics.DeliverySent)
	slog.Debug("bot: Welcome message delivered", "chat_id", chatID, "user_id", userID)
	return nil
}
