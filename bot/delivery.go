package bot

import (
	"context"
	"fmt"
	"unicode/utf8"

	"telegram-join-approve-bot/storage"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// captionLimit is the Bot API limit for media captions
const captionLimit = 1024

// DeliveryError reports that the welcome could not reach the user, most
// often because they never started the bot or blocked it. It never undoes
// the approval.
type DeliveryError struct {
	UserID int64
	Part   string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to user %d: %v", e.Part, e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// deliverWelcome sends the rendered text, photo, buttons, video and voice
// of settings to a private chat. It stops at the first failed message.
func (b *Bot) deliverWelcome(ctx context.Context, userChatID int64, settings *storage.ChatSettings, text string) *DeliveryError {
	chat := tu.ID(userChatID)
	keyboard := inlineKeyboard(settings.Buttons)

	textSent := false
	if settings.PhotoRef != "" {
		photo := tu.Photo(chat, tu.FileFromID(settings.PhotoRef))
		if utf8.RuneCountInString(text) <= captionLimit {
			photo = photo.WithCaption(text)
			if keyboard != nil {
				photo = photo.WithReplyMarkup(keyboard)
			}
			textSent = true
		}
		if _, err := b.gw.SendPhoto(ctx, photo); err != nil {
			return &DeliveryError{UserID: userChatID, Part: "photo", Err: err}
		}
	}

	if !textSent {
		message := tu.Message(chat, text)
		if keyboard != nil {
			message = message.WithReplyMarkup(keyboard)
		}
		if _, err := b.gw.SendMessage(ctx, message); err != nil {
			return &DeliveryError{UserID: userChatID, Part: "text", Err: err}
		}
	}

	if settings.VideoRef != "" {
		if _, err := b.gw.SendVideo(ctx, tu.Video(chat, tu.FileFromID(settings.VideoRef))); err != nil {
			return &DeliveryError{UserID: userChatID, Part: "video", Err: err}
		}
	}

	if settings.VoiceRef != "" {
		if _, err := b.gw.SendVoice(ctx, tu.Voice(chat, tu.FileFromID(settings.VoiceRef))); err != nil {
			return &DeliveryError{UserID: userChatID, Part: "voice", Err: err}
		}
	}

	return nil
}

// welcomeRecipient is the private chat for the joining user
func welcomeRecipient(req telego.ChatJoinRequest) int64 {
	if req.UserChatID != 0 {
		return req.UserChatID
	}
	return req.From.ID
}
