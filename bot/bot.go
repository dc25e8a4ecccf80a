package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"telegram-join-approve-bot/metrics"
	"telegram-join-approve-bot/storage"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

var (
	ErrGetMe          = errors.New("cannot retrieve api user")
	ErrUpdatesChannel = errors.New("cannot get updates channel")
	ErrHandlerInit    = errors.New("cannot initialize handler")
)

// Gateway is the part of the Bot API the handlers call. *telego.Bot
// implements it.
type Gateway interface {
	ApproveChatJoinRequest(ctx context.Context, params *telego.ApproveChatJoinRequestParams) error
	DeclineChatJoinRequest(ctx context.Context, params *telego.DeclineChatJoinRequestParams) error
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error)
	SendVoice(ctx context.Context, params *telego.SendVoiceParams) (*telego.Message, error)
	GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
}

type Bot struct {
	api      *telego.Bot
	gw       Gateway
	settings storage.SettingsStore
	stats    storage.StatsStore
	metrics  metrics.Recorder
}

func New(token string, settings storage.SettingsStore, stats storage.StatsStore, recorder metrics.Recorder) (*Bot, error) {
	api, err := telego.NewBot(token)
	if err != nil {
		slog.Error("bot: Failed to create bot API client", "error", err)
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, settings, stats, recorder)
	b.api = api
	return b, nil
}

func newBot(gw Gateway, settings storage.SettingsStore, stats storage.StatsStore, recorder metrics.Recorder) *Bot {
	if recorder == nil {
		recorder = metrics.Noop()
	}

	return &Bot{
		gw:       gw,
		settings: settings,
		stats:    stats,
		metrics:  recorder,
	}
}

// Run long-polls until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	botUser, err := b.api.GetMe(ctx)
	if err != nil {
		slog.Error("bot: Cannot retrieve api user", "error", err)
		return ErrGetMe
	}

	slog.Info("bot: Running api as",
		"id", botUser.ID,
		"username", botUser.Username,
		"name", botUser.FirstName,
	)

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query", "chat_join_request"},
	})
	if err != nil {
		slog.Error("bot: Cannot get update channel", "error", err)
		return ErrUpdatesChannel
	}

	bh, err := th.NewBotHandler(b.api, updates)
	if err != nil {
		slog.Error("bot: Cannot initialize bot handler", "error", err)
		return ErrHandlerInit
	}
	defer func() { _ = bh.Stop() }()

	b.register(bh)

	return bh.Start()
}

func (b *Bot) register(bh *th.BotHandler) {
	bh.Use(b.loggingMiddleware)

	bh.HandleChatJoinRequest(b.joinRequestHandler)

	bh.HandleMessage(b.startHandler, th.Or(th.CommandEqual("start"), th.CommandEqual("help")))
	bh.HandleMessage(b.setTextHandler, th.CommandEqual("settext"))
	bh.HandleMessage(b.setButtonsHandler, th.CommandEqual("setbuttons"))
	bh.HandleMessage(b.toggleHandler, th.CommandEqual("toggle"))
	bh.HandleMessage(b.statsHandler, th.CommandEqual("stats"))
	bh.HandleMessage(b.panelHandler, th.CommandEqual("panel"))
	bh.HandleMessage(b.setMediaHandler, captionCommand(mediaCommands()...))

	bh.HandleCallbackQuery(b.panelCallbackHandler, th.CallbackDataPrefix(panelPrefix))
}
