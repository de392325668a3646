// Package bot is the Telegram front end: it maps chat commands onto
// subscription operations and delivers notification texts back out.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notibot/internal/config"
	"notibot/internal/model"
	"notibot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// scheduler is the subscription lifecycle surface the bot drives.
type scheduler interface {
	Subscribe(ctx context.Context, chatID string, kind model.ServiceKind, detail string) (bool, error)
	Unsubscribe(ctx context.Context, chatID string, kind model.ServiceKind) (bool, error)
	UnsubscribeManga(ctx context.Context, chatID, detail string) (deleted, cancelled bool, err error)
	DeactivateChat(ctx context.Context, chatID string) ([]model.ServiceKind, error)
	PollWeather(ctx context.Context, chatID string) error
	PollBlog(ctx context.Context, chatID string) (bool, error)
	PollManga(ctx context.Context, chatID string) (int, error)
}

// catalog answers whether a manga title ID exists upstream.
type catalog interface {
	TitleExists(ctx context.Context, titleID string) (bool, string, error)
}

// Bot handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	sched   scheduler
	catalog catalog
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token. The scheduler is
// attached afterwards via SetScheduler since it needs the bot as its
// notifier.
func New(token string, store storage.Storage, cfg *config.Config, cat catalog, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		catalog: cat,
		log:     log,
	}, nil
}

// SetScheduler wires the subscription scheduler in after construction.
func (b *Bot) SetScheduler(s scheduler) {
	b.sched = s
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// Send delivers a notification to the chat identified by its stored
// string key. Satisfies the reconciler's notifier contract.
func (b *Bot) Send(chatID, text string) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		b.log.Error("invalid chat id", "chat_id", chatID, "error", err)
		return
	}
	b.SendMessage(id, text)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// chatKey converts a Telegram chat ID to the string key used in the
// store and the task registry.
func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// Any message marks the chat active so startup reconciliation can
	// find it later.
	if err := b.store.UpsertChat(ctx, chatKey(chatID), true); err != nil {
		b.log.Error("register chat", "chat_id", chatID, "error", err)
	}

	if !msg.IsCommand() {
		b.reply(chatID, "Hi! To view the options type /options")
		return
	}
	b.handleCommand(ctx, msg)
}
