package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"notibot/internal/model"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start", "options":
		b.handleOptions(chatID)
	case "forgetme":
		b.handleForgetMe(ctx, chatID)
	case "setw":
		b.handleSetWeather(ctx, chatID)
	case "unsetw":
		b.handleUnsetWeather(ctx, chatID)
	case "getw":
		b.handleGetWeather(ctx, chatID)
	case "setblog":
		b.handleSetBlog(ctx, chatID)
	case "unsetblog":
		b.handleUnsetBlog(ctx, chatID)
	case "getblog":
		b.handleGetBlog(ctx, chatID)
	case "setdex":
		b.handleSetManga(ctx, chatID, args)
	case "unsetmanga":
		b.handleUnsetOneManga(ctx, chatID, args)
	case "unsetdex":
		b.handleUnsetAllManga(ctx, chatID)
	case "getdexupdates":
		b.handleGetMangaUpdates(ctx, chatID)
	case "getmangalist":
		b.handleMangaList(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /options for a list of commands.")
	}
}

func (b *Bot) handleOptions(chatID int64) {
	b.reply(chatID, `Use /setw to receive updates on the weather in the morning and at noon
Use /unsetw to cancel the weather updates
Use /getw to get a weather update now
Use /setblog to watch for new blog posts in the evening
Use /unsetblog to cancel the blog watch
Use /getblog to check for blog updates now
Use /setdex <manga_id> to watch a specific manga
Use /unsetmanga <manga_id> to stop watching one manga
Use /unsetdex to stop watching all mangas
Use /getdexupdates to check for manga updates now
Use /getmangalist to list the mangas you are watching
Use /forgetme to deactivate this chat and its services
Have fun :)`)
}

func (b *Bot) handleSetWeather(ctx context.Context, chatID int64) {
	replaced, err := b.sched.Subscribe(ctx, chatKey(chatID), model.KindWeather, "")
	if err != nil {
		b.log.Error("set weather", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to set a weather update job")
		return
	}
	text := "Weather updates successfully set!"
	if replaced {
		text += " Old one was removed."
	}
	b.reply(chatID, text)
}

func (b *Bot) handleUnsetWeather(ctx context.Context, chatID int64) {
	removed, err := b.sched.Unsubscribe(ctx, chatKey(chatID), model.KindWeather)
	if err != nil {
		b.log.Error("unset weather", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to cancel the weather updates")
		return
	}
	if removed {
		b.reply(chatID, "Weather updates successfully cancelled!")
	} else {
		b.reply(chatID, "You have no active timer.")
	}
}

func (b *Bot) handleGetWeather(ctx context.Context, chatID int64) {
	if err := b.sched.PollWeather(ctx, chatKey(chatID)); err != nil {
		b.log.Error("get weather", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to fetch the weather update")
	}
}

func (b *Bot) handleSetBlog(ctx context.Context, chatID int64) {
	replaced, err := b.sched.Subscribe(ctx, chatKey(chatID), model.KindBlog, "")
	if err != nil {
		b.log.Error("set blog", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to set a blog watch job")
		return
	}
	text := "Blog watch successfully set!"
	if replaced {
		text += " Old one was removed."
	}
	b.reply(chatID, text)
}

func (b *Bot) handleUnsetBlog(ctx context.Context, chatID int64) {
	removed, err := b.sched.Unsubscribe(ctx, chatKey(chatID), model.KindBlog)
	if err != nil {
		b.log.Error("unset blog", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to cancel the blog watch")
		return
	}
	if removed {
		b.reply(chatID, "Blog watch successfully cancelled!")
	} else {
		b.reply(chatID, "You have no active timer.")
	}
}

func (b *Bot) handleGetBlog(ctx context.Context, chatID int64) {
	notified, err := b.sched.PollBlog(ctx, chatKey(chatID))
	if err != nil {
		b.log.Error("get blog", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to check the blog. Did you /setblog first?")
		return
	}
	if !notified {
		b.reply(chatID, "There are no new entries.")
	}
}

func (b *Bot) handleSetManga(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Please provide a manga id")
		return
	}
	key := chatKey(chatID)

	subs, err := b.store.ListActiveSubscriptionsByKind(ctx, key, model.KindManga)
	if err != nil {
		b.log.Error("set manga", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to set a dex watch job")
		return
	}
	for _, sub := range subs {
		if sub.Detail == args {
			b.reply(chatID, "Manga already being watched")
			return
		}
	}

	exists, title, err := b.catalog.TitleExists(ctx, args)
	if err != nil {
		b.log.Error("check manga", "chat_id", chatID, "manga_id", args, "error", err)
		b.reply(chatID, "Failed to set a dex watch job")
		return
	}
	if !exists {
		b.reply(chatID, "Manga "+args+" not found")
		return
	}

	replaced, err := b.sched.Subscribe(ctx, key, model.KindManga, args)
	if err != nil {
		b.log.Error("set manga", "chat_id", chatID, "manga_id", args, "error", err)
		b.reply(chatID, "Failed to set a dex watch job")
		return
	}
	text := "Dex watch successfully set for " + title + "!"
	if replaced {
		text += " Old one was removed."
	}
	b.reply(chatID, text)
}

func (b *Bot) handleUnsetOneManga(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Please provide a manga id")
		return
	}

	deleted, cancelled, err := b.sched.UnsubscribeManga(ctx, chatKey(chatID), args)
	if err != nil {
		b.log.Error("unset manga", "chat_id", chatID, "manga_id", args, "error", err)
		b.reply(chatID, "Failed to remove the manga")
		return
	}
	text := args + " not found in watch list"
	if deleted {
		text = args + " removed from watch list"
	}
	if cancelled {
		text += "\nNo mangas left, dex watch cancelled!"
	}
	b.reply(chatID, text)
}

func (b *Bot) handleUnsetAllManga(ctx context.Context, chatID int64) {
	removed, err := b.sched.Unsubscribe(ctx, chatKey(chatID), model.KindManga)
	if err != nil {
		b.log.Error("unset dex", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to cancel the dex watch")
		return
	}
	if removed {
		b.reply(chatID, "Dex watch successfully cancelled!")
	} else {
		b.reply(chatID, "You have no active dex watch.")
	}
}

func (b *Bot) handleGetMangaUpdates(ctx context.Context, chatID int64) {
	n, err := b.sched.PollManga(ctx, chatKey(chatID))
	if err != nil {
		b.log.Error("get manga updates", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to check for manga updates")
		return
	}
	if n == 0 {
		b.reply(chatID, "There are no new chapters.")
	}
}

func (b *Bot) handleMangaList(ctx context.Context, chatID int64) {
	subs, err := b.store.ListActiveSubscriptionsByKind(ctx, chatKey(chatID), model.KindManga)
	if err != nil {
		b.log.Error("manga list", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to load the manga list")
		return
	}

	var sb strings.Builder
	sb.WriteString("Mangas being watched:\n")
	for _, sub := range subs {
		sb.WriteString(sub.Detail)
		sb.WriteString("\n")
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleForgetMe(ctx context.Context, chatID int64) {
	kinds, err := b.sched.DeactivateChat(ctx, chatKey(chatID))
	if err != nil {
		b.log.Error("forget me", "chat_id", chatID, "error", err)
		b.reply(chatID, "Failed to deactivate the chat")
		return
	}

	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	text := "Chat successfully deactivated."
	if len(names) > 0 {
		text += " Cancelled services: " + strings.Join(names, ", ") + "."
	}
	b.reply(chatID, text)
}
