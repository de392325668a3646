package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"notibot/internal/fetcher"
	"notibot/internal/model"
)

// blogEntryWindow limits how far back one blog poll looks. Older items
// exist in the feed but are never reported.
const blogEntryWindow = 10

// PollWeather fetches the current forecast and sends it. There is no
// high-water mark to compare against or advance; weather is a snapshot
// and every successful poll notifies.
func (r *Reconciler) PollWeather(ctx context.Context, chatID string) error {
	text, err := r.weather.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("poll weather: %w", err)
	}
	r.notifier.Send(chatID, text)
	return nil
}

// PollBlog fetches the feed, reports the entries published strictly
// after the stored mark, and advances the mark to the newest reported
// timestamp. When nothing is new, nothing is sent and nothing is
// written. Reports whether a notification went out.
func (r *Reconciler) PollBlog(ctx context.Context, chatID string) (bool, error) {
	sub, err := r.store.FindSubscription(ctx, chatID, model.KindBlog)
	if err != nil {
		return false, fmt.Errorf("poll blog: %w", err)
	}

	entries, err := r.blog.Fetch(ctx)
	if err != nil {
		return false, fmt.Errorf("poll blog: %w", err)
	}
	if len(entries) > blogEntryWindow {
		entries = entries[:blogEntryWindow]
	}

	var fresh []fetcher.BlogEntry
	mark := sub.LastUpdated
	for _, e := range entries {
		if e.Published.After(sub.LastUpdated) {
			fresh = append(fresh, e)
			if e.Published.After(mark) {
				mark = e.Published
			}
		}
	}
	if len(fresh) == 0 {
		return false, nil
	}

	r.notifier.Send(chatID, formatBlogUpdate(fresh))

	sub.LastUpdated = mark
	if err := r.store.UpsertSubscription(ctx, sub); err != nil {
		return true, fmt.Errorf("advance blog mark: %w", err)
	}
	return true, nil
}

// PollManga fans out over the chat's active manga rows, one staggered
// fetch per title. Each title advances its own mark independently; a
// failing title is logged and skipped so the rest of the fan-out still
// runs. The mark moves one second past the newest notified chapter
// because the API's since boundary is inclusive. Returns how many
// titles produced a notification.
func (r *Reconciler) PollManga(ctx context.Context, chatID string) (int, error) {
	subs, err := r.store.ListActiveSubscriptionsByKind(ctx, chatID, model.KindManga)
	if err != nil {
		return 0, fmt.Errorf("poll manga: %w", err)
	}

	limiter := rate.NewLimiter(rate.Every(r.stagger), 1)
	notified := 0
	for i := range subs {
		sub := subs[i]
		if err := limiter.Wait(ctx); err != nil {
			return notified, fmt.Errorf("poll manga: %w", err)
		}

		chapters, err := r.manga.ChaptersSince(ctx, sub.Detail, sub.LastUpdated)
		if err != nil {
			r.log.Error("manga fetch failed", "chat_id", chatID, "title", sub.Detail, "error", err)
			continue
		}
		if len(chapters) == 0 {
			continue
		}

		newest := chapters[0].PublishAt
		for _, ch := range chapters[1:] {
			if ch.PublishAt.After(newest) {
				newest = ch.PublishAt
			}
		}

		r.notifier.Send(chatID, formatMangaUpdate(sub.Detail, chapters))

		sub.LastUpdated = newest.Add(time.Second)
		if err := r.store.UpsertSubscription(ctx, &sub); err != nil {
			r.log.Error("failed to advance manga mark", "chat_id", chatID, "title", sub.Detail, "error", err)
			continue
		}
		notified++
	}
	return notified, nil
}

func formatBlogUpdate(entries []fetcher.BlogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "There are %d new entries!\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%s # %s\n", e.Published.Format("2006-01-02 15:04"), e.Title)
	}
	return b.String()
}

func formatMangaUpdate(title string, chapters []fetcher.Chapter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New chapters of %s!\n", title)
	for _, ch := range chapters {
		label := "Ch. " + ch.Chapter
		if ch.Chapter == "" {
			label = "Oneshot"
		}
		if ch.Volume != "" {
			label = "Vol. " + ch.Volume + " " + label
		}
		if ch.Title != "" {
			label += ": " + ch.Title
		}
		fmt.Fprintf(&b, "%s (%s)\n", label, ch.PublishAt.Format("2006-01-02"))
	}
	return b.String()
}
