package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"notibot/internal/fetcher"
	"notibot/internal/model"
)

func TestPollWeatherAlwaysNotifies(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)
	f.weather.text = "09AM | clear sky\n10AM | light rain ☔\n"

	for i := 0; i < 2; i++ {
		if err := f.rec.PollWeather(ctx, "100"); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	msgs := f.notifier.getMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(msgs))
	}
	if msgs[0].ChatID != "100" || msgs[0].Text != f.weather.text {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestPollWeatherUpstreamError(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)
	f.weather.err = fetcher.ErrUpstream

	if err := f.rec.PollWeather(ctx, "100"); !errors.Is(err, fetcher.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if msgs := f.notifier.getMessages(); len(msgs) != 0 {
		t.Errorf("expected no notifications, got %v", msgs)
	}
}

func TestPollBlog(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)

	newest := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	f.blog.entries = []fetcher.BlogEntry{
		{Title: "Post three", Published: newest},
		{Title: "Post two", Published: time.Date(2023, 5, 15, 9, 30, 0, 0, time.UTC)},
		{Title: "Post one", Published: time.Date(2023, 4, 1, 8, 0, 0, 0, time.UTC)},
	}

	if _, err := f.rec.Subscribe(ctx, "100", model.KindBlog, ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// First poll: everything is newer than the epoch sentinel.
	notified, err := f.rec.PollBlog(ctx, "100")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !notified {
		t.Fatal("expected a notification")
	}

	msgs := f.notifier.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].Text, "There are 3 new entries!\n") {
		t.Errorf("unexpected text: %q", msgs[0].Text)
	}
	for _, title := range []string{"Post one", "Post two", "Post three"} {
		if !strings.Contains(msgs[0].Text, title) {
			t.Errorf("notification missing %q: %q", title, msgs[0].Text)
		}
	}

	sub, err := f.store.FindSubscription(ctx, "100", model.KindBlog)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !sub.LastUpdated.Equal(newest) {
		t.Errorf("mark = %v, want %v", sub.LastUpdated, newest)
	}

	// Second poll with an unchanged feed: nothing is sent, nothing moves.
	notified, err = f.rec.PollBlog(ctx, "100")
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if notified {
		t.Error("expected no notification on unchanged feed")
	}
	if msgs := f.notifier.getMessages(); len(msgs) != 1 {
		t.Errorf("expected still 1 notification, got %d", len(msgs))
	}
	sub, err = f.store.FindSubscription(ctx, "100", model.KindBlog)
	if err != nil {
		t.Fatalf("find after second poll: %v", err)
	}
	if !sub.LastUpdated.Equal(newest) {
		t.Errorf("mark moved without new entries: %v", sub.LastUpdated)
	}
}

func TestPollBlogWindow(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)

	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		f.blog.entries = append(f.blog.entries, fetcher.BlogEntry{
			Title:     fmt.Sprintf("Post %d", i),
			Published: base.Add(-time.Duration(i) * time.Hour),
		})
	}

	if _, err := f.rec.Subscribe(ctx, "100", model.KindBlog, ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.rec.PollBlog(ctx, "100"); err != nil {
		t.Fatalf("poll: %v", err)
	}

	msgs := f.notifier.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].Text, "There are 10 new entries!\n") {
		t.Errorf("expected only the top %d entries, got: %q", blogEntryWindow, msgs[0].Text)
	}
}

func TestPollBlogUpstreamError(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)
	f.blog.err = fetcher.ErrUpstream

	if _, err := f.rec.Subscribe(ctx, "100", model.KindBlog, ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_, err := f.rec.PollBlog(ctx, "100")
	if !errors.Is(err, fetcher.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	// The mark must survive the failed poll untouched.
	sub, err := f.store.FindSubscription(ctx, "100", model.KindBlog)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !sub.LastUpdated.Equal(model.EpochSentinel) {
		t.Errorf("mark = %v, want epoch sentinel", sub.LastUpdated)
	}
	if msgs := f.notifier.getMessages(); len(msgs) != 0 {
		t.Errorf("expected no notifications, got %v", msgs)
	}
}

func TestPollBlogWithoutSubscription(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)

	if _, err := f.rec.PollBlog(ctx, "100"); err == nil {
		t.Fatal("expected error for missing subscription")
	}
}

func TestPollManga(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)

	newest := time.Date(2023, 6, 8, 10, 0, 0, 0, time.UTC)
	f.manga.chapters = map[string][]fetcher.Chapter{
		"title-A": {
			{Chapter: "12", PublishAt: time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)},
			{Chapter: "13", PublishAt: newest},
		},
	}

	for _, detail := range []string{"title-A", "title-B"} {
		if _, err := f.rec.Subscribe(ctx, "7", model.KindManga, detail); err != nil {
			t.Fatalf("subscribe %s: %v", detail, err)
		}
	}

	n, err := f.rec.PollManga(ctx, "7")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 notified title, got %d", n)
	}

	msgs := f.notifier.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "Ch. 12") || !strings.Contains(msgs[0].Text, "Ch. 13") {
		t.Errorf("unexpected text: %q", msgs[0].Text)
	}

	// Each title queried from its own mark.
	if got := f.manga.since["title-A"]; !got.Equal(model.EpochSentinel) {
		t.Errorf("title-A queried since %v, want epoch sentinel", got)
	}
	if _, ok := f.manga.since["title-B"]; !ok {
		t.Error("title-B was never queried")
	}

	// The notified title's mark moves one second past its newest chapter;
	// the silent title's mark stays put.
	subs, err := f.store.ListActiveSubscriptionsByKind(ctx, "7", model.KindManga)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, sub := range subs {
		switch sub.Detail {
		case "title-A":
			if want := newest.Add(time.Second); !sub.LastUpdated.Equal(want) {
				t.Errorf("title-A mark = %v, want %v", sub.LastUpdated, want)
			}
		case "title-B":
			if !sub.LastUpdated.Equal(model.EpochSentinel) {
				t.Errorf("title-B mark = %v, want epoch sentinel", sub.LastUpdated)
			}
		}
	}
}

func TestPollMangaSkipsFailingTitle(t *testing.T) {
	ctx := context.Background()
	f := newTestReconciler(t)

	newest := time.Date(2023, 6, 8, 10, 0, 0, 0, time.UTC)
	f.manga.chapters = map[string][]fetcher.Chapter{
		"title-B": {{Chapter: "1", PublishAt: newest}},
	}
	f.manga.errors = map[string]error{"title-A": fetcher.ErrUpstream}

	for _, detail := range []string{"title-A", "title-B"} {
		if _, err := f.rec.Subscribe(ctx, "7", model.KindManga, detail); err != nil {
			t.Fatalf("subscribe %s: %v", detail, err)
		}
	}

	n, err := f.rec.PollManga(ctx, "7")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the healthy title to notify, got %d", n)
	}

	subs, err := f.store.ListActiveSubscriptionsByKind(ctx, "7", model.KindManga)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, sub := range subs {
		switch sub.Detail {
		case "title-A":
			if !sub.LastUpdated.Equal(model.EpochSentinel) {
				t.Errorf("failed title's mark moved: %v", sub.LastUpdated)
			}
		case "title-B":
			if want := newest.Add(time.Second); !sub.LastUpdated.Equal(want) {
				t.Errorf("title-B mark = %v, want %v", sub.LastUpdated, want)
			}
		}
	}
}
