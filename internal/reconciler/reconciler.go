// Package reconciler keeps the set of live scheduled tasks consistent
// with the set of active subscriptions and drives each poll cycle's
// fetch-compare-notify sequence.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notibot/internal/fetcher"
	"notibot/internal/model"
	"notibot/internal/storage"
)

// TaskKey identifies the recurring task set of one chat and service
// kind. All manga subscriptions of a chat share a single key; the poll
// fans out over the individual rows.
type TaskKey struct {
	ChatID string
	Kind   model.ServiceKind
}

// Notifier delivers outbound messages to a chat. Delivery errors are
// the platform client's concern; the reconciler fires and forgets.
type Notifier interface {
	Send(chatID, text string)
}

// WeatherSource returns the rendered current forecast.
type WeatherSource interface {
	Fetch(ctx context.Context) (string, error)
}

// BlogSource returns the blog feed entries in feed order.
type BlogSource interface {
	Fetch(ctx context.Context) ([]fetcher.BlogEntry, error)
}

// MangaSource returns the chapters of a title published at or after the
// given time.
type MangaSource interface {
	ChaptersSince(ctx context.Context, titleID string, since time.Time) ([]fetcher.Chapter, error)
}

// Schedules holds the cron specs of the daily triggers. Weather fires
// twice a day, blog and manga share the evening slot.
type Schedules struct {
	WeatherMorning string
	WeatherNoon    string
	Evening        string
}

// DailySpec converts an HH:MM clock into a standard daily cron spec.
func DailySpec(clock string) (string, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return "", fmt.Errorf("invalid clock %q: expected HH:MM", clock)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// Config collects the reconciler's collaborators.
type Config struct {
	Store     storage.Storage
	Weather   WeatherSource
	Blog      BlogSource
	Manga     MangaSource
	Notifier  Notifier
	Log       *slog.Logger
	Location  *time.Location
	Schedules Schedules
	Stagger   time.Duration // delay between manga title fetches
}

// Reconciler maps active subscriptions onto recurring cron tasks. The
// task registry is an explicit map keyed by TaskKey; the registry and
// the store together are the whole state of the system.
type Reconciler struct {
	store     storage.Storage
	weather   WeatherSource
	blog      BlogSource
	manga     MangaSource
	notifier  Notifier
	log       *slog.Logger
	schedules Schedules
	stagger   time.Duration
	now       func() time.Time

	cron  *cron.Cron
	mu    sync.Mutex
	tasks map[TaskKey][]cron.EntryID
}

// New creates a Reconciler. Tasks do not fire until Start is called.
func New(cfg Config) *Reconciler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	stagger := cfg.Stagger
	if stagger <= 0 {
		stagger = 2 * time.Second
	}
	return &Reconciler{
		store:     cfg.Store,
		weather:   cfg.Weather,
		blog:      cfg.Blog,
		manga:     cfg.Manga,
		notifier:  cfg.Notifier,
		log:       cfg.Log,
		schedules: cfg.Schedules,
		stagger:   stagger,
		now:       func() time.Time { return time.Now().UTC() },
		cron:      cron.New(cron.WithLocation(loc)),
		tasks:     make(map[TaskKey][]cron.EntryID),
	}
}

// Start begins firing scheduled tasks.
func (r *Reconciler) Start() {
	r.cron.Start()
}

// Stop cancels future firings and waits for in-flight polls to finish,
// or for ctx to expire.
func (r *Reconciler) Stop(ctx context.Context) error {
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe durably activates the subscription, then (re)installs its
// recurring task. Persisting first means a crash between the two steps
// leaves durable state that the next startup reconciliation turns back
// into a task; the reverse order would leak a task that cannot survive
// a restart. Reports whether an existing task was replaced.
func (r *Reconciler) Subscribe(ctx context.Context, chatID string, kind model.ServiceKind, detail string) (bool, error) {
	sub := &model.Subscription{
		ChatID:      chatID,
		Kind:        kind,
		Active:      true,
		Detail:      detail,
		LastUpdated: r.now(),
	}
	// Feed-backed kinds start from the epoch sentinel so the first poll
	// reports everything published since forever.
	if kind == model.KindBlog || kind == model.KindManga {
		sub.LastUpdated = model.EpochSentinel
	}
	if err := r.store.UpsertSubscription(ctx, sub); err != nil {
		return false, fmt.Errorf("persist subscription: %w", err)
	}

	replaced, err := r.schedule(chatID, kind)
	if err != nil {
		return false, err
	}
	r.log.Info("subscribed", "chat_id", chatID, "kind", kind.String(), "detail", detail, "replaced", replaced)
	return replaced, nil
}

// Unsubscribe marks the subscription inactive and cancels its task.
// Reports whether a task actually existed; its absence is "nothing to
// do", not an error. Blog and manga marks are reset to the epoch
// sentinel so a future resubscribe treats every entry as new. For
// manga, all of the chat's rows are deactivated.
func (r *Reconciler) Unsubscribe(ctx context.Context, chatID string, kind model.ServiceKind) (bool, error) {
	if kind == model.KindManga {
		subs, err := r.store.ListActiveSubscriptionsByKind(ctx, chatID, kind)
		if err != nil {
			return false, fmt.Errorf("list manga subscriptions: %w", err)
		}
		for _, sub := range subs {
			sub.Active = false
			sub.LastUpdated = model.EpochSentinel
			if err := r.store.UpsertSubscription(ctx, &sub); err != nil {
				return false, fmt.Errorf("deactivate subscription: %w", err)
			}
		}
	} else {
		sub := &model.Subscription{
			ChatID:      chatID,
			Kind:        kind,
			Active:      false,
			LastUpdated: r.now(),
		}
		if kind == model.KindBlog {
			sub.LastUpdated = model.EpochSentinel
		}
		if err := r.store.UpsertSubscription(ctx, sub); err != nil {
			return false, fmt.Errorf("deactivate subscription: %w", err)
		}
	}

	removed := r.cancel(TaskKey{ChatID: chatID, Kind: kind})
	r.log.Info("unsubscribed", "chat_id", chatID, "kind", kind.String(), "task_removed", removed)
	return removed, nil
}

// UnsubscribeManga deletes exactly the one manga row matching detail.
// The shared manga task is cancelled only when no active manga rows
// remain for the chat; otherwise the next tick simply fetches fewer
// titles.
func (r *Reconciler) UnsubscribeManga(ctx context.Context, chatID, detail string) (deleted, cancelled bool, err error) {
	n, err := r.store.DeleteSubscription(ctx, chatID, model.KindManga, detail)
	if err != nil {
		return false, false, fmt.Errorf("delete manga subscription: %w", err)
	}

	remaining, err := r.store.ListActiveSubscriptionsByKind(ctx, chatID, model.KindManga)
	if err != nil {
		return n > 0, false, fmt.Errorf("list manga subscriptions: %w", err)
	}
	if len(remaining) == 0 {
		cancelled = r.cancel(TaskKey{ChatID: chatID, Kind: model.KindManga})
	}

	r.log.Info("manga title removed", "chat_id", chatID, "detail", detail, "deleted", n > 0, "task_cancelled", cancelled)
	return n > 0, cancelled, nil
}

// DeactivateChat unsubscribes every active kind of the chat and marks
// the chat itself inactive. Returns the kinds that were deactivated.
func (r *Reconciler) DeactivateChat(ctx context.Context, chatID string) ([]model.ServiceKind, error) {
	subs, err := r.store.ListActiveSubscriptions(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	var kinds []model.ServiceKind
	seen := make(map[model.ServiceKind]bool)
	for _, sub := range subs {
		if seen[sub.Kind] {
			continue
		}
		seen[sub.Kind] = true
		if _, err := r.Unsubscribe(ctx, chatID, sub.Kind); err != nil {
			return kinds, err
		}
		kinds = append(kinds, sub.Kind)
	}

	if err := r.store.UpsertChat(ctx, chatID, false); err != nil {
		return kinds, fmt.Errorf("deactivate chat: %w", err)
	}
	return kinds, nil
}

// ReconcileAll rebuilds the task registry from durable state: one task
// set per distinct (chat, kind) pair among active subscriptions. State
// is not re-persisted. Called once at startup; scheduled tasks are
// runtime-only and do not survive a restart on their own.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	chats, err := r.store.ListActiveChats(ctx)
	if err != nil {
		return fmt.Errorf("list active chats: %w", err)
	}

	for _, chat := range chats {
		subs, err := r.store.ListActiveSubscriptions(ctx, chat.ID)
		if err != nil {
			return fmt.Errorf("list subscriptions for chat %s: %w", chat.ID, err)
		}
		seen := make(map[model.ServiceKind]bool)
		for _, sub := range subs {
			if seen[sub.Kind] {
				continue
			}
			seen[sub.Kind] = true
			if _, err := r.schedule(chat.ID, sub.Kind); err != nil {
				r.log.Error("failed to restore task", "chat_id", chat.ID, "kind", sub.Kind.String(), "error", err)
			}
		}
	}

	r.log.Info("reconciled tasks from store", "tasks", len(r.TaskKeys()))
	return nil
}

// TaskKeys returns the keys of all live tasks, sorted for stable
// inspection.
func (r *Reconciler) TaskKeys() []TaskKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]TaskKey, 0, len(r.tasks))
	for key := range r.tasks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ChatID != keys[j].ChatID {
			return keys[i].ChatID < keys[j].ChatID
		}
		return keys[i].Kind < keys[j].Kind
	})
	return keys
}

// schedule installs the recurring task set for (chatID, kind), first
// cancelling any existing one under the same key. Reports whether an
// existing task was replaced.
func (r *Reconciler) schedule(chatID string, kind model.ServiceKind) (bool, error) {
	key := TaskKey{ChatID: chatID, Kind: kind}
	specs, job := r.plan(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.cancelLocked(key)

	var ids []cron.EntryID
	for _, spec := range specs {
		id, err := r.cron.AddFunc(spec, job)
		if err != nil {
			for _, added := range ids {
				r.cron.Remove(added)
			}
			return replaced, fmt.Errorf("add cron entry %q: %w", spec, err)
		}
		ids = append(ids, id)
	}
	r.tasks[key] = ids
	return replaced, nil
}

// plan maps a task key to its cron specs and poll callback.
func (r *Reconciler) plan(key TaskKey) ([]string, func()) {
	switch key.Kind {
	case model.KindWeather:
		return []string{r.schedules.WeatherMorning, r.schedules.WeatherNoon}, func() {
			r.runPoll(key, func(ctx context.Context) error {
				return r.PollWeather(ctx, key.ChatID)
			})
		}
	case model.KindBlog:
		return []string{r.schedules.Evening}, func() {
			r.runPoll(key, func(ctx context.Context) error {
				_, err := r.PollBlog(ctx, key.ChatID)
				return err
			})
		}
	default: // model.KindManga
		return []string{r.schedules.Evening}, func() {
			r.runPoll(key, func(ctx context.Context) error {
				_, err := r.PollManga(ctx, key.ChatID)
				return err
			})
		}
	}
}

// runPoll executes one scheduled poll to completion. A failed tick is
// logged and dropped; the subscription state is untouched, so the next
// tick retries naturally.
func (r *Reconciler) runPoll(key TaskKey, poll func(context.Context) error) {
	if err := poll(context.Background()); err != nil {
		r.log.Error("scheduled poll failed", "chat_id", key.ChatID, "kind", key.Kind.String(), "error", err)
	}
}

func (r *Reconciler) cancel(key TaskKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelLocked(key)
}

func (r *Reconciler) cancelLocked(key TaskKey) bool {
	ids, ok := r.tasks[key]
	if !ok {
		return false
	}
	for _, id := range ids {
		r.cron.Remove(id)
	}
	delete(r.tasks, key)
	return true
}
