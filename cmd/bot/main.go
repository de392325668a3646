package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"notibot/internal/bot"
	"notibot/internal/config"
	"notibot/internal/fetcher"
	"notibot/internal/logger"
	"notibot/internal/reconciler"
	"notibot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, closeLog := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = closeLog() }()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath, log)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	weather := fetcher.NewWeather(http.DefaultClient, cfg.WeatherAPIKey, cfg.WeatherLat, cfg.WeatherLon)
	blog := fetcher.NewBlog(http.DefaultClient, cfg.FeedURL)
	manga := fetcher.NewManga(http.DefaultClient, cfg.MangaAPIURL)
	for _, f := range []interface{ SetTimeout(time.Duration) }{weather, blog, manga} {
		f.SetTimeout(cfg.FetchTimeout)
	}

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, manga, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	schedules, err := dailySchedules(cfg)
	if err != nil {
		log.Error("build schedules", "error", err)
		os.Exit(1)
	}

	rec := reconciler.New(reconciler.Config{
		Store:     store,
		Weather:   weather,
		Blog:      blog,
		Manga:     manga,
		Notifier:  b,
		Log:       log,
		Location:  cfg.Location(),
		Schedules: schedules,
		Stagger:   cfg.MangaStagger,
	})
	b.SetScheduler(rec)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rec.ReconcileAll(ctx); err != nil {
		log.Error("restore scheduled tasks", "error", err)
		os.Exit(1)
	}
	rec.Start()

	log.Info("starting bot")

	b.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := rec.Stop(stopCtx); err != nil {
		log.Error("stop scheduler", "error", err)
	}

	log.Info("bot stopped")
}

func dailySchedules(cfg *config.Config) (reconciler.Schedules, error) {
	var s reconciler.Schedules
	var err error
	if s.WeatherMorning, err = reconciler.DailySpec(cfg.MorningTime); err != nil {
		return s, err
	}
	if s.WeatherNoon, err = reconciler.DailySpec(cfg.NoonTime); err != nil {
		return s, err
	}
	if s.Evening, err = reconciler.DailySpec(cfg.EveningTime); err != nil {
		return s, err
	}
	return s, nil
}
