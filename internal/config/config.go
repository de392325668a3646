// Package config handles application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	LogFile          string
	AllowedUsers     []int64

	WeatherAPIKey string
	WeatherLat    float64
	WeatherLon    float64
	FeedURL       string
	MangaAPIURL   string

	Timezone    string
	MorningTime string // HH:MM, first daily weather update
	NoonTime    string // HH:MM, second daily weather update
	EveningTime string // HH:MM, blog and manga updates

	FetchTimeout time.Duration
	MangaStagger time.Duration
}

// Load reads configuration from environment variables. A .env file in
// the working directory is applied first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	weatherKey := os.Getenv("WEATHER_API_KEY")
	if weatherKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY is required")
	}

	feedURL := os.Getenv("FEED_URL")
	if feedURL == "" {
		return nil, fmt.Errorf("FEED_URL is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		WeatherAPIKey:    weatherKey,
		FeedURL:          feedURL,
		MangaAPIURL:      envOrDefault("MANGA_API_URL", "https://api.mangadex.org"),
		Timezone:         envOrDefault("TIMEZONE", "America/Lima"),
		MorningTime:      envOrDefault("MORNING_TIME", "06:01"),
		NoonTime:         envOrDefault("NOON_TIME", "13:01"),
		EveningTime:      envOrDefault("EVENING_TIME", "18:30"),
	}

	var err error
	if cfg.WeatherLat, err = envFloat("WEATHER_LAT", 4.62); err != nil {
		return nil, err
	}
	if cfg.WeatherLon, err = envFloat("WEATHER_LON", -74.06); err != nil {
		return nil, err
	}

	fetchSecs, err := envInt("FETCH_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.FetchTimeout = time.Duration(fetchSecs) * time.Second

	staggerSecs, err := envInt("MANGA_STAGGER_SECONDS", 2)
	if err != nil {
		return nil, err
	}
	cfg.MangaStagger = time.Duration(staggerSecs) * time.Second

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	for _, clock := range []struct{ key, val string }{
		{"MORNING_TIME", cfg.MorningTime},
		{"NOON_TIME", cfg.NoonTime},
		{"EVENING_TIME", cfg.EveningTime},
	} {
		if _, err := time.Parse("15:04", clock.val); err != nil {
			return nil, fmt.Errorf("invalid %s %q: expected HH:MM", clock.key, clock.val)
		}
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	return cfg, nil
}

// Location resolves the configured timezone. Load has already validated
// it, so resolution cannot fail afterwards.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive integer", key, v)
	}
	return n, nil
}
