package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultWeatherURL = "https://api.openweathermap.org/data/2.5/onecall"

// Weather fetches the hourly forecast from the OpenWeatherMap one-call
// API and renders it as a short notification text. Weather has no
// high-water mark: every fetch is a full current snapshot.
type Weather struct {
	client  HTTPClient
	baseURL string
	apiKey  string
	lat     float64
	lon     float64
	timeout time.Duration
}

// NewWeather creates a weather fetcher for a fixed location.
func NewWeather(client HTTPClient, apiKey string, lat, lon float64) *Weather {
	return &Weather{
		client:  client,
		baseURL: defaultWeatherURL,
		apiKey:  apiKey,
		lat:     lat,
		lon:     lon,
		timeout: defaultTimeout,
	}
}

// SetTimeout overrides the default per-request timeout.
func (w *Weather) SetTimeout(d time.Duration) {
	if d > 0 {
		w.timeout = d
	}
}

type weatherResponse struct {
	TimezoneOffset int64 `json:"timezone_offset"`
	Hourly         []struct {
		Dt      int64 `json:"dt"`
		Weather []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"hourly"`
}

// hoursAhead is how much of the hourly forecast ends up in one message.
const hoursAhead = 8

// Fetch downloads the forecast and formats the next hours, one line per
// hour, e.g. "03PM | light rain ☔". Condition codes below 700 are the
// precipitation group and get the umbrella marker.
func (w *Weather) Fetch(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", w.lat))
	q.Set("lon", fmt.Sprintf("%g", w.lon))
	q.Set("appid", w.apiKey)
	q.Set("exclude", "current,minutely,daily")
	q.Set("units", "metric")

	body, err := get(ctx, w.client, w.baseURL+"?"+q.Encode(), w.timeout)
	if err != nil {
		return "", fmt.Errorf("fetch weather: %w", err)
	}

	var resp weatherResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse weather response: %w", err)
	}

	hourly := resp.Hourly
	if len(hourly) > hoursAhead {
		hourly = hourly[:hoursAhead]
	}

	var b strings.Builder
	for _, h := range hourly {
		if len(h.Weather) == 0 {
			continue
		}
		local := time.Unix(h.Dt+resp.TimezoneOffset, 0).UTC()
		marker := ""
		if h.Weather[0].ID < 700 {
			marker = " ☔"
		}
		fmt.Fprintf(&b, "%s | %s%s\n", local.Format("03PM"), h.Weather[0].Description, marker)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("weather response contained no hourly forecast")
	}
	return b.String(), nil
}
