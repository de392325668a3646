package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func hourlyJSON(hours ...string) string {
	return fmt.Sprintf(`{"timezone_offset":0,"hourly":[%s]}`, strings.Join(hours, ","))
}

func hourJSON(at time.Time, id int, description string) string {
	return fmt.Sprintf(`{"dt":%d,"weather":[{"id":%d,"main":"","description":"%s"}]}`,
		at.Unix(), id, description)
}

func TestWeatherFetch(t *testing.T) {
	at := time.Date(2023, 6, 1, 15, 0, 0, 0, time.UTC)
	body := hourlyJSON(
		hourJSON(at, 800, "clear sky"),
		hourJSON(at.Add(time.Hour), 500, "light rain"),
	)

	transport := &mockTransport{body: body, statusCode: 200}
	w := NewWeather(transport, "test-key", 4.62, -74.06)

	got, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "03PM | clear sky\n04PM | light rain ☔\n"
	if got != want {
		t.Errorf("forecast mismatch:\ngot  %q\nwant %q", got, want)
	}

	for _, param := range []string{"lat=4.62", "lon=-74.06", "appid=test-key", "units=metric"} {
		if !strings.Contains(transport.gotURL, param) {
			t.Errorf("request URL missing %q: %s", param, transport.gotURL)
		}
	}
}

func TestWeatherFetchCapsHours(t *testing.T) {
	at := time.Date(2023, 6, 1, 6, 0, 0, 0, time.UTC)
	var hours []string
	for i := 0; i < 12; i++ {
		hours = append(hours, hourJSON(at.Add(time.Duration(i)*time.Hour), 800, "clear sky"))
	}

	transport := &mockTransport{body: hourlyJSON(hours...), statusCode: 200}
	w := NewWeather(transport, "k", 0, 0)

	got, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines := strings.Count(got, "\n"); lines != hoursAhead {
		t.Errorf("expected %d forecast lines, got %d", hoursAhead, lines)
	}
}

func TestWeatherFetchErrors(t *testing.T) {
	tests := []struct {
		name         string
		transport    *mockTransport
		wantUpstream bool
	}{
		{name: "http error status", transport: &mockTransport{body: "denied", statusCode: 401}, wantUpstream: true},
		{name: "empty forecast", transport: &mockTransport{body: hourlyJSON(), statusCode: 200}},
		{name: "invalid json", transport: &mockTransport{body: "{", statusCode: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWeather(tt.transport, "k", 0, 0)
			_, err := w.Fetch(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantUpstream && !errors.Is(err, ErrUpstream) {
				t.Errorf("expected ErrUpstream, got %v", err)
			}
		})
	}
}
