package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// sinceLayout is the timestamp format the chapter endpoint expects for
// its publishAtSince parameter (no timezone suffix, always UTC).
const sinceLayout = "2006-01-02T15:04:05"

// Manga talks to a MangaDex-style catalog API.
type Manga struct {
	client  HTTPClient
	baseURL string
	timeout time.Duration
}

// NewManga creates a manga fetcher against the given API base URL.
func NewManga(client HTTPClient, baseURL string) *Manga {
	return &Manga{
		client:  client,
		baseURL: baseURL,
		timeout: defaultTimeout,
	}
}

// SetTimeout overrides the default per-request timeout.
func (m *Manga) SetTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

// Chapter is one released chapter of a watched title.
type Chapter struct {
	Volume    string
	Chapter   string
	Title     string
	PublishAt time.Time
}

type mangaResponse struct {
	Data struct {
		Attributes struct {
			Title map[string]string `json:"title"`
		} `json:"attributes"`
	} `json:"data"`
}

type chapterResponse struct {
	Data []struct {
		Attributes struct {
			Volume    string `json:"volume"`
			Chapter   string `json:"chapter"`
			Title     string `json:"title"`
			PublishAt string `json:"publishAt"`
		} `json:"attributes"`
	} `json:"data"`
}

// TitleExists checks whether the catalog knows the given title ID and
// returns its display title. A 404 is a negative answer, not an error.
func (m *Manga) TitleExists(ctx context.Context, titleID string) (bool, string, error) {
	body, err := get(ctx, m.client, m.baseURL+"/manga/"+url.PathEscape(titleID), m.timeout)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("check manga %s: %w", titleID, err)
	}

	var resp mangaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, "", fmt.Errorf("parse manga response: %w", err)
	}

	title := resp.Data.Attributes.Title["en"]
	if title == "" {
		for _, t := range resp.Data.Attributes.Title {
			title = t
			break
		}
	}
	if title == "" {
		title = titleID
	}
	return true, title, nil
}

// ChaptersSince returns the chapters of a title published at or after
// since, in ascending publication order. The API boundary is inclusive;
// callers nudge the stored mark past notified chapters themselves.
func (m *Manga) ChaptersSince(ctx context.Context, titleID string, since time.Time) ([]Chapter, error) {
	q := url.Values{}
	q.Set("manga", titleID)
	q.Set("publishAtSince", since.UTC().Format(sinceLayout))
	q.Set("order[publishAt]", "asc")
	q.Set("limit", "100")

	body, err := get(ctx, m.client, m.baseURL+"/chapter?"+q.Encode(), m.timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch chapters for %s: %w", titleID, err)
	}

	var resp chapterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chapter response: %w", err)
	}

	var chapters []Chapter
	for _, d := range resp.Data {
		publishAt, err := time.Parse(time.RFC3339, d.Attributes.PublishAt)
		if err != nil {
			continue
		}
		chapters = append(chapters, Chapter{
			Volume:    d.Attributes.Volume,
			Chapter:   d.Attributes.Chapter,
			Title:     d.Attributes.Title,
			PublishAt: publishAt.UTC(),
		})
	}
	return chapters, nil
}

// isStatus reports whether err carries the given HTTP status code.
func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
