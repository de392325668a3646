// Package fetcher contains the HTTP clients for the external update
// sources: the weather API, the blog feed, and the manga catalog.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUpstream reports a non-success response from a third-party API.
// Scheduled polls treat it as a no-op tick; interactive fetches surface
// it to the user.
var ErrUpstream = errors.New("upstream fetch failed")

// StatusError is an ErrUpstream carrying the offending HTTP status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream fetch failed: status %d", e.Code)
}

// Is makes StatusError match ErrUpstream in errors.Is chains.
func (e *StatusError) Is(target error) bool { return target == ErrUpstream }

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	userAgent      = "notibot/1.0"
	maxBodySize    = 5 * 1024 * 1024
	defaultTimeout = 30 * time.Second
)

// get performs a bounded GET and returns the response body.
func get(ctx context.Context, client HTTPClient, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
