package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// Blog downloads and parses the watched blog feed.
type Blog struct {
	client  HTTPClient
	feedURL string
	timeout time.Duration
}

// NewBlog creates a blog fetcher for a fixed feed URL.
func NewBlog(client HTTPClient, feedURL string) *Blog {
	return &Blog{
		client:  client,
		feedURL: feedURL,
		timeout: defaultTimeout,
	}
}

// SetTimeout overrides the default per-request timeout.
func (b *Blog) SetTimeout(d time.Duration) {
	if d > 0 {
		b.timeout = d
	}
}

// BlogEntry is one feed item with a parseable publication time.
type BlogEntry struct {
	Title     string
	Link      string
	Published time.Time
}

// Fetch downloads the feed and returns its entries in feed order.
// Items without a parseable publication date are dropped: without a
// timestamp they cannot be compared against the high-water mark.
func (b *Blog) Fetch(ctx context.Context) ([]BlogEntry, error) {
	body, err := get(ctx, b.client, b.feedURL, b.timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch blog feed: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var entries []BlogEntry
	for _, item := range feed.Items {
		if item.PublishedParsed == nil {
			continue
		}
		entries = append(entries, BlogEntry{
			Title:     item.Title,
			Link:      item.Link,
			Published: item.PublishedParsed.UTC(),
		})
	}
	return entries, nil
}
