package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mmcdole/gofeed"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/infrastructure/fetch"
	"DailyBrief/internal/scanner"
)

// PageGetter performs a single polite GET.
type PageGetter interface {
	GetOnce(ctx context.Context, url string) (*fetch.Response, error)
}

// RSSScanner reads RSS, Atom and JSON feeds.
type RSSScanner struct {
	client    PageGetter
	converter *md.Converter
}

// NewRSSScanner wires the shared fetch client.
func NewRSSScanner(client PageGetter) *RSSScanner {
	return &RSSScanner{
		client:    client,
		converter: md.NewConverter("", true, nil),
	}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan downloads the feed once and maps every linked item to a feed entry.
// The optional "limit" option caps the number of entries.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.FeedEntry, error) {
	resp, err := s.client.GetOnce(ctx, req.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", req.SourceURL, err)
	}

	limit := optionInt(req.Options, "limit", 0)
	entries := make([]domain.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		if link == "" {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "(no title)"
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		entries = append(entries, domain.FeedEntry{
			Title:       title,
			URL:         link,
			Description: s.plainText(description),
			Published:   publishedAt(item),
			SourceURL:   req.SourceURL,
		})
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (s *RSSScanner) plainText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	text, err := s.converter.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(text)
}

func publishedAt(item *gofeed.Item) *time.Time {
	for _, ts := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if ts != nil && !ts.IsZero() {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func optionInt(options map[string]string, key string, fallback int) int {
	raw, ok := options[key]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
