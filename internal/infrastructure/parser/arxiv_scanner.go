package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/scanner"
)

const defaultArxivPageSize = 200

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivScanner crawls arXiv listing pages (e.g. /list/cs.AI/new), which have no usable RSS descriptions.
type ArxivScanner struct {
	client   PageGetter
	pageSize int
}

// NewArxivScanner wires the shared fetch client; pageSize defaults to 200.
func NewArxivScanner(client PageGetter) *ArxivScanner {
	return &ArxivScanner{client: client, pageSize: defaultArxivPageSize}
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return "arxiv"
}

// Scan walks up to the "pages" option (default 1) listing pages and returns every entry found.
// The "limit" option caps the total.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.FeedEntry, error) {
	pages := max(optionInt(req.Options, "pages", 1), 1)
	limit := optionInt(req.Options, "limit", 0)

	results := make([]domain.FeedEntry, 0)
	seen := map[string]struct{}{}

	for page := 0; page < pages; page++ {
		pageURL, err := buildPageURL(req.SourceURL, page*a.pageSize, a.pageSize)
		if err != nil {
			return nil, err
		}

		doc, base, err := a.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, err
		}

		entries, processed := extractEntries(doc, base, req.SourceURL)
		for _, entry := range entries {
			if _, ok := seen[entry.URL]; ok {
				continue
			}
			seen[entry.URL] = struct{}{}
			results = append(results, entry)
			if limit > 0 && len(results) == limit {
				return results, nil
			}
		}

		if processed < a.pageSize {
			break
		}
	}

	return results, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	resp, err := a.client.GetOnce(ctx, pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("request listing: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse listing: %w", err)
	}

	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse listing url: %w", err)
	}
	return doc, base, nil
}

func extractEntries(doc *goquery.Document, base *url.URL, sourceURL string) ([]domain.FeedEntry, int) {
	var (
		collected []domain.FeedEntry
		processed int
	)

	doc.Find("dl > dt").Each(func(_ int, dt *goquery.Selection) {
		processed++
		entry, ok := parseEntry(dt, dt.Next(), base)
		if !ok {
			return
		}
		entry.SourceURL = sourceURL
		collected = append(collected, entry)
	})

	return collected, processed
}

func parseEntry(dt, dd *goquery.Selection, base *url.URL) (domain.FeedEntry, bool) {
	href, exists := dt.Find(`a[href*="/abs/"]`).First().Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return domain.FeedEntry{}, false
	}
	link, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.FeedEntry{}, false
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		title = "(no title)"
	}

	abstract := dd.Find("p.mathjax").First().Text()
	abstract = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:"))

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	var published *time.Time
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			published = &parsed
		}
	}

	return domain.FeedEntry{
		Title:       title,
		URL:         link.String(),
		Description: abstract,
		Published:   published,
	}, true
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
