package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"DailyBrief/internal/infrastructure/fetch"
	"DailyBrief/internal/ports"
)

const (
	minWords          = 40
	maxDirtyRatio     = 0.05
	paragraphSelector = `[class*="content"] p, [id*="content"] p, [class*="post"] p, [class*="entry"] p`
)

var (
	ErrNoContent    = errors.New("no usable article text")
	ErrDirtyContent = errors.New("article text looks binary or garbled")
)

var boilerplate = []string{"script", "style", "noscript", "header", "footer", "aside", "nav", "form", "iframe", "svg"}

// Getter is the subset of the fetch client the extractor needs.
type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// GoqueryExtractor downloads a page and keeps its main readable text.
type GoqueryExtractor struct {
	client Getter
}

var _ ports.TextExtractor = (*GoqueryExtractor)(nil)

func NewGoqueryExtractor(client Getter) *GoqueryExtractor {
	return &GoqueryExtractor{client: client}
}

// Extract returns the article body, ErrNoContent or ErrDirtyContent.
func (e *GoqueryExtractor) Extract(ctx context.Context, url string) (string, error) {
	resp, err := e.client.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoContent, err)
	}
	if ct := strings.ToLower(resp.ContentType); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("%w: content type %q", ErrNoContent, resp.ContentType)
	}
	return ExtractText(resp.Body)
}

// ExtractText applies the main-content heuristics to a raw HTML document.
func ExtractText(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %w", ErrNoContent, err)
	}
	doc.Find(strings.Join(boilerplate, ", ")).Remove()

	text := ""
	for _, sel := range []*goquery.Selection{
		doc.Find("main").First(),
		doc.Find("article").First(),
		doc.Find(paragraphSelector),
	} {
		if t := strippedText(sel); wordCount(t) > minWords {
			text = t
			break
		}
	}
	if text == "" {
		text = strippedText(doc.Find("body"))
	}

	if dirty(text) {
		return "", ErrDirtyContent
	}
	if wordCount(text) <= minWords {
		return "", fmt.Errorf("%w: %d words", ErrNoContent, wordCount(text))
	}
	return text, nil
}

// strippedText joins every non-blank text node with single spaces.
func strippedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func dirty(text string) bool {
	if text == "" {
		return false
	}
	var total, bad int
	for _, r := range text {
		total++
		if r == utf8.RuneError || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			bad++
		}
	}
	return float64(bad)/float64(total) >= maxDirtyRatio
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
