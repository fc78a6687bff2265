package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyBrief/internal/scanner"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example</title>
  <item>
    <title>Go 1.24 released</title>
    <link>https://example.com/go-124</link>
    <description><![CDATA[<p>The <b>Go</b> team ships generics aliases.</p>]]></description>
    <pubDate>Tue, 11 Feb 2025 10:00:00 +0100</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://example.com/untitled</link>
  </item>
  <item>
    <title>No link</title>
  </item>
</channel>
</rss>`

func TestRSSScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer server.Close()

	sc := NewRSSScanner(testFetchClient(server.Client()))
	entries, err := sc.Scan(context.Background(), scanner.Request{SourceURL: server.URL})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "Go 1.24 released", first.Title)
	assert.Equal(t, "https://example.com/go-124", first.URL)
	assert.Equal(t, server.URL, first.SourceURL)
	assert.Contains(t, first.Description, "generics aliases")
	assert.NotContains(t, first.Description, "<p>")
	require.NotNil(t, first.Published)
	assert.True(t, first.Published.Equal(time.Date(2025, 2, 11, 9, 0, 0, 0, time.UTC)), "published %v", first.Published)

	assert.Equal(t, "(no title)", entries[1].Title)
	assert.Nil(t, entries[1].Published)
}

func TestRSSScannerLimitAndErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/broken") {
			_, _ = w.Write([]byte("this is not a feed"))
			return
		}
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer server.Close()

	sc := NewRSSScanner(testFetchClient(server.Client()))
	entries, err := sc.Scan(context.Background(), scanner.Request{
		SourceURL: server.URL + "/feed",
		Options:   map[string]string{"limit": "1"},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = sc.Scan(context.Background(), scanner.Request{SourceURL: server.URL + "/broken"})
	require.Error(t, err)
}
