package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyBrief/internal/infrastructure/fetch"
)

func words(n int, word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestExtractTextPrefersMain(t *testing.T) {
	t.Parallel()

	page := fmt.Sprintf(`<html><body>
		<nav>%s</nav>
		<main><h1>Title</h1><p>%s</p><script>var x = 1;</script></main>
		<footer>%s</footer>
	</body></html>`, words(50, "menu"), words(45, "story"), words(50, "legal"))

	text, err := ExtractText([]byte(page))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Title story"))
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "legal")
	assert.NotContains(t, text, "var x")
}

func TestExtractTextFallsBackToParagraphsAndBody(t *testing.T) {
	t.Parallel()

	page := fmt.Sprintf(`<html><body><div class="post-content"><p>%s</p><p>%s</p></div></body></html>`,
		words(25, "alpha"), words(25, "beta"))
	text, err := ExtractText([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, words(25, "alpha")+" "+words(25, "beta"), text)

	body := fmt.Sprintf(`<html><body><div>%s</div></body></html>`, words(41, "gamma"))
	text, err = ExtractText([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, words(41, "gamma"), text)
}

func TestExtractTextRejectsShortText(t *testing.T) {
	t.Parallel()

	_, err := ExtractText([]byte(`<html><body><p>` + words(40, "tiny") + `</p></body></html>`))
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	t.Parallel()

	garbage := strings.Repeat("word \x01\x02\x03 ", 60)
	_, err := ExtractText([]byte(`<html><body><p>` + garbage + `</p></body></html>`))
	assert.ErrorIs(t, err, ErrDirtyContent)
}

func TestExtractFetchesOverHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<article>%s</article>", words(60, "news"))
	})
	mux.HandleFunc("/file.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(words(60, "pdf")))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := fetch.New(fetch.Options{PoliteDelay: time.Millisecond, InitialBackoff: time.Millisecond}, srv.Client(), nil)
	ex := NewGoqueryExtractor(client)

	text, err := ex.Extract(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, words(60, "news"), text)

	_, err = ex.Extract(context.Background(), srv.URL+"/file.pdf")
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = ex.Extract(context.Background(), srv.URL+"/missing")
	assert.True(t, errors.Is(err, ErrNoContent))
}
