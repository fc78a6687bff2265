package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyBrief/internal/domain"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	published := time.Date(2024, 4, 30, 22, 15, 0, 0, time.UTC)
	md := Build(day, []domain.ArticleCandidate{
		{Title: "First", URL: "https://a.example/1", Published: &published, Summary: "- one\n- two\n"},
		{Title: "Second", URL: "https://a.example/2"},
	})

	want := "# Daily Brief — 2024-05-01\n\n" +
		"## 1. First\n_Published:_ 2024-04-30 22:15 UTC\n_Source:_ https://a.example/1\n\n- one\n- two\n\n" +
		"## 2. Second\n_Source:_ https://a.example/2\n"
	assert.Equal(t, want, md)
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "# Daily Brief — 2024-05-01\n\n_No new articles today._\n", Build(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), nil))
}

func TestSubject(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "[Daily Brief] 2024-05-01", Subject("[Daily Brief]", day))
	assert.Equal(t, "2024-05-01", Subject(" ", day))
}

func TestFileWriterOverwrites(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "reports")
	w := NewFileWriter(dir)
	day := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	_, err := w.Save(context.Background(), day, "first")
	require.NoError(t, err)
	path, err := w.Save(context.Background(), day, "second")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2024-05-01.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
