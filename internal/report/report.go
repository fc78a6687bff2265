// Package report renders the markdown digest and stores it on disk.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
)

const dayLayout = "2006-01-02"

// Build renders items in rank order. Publish times are shown in day's location.
func Build(day time.Time, items []domain.ArticleCandidate) string {
	lines := []string{fmt.Sprintf("# Daily Brief — %s", day.Format(dayLayout)), ""}
	if len(items) == 0 {
		lines = append(lines, "_No new articles today._", "")
	}
	for i, it := range items {
		lines = append(lines, fmt.Sprintf("## %d. %s", i+1, it.Title))
		if it.Published != nil {
			lines = append(lines, "_Published:_ "+it.Published.In(day.Location()).Format("2006-01-02 15:04 MST"))
		}
		lines = append(lines, "_Source:_ "+it.URL)
		if summary := strings.TrimSpace(it.Summary); summary != "" {
			lines = append(lines, "", summary)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// Subject is the delivery headline, e.g. "[Daily Brief] 2024-05-01".
func Subject(prefix string, day time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return day.Format(dayLayout)
	}
	return prefix + " " + day.Format(dayLayout)
}

// FileWriter keeps one markdown file per local day; reruns overwrite it.
type FileWriter struct {
	dir string
}

var _ ports.ReportWriter = (*FileWriter)(nil)

func NewFileWriter(dir string) *FileWriter {
	if dir == "" {
		dir = "reports"
	}
	return &FileWriter{dir: dir}
}

func (w *FileWriter) Save(ctx context.Context, day time.Time, markdown string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	path := filepath.Join(w.dir, day.Format(dayLayout)+".md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move report into place: %w", err)
	}
	return path, nil
}
