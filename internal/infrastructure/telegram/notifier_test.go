package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestDeliverPostsForm(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("chat_id"); got != "42" {
			t.Errorf("chat_id = %q", got)
		}
		mu.Lock()
		texts = append(texts, r.PostForm.Get("text"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "42")
	n.apiBase = srv.URL

	if err := n.Deliver(context.Background(), "[Daily Brief] 2024-05-01", "## 1. Title\nbody"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("expected one message, got %d", len(texts))
	}
	if !strings.HasPrefix(texts[0], "[Daily Brief] 2024-05-01\n\n## 1. Title") {
		t.Fatalf("unexpected text %q", texts[0])
	}
}

func TestDeliverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	err := n.Deliver(context.Background(), "s", "b")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error, got %v", err)
	}

	if err := NewNotifier("", "").Deliver(context.Background(), "s", "b"); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("abcdefghi\n", 5)
	parts := splitMessage(text, 25)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %q", len(parts), parts)
	}
	for _, p := range parts {
		if len([]rune(p)) > 25 {
			t.Fatalf("part too long: %q", p)
		}
	}

	long := splitMessage(strings.Repeat("x", 12), 5)
	if len(long) != 3 || long[2] != "xx" {
		t.Fatalf("unexpected hard split %q", long)
	}
}
