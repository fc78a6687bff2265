package summarize

import (
	"fmt"
	"strings"

	"DailyBrief/internal/ports"
)

const (
	DefaultMaxWords = 140
	DefaultLanguage = "en"
	promptTextRunes = 6000
)

// SystemPrompt frames the model as a digest editor.
const SystemPrompt = "You write concise, factual news digests for a single reader."

// BuildPrompt renders the user message sent to every LLM backend.
func BuildPrompt(req ports.SummaryRequest) string {
	maxWords := req.MaxWords
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this article in %d words max in %s. ", maxWords, language)
	b.WriteString("Use bullets with crisp facts. Keep links/tickers if present.")
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(&b, " Style: %s.", style)
	}

	text := []rune(req.Text)
	if len(text) > promptTextRunes {
		text = text[:promptTextRunes]
	}
	fmt.Fprintf(&b, "\n\nTITLE: %s\n\nTEXT:\n%s", req.Title, string(text))
	return b.String()
}
