// Package summarize turns article text into short bullet summaries.
package summarize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultSentences   = 6
	minSentenceWords   = 9
	maxSentencesScored = 30
	fallbackRunes      = 400
)

var wordPattern = regexp.MustCompile(`[A-Za-z]{3,}`)

// Extractive picks the n sentences whose words are most frequent across the text and
// renders them as markdown bullets in score order.
func Extractive(text string, n int) string {
	if n <= 0 {
		n = DefaultSentences
	}

	var sentences []string
	for _, s := range splitSentences(text) {
		if len(strings.Fields(s)) >= minSentenceWords {
			sentences = append(sentences, s)
		}
		if len(sentences) == maxSentencesScored {
			break
		}
	}
	if len(sentences) == 0 {
		return fallback(text)
	}

	freq := make(map[string]int)
	for _, s := range sentences {
		for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
			freq[w]++
		}
	}

	type scored struct {
		score    int
		sentence string
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		total := 0
		for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
			total += freq[w]
		}
		ranked[i] = scored{score: total, sentence: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	lines := make([]string, len(ranked))
	for i, r := range ranked {
		lines[i] = "- " + r.sentence
	}
	return strings.Join(lines, "\n")
}

// splitSentences breaks after '.', '!' or '?' when followed by whitespace.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func fallback(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) > fallbackRunes {
		return "- " + string(runes[:fallbackRunes]) + "…"
	}
	return "- " + text
}
