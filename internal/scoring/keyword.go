// Package scoring ranks funnel candidates by lexical relevance, semantic similarity and freshness.
package scoring

import "strings"

// KeywordScore sums, per topic, the case-insensitive occurrences of the topic in
// title+"\n"+text and, when a title is present, the fuzzy title match scaled to [0,1].
// An empty topic list scores 0; the caller decides what that means.
func KeywordScore(text, title string, topics []string) float64 {
	hay := strings.ToLower(title + "\n" + text)
	lowerTitle := strings.ToLower(title)

	var score float64
	for _, topic := range topics {
		t := strings.ToLower(strings.TrimSpace(topic))
		if t == "" {
			continue
		}
		score += float64(strings.Count(hay, t))
		if title != "" {
			score += PartialRatio(t, lowerTitle) / 100
		}
	}
	return score
}

// NormalizeKeywordScore rescales raw against the batch maximum.
func NormalizeKeywordScore(raw, maxObserved float64) float64 {
	if maxObserved <= 0 {
		return 0
	}
	return min(raw/maxObserved, 1)
}
