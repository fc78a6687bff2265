package scoring

// Weights controls the blend of the three partial scores.
type Weights struct {
	Semantic float64
	Keyword  float64
	Recency  float64
}

// DefaultWeights favours relevance over freshness.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.4, Keyword: 0.4, Recency: 0.2}
}

// MergeWeights applies overrides key by key on top of the defaults. Unknown keys are ignored.
func MergeWeights(overrides map[string]float64) Weights {
	w := DefaultWeights()
	for key, v := range overrides {
		switch key {
		case "semantic":
			w.Semantic = v
		case "keyword":
			w.Keyword = v
		case "recency":
			w.Recency = v
		}
	}
	return w
}

// Combined is a ranking key only; it has no absolute meaning.
func Combined(semantic, keyword, recency float64, w Weights) float64 {
	return w.Semantic*semantic + w.Keyword*keyword + w.Recency*recency
}
