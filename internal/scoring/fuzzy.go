package scoring

// PartialRatio returns the best InDel similarity (0..100) between the shorter string and
// any equally long window of the longer one, including the partial windows at both edges.
func PartialRatio(a, b string) float64 {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}
	if len(s1) > len(s2) {
		s1, s2 = s2, s1
	}

	best := partialRatio(s1, s2)
	if len(s1) == len(s2) && best < 100 {
		best = max(best, partialRatio(s2, s1))
	}
	return best
}

func partialRatio(short, long []rune) float64 {
	m, n := len(short), len(long)
	var best float64

	for i := 1; i < m; i++ {
		best = max(best, indelRatio(short, long[:i]))
	}
	for i := 0; i+m <= n; i++ {
		best = max(best, indelRatio(short, long[i:i+m]))
		if best == 100 {
			return best
		}
	}
	for i := n - m + 1; i < n; i++ {
		best = max(best, indelRatio(short, long[i:]))
	}
	return best
}

func indelRatio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcsLength(a, b)) / float64(total)
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
