package match

import "strings"

// NameSimilarity scores how likely two personal names refer to the same
// person, in [0, 1]. Matching is case- and diacritic-insensitive and tolerant
// of one name being a substring of the other ("Jonas Petrauskas" against
// "Jonas Petrauskas I"). Token overlap handles reordered or partial names.
func NameSimilarity(a, b string) float64 {
	fa, fb := FoldName(a), FoldName(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 1.0
	}
	if strings.Contains(fa, fb) || strings.Contains(fb, fa) {
		return 0.9
	}
	return tokenOverlap(fa, fb)
}

// tokenOverlap is the Jaccard index over whitespace-separated name tokens.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	union := len(set)
	shared := 0
	for _, t := range tb {
		if set[t] {
			shared++
			delete(set, t)
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// BestCandidate selects the candidate name with the highest similarity to
// target. It returns the winning index, its score, and whether the winner is
// ambiguous (another candidate scored within tieMargin of it). Ambiguous
// winners must not be auto-registered by callers.
func BestCandidate(target string, candidates []string, tieMargin float64) (idx int, score float64, tie bool) {
	idx = -1
	var runnerUp float64
	for i, c := range candidates {
		s := NameSimilarity(target, c)
		if s > score {
			runnerUp = score
			score = s
			idx = i
		} else if s > runnerUp {
			runnerUp = s
		}
	}
	tie = idx >= 0 && score-runnerUp < tieMargin && runnerUp > 0
	return idx, score, tie
}
