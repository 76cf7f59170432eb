package podds

// DefaultConfidence substitutes for any missing contributor
const DefaultConfidence = 50

// OverallConfidence is the weakest link of the three analyses
func OverallConfidence(home, away, matchup *int) int {
	return WeakestConfidence(DefaultConfidence, home, away, matchup)
}

// WeakestConfidence returns the minimum of the scores, counting nil as def
func WeakestConfidence(def int, scores ...*int) int {
	if len(scores) == 0 {
		return def
	}
	lowest := 101
	for _, s := range scores {
		v := def
		if s != nil {
			v = *s
		}
		lowest = min(lowest, v)
	}
	return max(0, min(100, lowest))
}
