package util

import (
	"math"
	"strings"
	"unicode"
)

// MinMatchScore is the lowest FuzzyMatchScore accepted by BestMatch
const MinMatchScore = 0.6

// Normalize lowercases s, drops punctuation and collapses whitespace so that
// "Brighton & Hove Albion" and "brighton hove albion" compare equal
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// IsFuzzyMatch is true when the Levenshtein distance is at most 2
func IsFuzzyMatch(str1, str2 string) bool {
	return FuzzyMatch(str1, str2) <= 2
}

// FuzzyMatch performs fuzzy string matching using Levenshtein distance
// Returns the minimum edit distance between the shorter string and the best
// matching substring of the longer one
func FuzzyMatch(str1, str2 string) int {
	a := []rune(Normalize(str1))
	b := []rune(Normalize(str2))
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}

	minDistance := math.MaxInt32
	for i := 0; i <= len(longer)-len(shorter); i++ {
		distance := levenshtein(shorter, longer[i:i+len(shorter)])
		if distance < minDistance {
			minDistance = distance
		}
		if minDistance == 0 {
			break
		}
	}
	return minDistance
}

// LevenshteinDistance calculates the Levenshtein distance between two strings
func LevenshteinDistance(s1, s2 string) int {
	return levenshtein([]rune(s1), []rune(s2))
}

func levenshtein(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}
	// two rows are enough
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

// FuzzyMatchScore returns a similarity score between 0.0 and 1.0
// where 1.0 is a perfect match and 0.0 is completely different
func FuzzyMatchScore(str1, str2 string) float64 {
	maxLen := max(len([]rune(Normalize(str1))), len([]rune(Normalize(str2))))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(FuzzyMatch(str1, str2))/float64(maxLen)
}

// BestMatch returns the index of the candidate closest to query, or -1 when
// none scores at least MinMatchScore. Ties go to the earlier candidate
func BestMatch(query string, candidates []string) (int, float64) {
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		score := FuzzyMatchScore(query, c)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore < MinMatchScore {
		return -1, bestScore
	}
	return best, bestScore
}
