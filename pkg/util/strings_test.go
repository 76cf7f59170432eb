package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "brighton hove albion", Normalize("  Brighton & Hove   Albion "))
	assert.Equal(t, "", Normalize("&&"))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 0, LevenshteinDistance("same", "same"))
	assert.Equal(t, 4, LevenshteinDistance("", "four"))
	assert.Equal(t, 1, LevenshteinDistance("café", "cafe"))
}

func TestFuzzyMatch(t *testing.T) {
	assert.Equal(t, 0, FuzzyMatch("Arsenal", "Arsenal FC"))
	assert.True(t, IsFuzzyMatch("Totenham", "Tottenham Hotspur"))
	assert.False(t, IsFuzzyMatch("Everton", "Liverpool"))
}

func TestFuzzyMatchScore(t *testing.T) {
	assert.Equal(t, 1.0, FuzzyMatchScore("", ""))
	assert.Equal(t, 1.0, FuzzyMatchScore("Chelsea", "chelsea"))
	assert.Less(t, FuzzyMatchScore("Chelsea", "Fulham"), 0.5)
}

func TestBestMatch(t *testing.T) {
	teams := []string{"Manchester United", "Manchester City", "Newcastle United"}

	i, score := BestMatch("Man City", teams)
	assert.Equal(t, 1, i)
	assert.Greater(t, score, MinMatchScore)

	i, _ = BestMatch("Newcastle", teams)
	assert.Equal(t, 2, i)

	i, _ = BestMatch("Real Madrid", teams)
	assert.Equal(t, -1, i)

	i, _ = BestMatch("anything", nil)
	assert.Equal(t, -1, i)
}
