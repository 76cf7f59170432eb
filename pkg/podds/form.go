package podds

import (
	"math"
	"time"
)

// Form labels
const (
	FormExcellent = "excellent"
	FormGood      = "good"
	FormAverage   = "average"
	FormPoor      = "poor"
	FormCritical  = "critical"
)

var formMultipliers = map[string]float64{
	FormExcellent: 1.2,
	FormGood:      1.1,
	FormAverage:   1.0,
	FormPoor:      0.9,
	FormCritical:  0.8,
}

// FormPoints sums 3/1/0 points over the team's n most recent completed
// fixtures strictly before the given time. nil means fewer than n fixtures
// exist, which is not the same thing as zero form
func FormPoints(arena *FixtureArena, teamID int, before time.Time, n int) *int {
	if n <= 0 {
		return nil
	}
	recent := arena.Recent(teamID, before, n)
	if len(recent) < n {
		return nil
	}
	points := 0
	for i := range recent {
		points += recent[i].PointsFor(teamID)
	}
	return &points
}

// Volatility is the population standard deviation of goal difference over
// the last window fixtures, nil below minSample
func Volatility(arena *FixtureArena, teamID int, before time.Time, window, minSample int) *float64 {
	recent := arena.Recent(teamID, before, window)
	if len(recent) < minSample || len(recent) == 0 {
		return nil
	}
	diffs := make([]float64, len(recent))
	mean := 0.0
	for i := range recent {
		scored, conceded := recent[i].GoalsFor(teamID)
		diffs[i] = float64(scored - conceded)
		mean += diffs[i]
	}
	mean /= float64(len(diffs))
	variance := 0.0
	for _, d := range diffs {
		variance += (d - mean) * (d - mean)
	}
	sd := math.Sqrt(variance / float64(len(diffs)))
	return &sd
}

// FormLabel maps a points total over a window onto the qualitative ladder.
// Missing form is average
func FormLabel(points *int, window int) string {
	if points == nil || window <= 0 {
		return FormAverage
	}
	ratio := float64(*points) / float64(3*window)
	switch {
	case ratio >= 0.8:
		return FormExcellent
	case ratio >= 0.6:
		return FormGood
	case ratio >= 0.4:
		return FormAverage
	case ratio >= 0.2:
		return FormPoor
	default:
		return FormCritical
	}
}

// FormMultiplier is the attack scalar for a label, unknown labels are neutral
func FormMultiplier(label string) float64 {
	if m, ok := formMultipliers[label]; ok {
		return m
	}
	return 1.0
}

// FormString renders the most recent results as W/D/L, oldest first
func FormString(arena *FixtureArena, teamID int, before time.Time, n int) string {
	recent := arena.Recent(teamID, before, n)
	b := make([]byte, len(recent))
	for i := range recent {
		var c byte
		switch recent[i].PointsFor(teamID) {
		case 3:
			c = 'W'
		case 1:
			c = 'D'
		default:
			c = 'L'
		}
		b[len(recent)-1-i] = c
	}
	return string(b)
}
