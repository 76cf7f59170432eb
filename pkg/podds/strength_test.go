package podds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrengthColdStartUsesDefaults(t *testing.T) {
	cfg := testConfig()
	model := NewStrengthModel(cfg)
	team := NewTeamSeason(1, testKey, "New", cfg.RatingBaseline)

	s := model.Strength(team)
	assert.True(t, s.UsedDefaults)
	assert.InDelta(t, 1.0, s.Attack, 1e-12)
	assert.InDelta(t, 1.0, s.Defense, 1e-12)
	assert.Equal(t, FormAverage, s.FormLabel)
}

func TestNeutralExpectedGoals(t *testing.T) {
	cfg := testConfig()
	model := NewStrengthModel(cfg)
	home := NewTeamSeason(1, testKey, "Home", 1500)
	away := NewTeamSeason(2, testKey, "Away", 1500)

	xg := model.ExpectedGoals(home, away)
	assert.InDelta(t, 1.3, xg.Home, 1e-9)
	assert.InDelta(t, 1.0, xg.Away, 1e-9)
}

func TestNeutralScenarioOutcome(t *testing.T) {
	cfg := testConfig()
	model := NewStrengthModel(cfg)
	xg := model.ExpectedGoals(NewTeamSeason(1, testKey, "Home", 1500), NewTeamSeason(2, testKey, "Away", 1500))

	dist := NewClosedFormSimulator(cfg).Simulate(xg.Home, xg.Away).WithDixonColes(cfg.DixonColesRho)
	m := DeriveMarkets(dist, ScorerInput{}, cfg)

	assert.GreaterOrEqual(t, m.HomeWin, 0.35)
	assert.LessOrEqual(t, m.HomeWin, 0.45)
	assert.GreaterOrEqual(t, m.Draw, 0.25)
	assert.LessOrEqual(t, m.Draw, 0.30)
	assert.Greater(t, m.HomeWin, m.AwayWin)
}

func strongAndWeak(cfg *PoddsConfig) (*TeamSeason, *TeamSeason) {
	home := NewTeamSeason(1, testKey, "Strong", cfg.RatingBaseline)
	home.Rating = 1800
	home.Played, home.GoalsFor, home.GoalsAgainst = 10, 10, 15
	home.FormPoints5 = intPtr(15)

	away := NewTeamSeason(2, testKey, "Weak", cfg.RatingBaseline)
	away.Rating = 1300
	away.Played, away.GoalsFor, away.GoalsAgainst = 10, 10, 15
	away.FormPoints5 = intPtr(0)
	return home, away
}

func TestStrongHomeScenario(t *testing.T) {
	cfg := testConfig()
	model := NewStrengthModel(cfg)
	home, away := strongAndWeak(cfg)

	xg := model.ExpectedGoals(home, away)
	assert.Equal(t, FormExcellent, xg.HomeStrength.FormLabel)
	assert.Equal(t, FormCritical, xg.AwayStrength.FormLabel)
	assert.InDelta(t, 2.535, xg.Home, 1e-3)
	assert.InDelta(t, 0.492, xg.Away, 1e-3)

	dist := NewClosedFormSimulator(cfg).Simulate(xg.Home, xg.Away).WithDixonColes(cfg.DixonColesRho)
	m := DeriveMarkets(dist, ScorerInput{}, cfg)
	assert.GreaterOrEqual(t, m.HomeWin-m.AwayWin, 0.30)
}

func TestRatingMultiplierBounds(t *testing.T) {
	model := NewStrengthModel(testConfig())
	assert.InDelta(t, 1.0, model.RatingMultiplier(1500), 1e-12)
	assert.InDelta(t, 1.1, model.RatingMultiplier(1600), 1e-12)
	assert.InDelta(t, 1.3, model.RatingMultiplier(2500), 1e-12)
	assert.InDelta(t, 0.7, model.RatingMultiplier(500), 1e-12)
}

func TestMotivationMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, MotivationMultiplier(50))
	assert.InDelta(t, 1.1, MotivationMultiplier(100), 1e-12)
	assert.InDelta(t, 0.9, MotivationMultiplier(0), 1e-12)
	assert.InDelta(t, 1.1, MotivationMultiplier(400), 1e-12)
}

func TestExpectedGoalsAreClamped(t *testing.T) {
	cfg := testConfig()
	model := NewStrengthModel(cfg)

	prolific := NewTeamSeason(1, testKey, "Prolific", cfg.RatingBaseline)
	prolific.Played, prolific.GoalsFor, prolific.GoalsAgainst = 5, 30, 0
	barren := NewTeamSeason(2, testKey, "Barren", cfg.RatingBaseline)
	barren.Played, barren.GoalsFor, barren.GoalsAgainst = 5, 0, 30

	xg := model.ExpectedGoals(prolific, barren)
	assert.Equal(t, cfg.MaxGoals, xg.Home)
	assert.Equal(t, cfg.MinGoals, xg.Away)
}

func TestBiasShiftsExpectedGoals(t *testing.T) {
	cfg := testConfig()
	home := NewTeamSeason(1, testKey, "Home", 1500)
	away := NewTeamSeason(2, testKey, "Away", 1500)

	base := NewStrengthModel(cfg)
	biased := base.WithBias(StrengthBias{HomeAdvantageShift: 0.1, GoalScaleShift: 0.1, Sample: 30})
	require.Zero(t, base.Bias().Sample)

	xg := biased.ExpectedGoals(home, away)
	assert.InDelta(t, 1.4*1.1, xg.Home, 1e-9)
	assert.InDelta(t, 1.1, xg.Away, 1e-9)
}
