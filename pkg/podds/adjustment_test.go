package podds

import (
	"math"
	"testing"

	"github.com/richard-senior/podds/pkg/advisory"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeOutcome(t *testing.T) {
	b := OutcomeBoundsFrom(testConfig())
	tests := []struct {
		name             string
		home, draw, away float64
	}{
		{"already valid", 0.45, 0.30, 0.25},
		{"unnormalised", 2, 1, 1},
		{"home heavy", 0.97, 0.02, 0.01},
		{"away heavy", 0.01, 0.01, 0.98},
		{"draw heavy", 0.05, 0.9, 0.05},
		{"zeros", 0, 0, 0},
		{"nan", math.NaN(), 0.5, 0.5},
		{"negative", -1, 0.5, 0.5},
		{"infinite", math.Inf(1), 0.3, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d, a := NormalizeOutcome(tt.home, tt.draw, tt.away, b)
			assert.InDelta(t, 1.0, h+d+a, 1e-6)
			assert.GreaterOrEqual(t, h, b.MinOutcome-1e-9)
			assert.LessOrEqual(t, h, b.MaxOutcome+1e-9)
			assert.GreaterOrEqual(t, a, b.MinOutcome-1e-9)
			assert.LessOrEqual(t, a, b.MaxOutcome+1e-9)
			assert.GreaterOrEqual(t, d, b.MinDraw-1e-9)
			assert.LessOrEqual(t, d, b.MaxDraw+1e-9)
		})
	}
}

func TestNormalizeOutcomeKeepsValidTriple(t *testing.T) {
	h, d, a := NormalizeOutcome(0.45, 0.30, 0.25, OutcomeBoundsFrom(testConfig()))
	assert.InDelta(t, 0.45, h, 1e-12)
	assert.InDelta(t, 0.30, d, 1e-12)
	assert.InDelta(t, 0.25, a, 1e-12)
}

func TestAdjustmentFactors(t *testing.T) {
	cfg := testConfig()

	h, a := AdjustmentFactors(advisory.AdvantageHome, 100, cfg)
	assert.InDelta(t, 1.10, h, 1e-12)
	assert.InDelta(t, 0.90, a, 1e-12)

	h, a = AdjustmentFactors(advisory.AdvantageHome, 0, cfg)
	assert.InDelta(t, 1.05, h, 1e-12)
	assert.InDelta(t, 0.95, a, 1e-12)

	h, a = AdjustmentFactors(advisory.AdvantageAway, 50, cfg)
	assert.InDelta(t, 0.925, h, 1e-12)
	assert.InDelta(t, 1.075, a, 1e-12)

	h, a = AdjustmentFactors(advisory.AdvantageBalanced, 90, cfg)
	assert.Equal(t, 1.0, h)
	assert.Equal(t, 1.0, a)

	h, a = AdjustmentFactors(advisory.AdvantageHome, 250, cfg)
	assert.InDelta(t, 1.10, h, 1e-12)
	assert.InDelta(t, 0.90, a, 1e-12)
}

func TestApplyAdjustment(t *testing.T) {
	cfg := testConfig()
	base := DeriveMarkets(NewClosedFormSimulator(cfg).Simulate(1.3, 1.0), ScorerInput{}, cfg)

	home := ApplyAdjustment(base, advisory.AdvantageHome, 80, cfg)
	assertValidOutcome(t, cfg, home)
	assert.Greater(t, home.HomeWin, base.HomeWin)
	assert.Less(t, home.AwayWin, base.AwayWin)

	away := ApplyAdjustment(base, advisory.AdvantageAway, 80, cfg)
	assertValidOutcome(t, cfg, away)
	assert.Less(t, away.HomeWin, base.HomeWin)
	assert.Greater(t, away.AwayWin, base.AwayWin)

	balanced := ApplyAdjustment(base, advisory.AdvantageBalanced, 80, cfg)
	assert.InDelta(t, base.HomeWin, balanced.HomeWin, 1e-12)
	assert.InDelta(t, base.Draw, balanced.Draw, 1e-12)
	assert.Equal(t, base.OverUnder, balanced.OverUnder)

	// the input is not modified
	assert.Equal(t, DeriveMarkets(NewClosedFormSimulator(cfg).Simulate(1.3, 1.0), ScorerInput{}, cfg), base)
}

func TestApplyAdjustmentAtBounds(t *testing.T) {
	cfg := testConfig()
	base := DeriveMarkets(NewClosedFormSimulator(cfg).Simulate(3.5, 0.2), ScorerInput{}, cfg)
	adjusted := ApplyAdjustment(base, advisory.AdvantageHome, 100, cfg)
	assertValidOutcome(t, cfg, adjusted)
	assert.InDelta(t, cfg.MaxOutcome, adjusted.HomeWin, 1e-9)
}
