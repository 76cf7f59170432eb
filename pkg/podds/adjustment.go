package podds

import (
	"math"

	"github.com/richard-senior/podds/pkg/advisory"
)

// OutcomeBounds are the per-outcome limits a 1X2 triple must respect
type OutcomeBounds struct {
	MinOutcome float64
	MaxOutcome float64
	MinDraw    float64
	MaxDraw    float64
}

func OutcomeBoundsFrom(cfg *PoddsConfig) OutcomeBounds {
	return OutcomeBounds{
		MinOutcome: cfg.MinOutcome,
		MaxOutcome: cfg.MaxOutcome,
		MinDraw:    cfg.MinDraw,
		MaxDraw:    cfg.MaxDraw,
	}
}

// normalizeEpsilon is the tolerance for the triple summing to one
const normalizeEpsilon = 1e-9

// NormalizeOutcome rescales the triple to sum to 1 and clamps it into the
// bounds, redistributing whatever the clamp took or added across the values
// that still have room, until both hold. NaN and negative inputs count as zero
func NormalizeOutcome(home, draw, away float64, b OutcomeBounds) (float64, float64, float64) {
	v := [3]float64{home, draw, away}
	lo := [3]float64{b.MinOutcome, b.MinDraw, b.MinOutcome}
	hi := [3]float64{b.MaxOutcome, b.MaxDraw, b.MaxOutcome}

	sum := 0.0
	for i := range v {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) || v[i] < 0 {
			v[i] = 0
		}
		sum += v[i]
	}
	for i := range v {
		if sum > 0 {
			v[i] /= sum
		} else {
			v[i] = 1.0 / 3
		}
	}

	for pass := 0; pass < 4; pass++ {
		total := 0.0
		for i := range v {
			v[i] = clamp(v[i], lo[i], hi[i])
			total += v[i]
		}
		residual := 1 - total
		if math.Abs(residual) < normalizeEpsilon {
			break
		}
		// share the residual by the room each value has in that direction
		var room [3]float64
		roomTotal := 0.0
		for i := range v {
			if residual > 0 {
				room[i] = hi[i] - v[i]
			} else {
				room[i] = v[i] - lo[i]
			}
			roomTotal += room[i]
		}
		if roomTotal <= 0 {
			break
		}
		for i := range v {
			v[i] += residual * room[i] / roomTotal
		}
	}
	return v[0], v[1], v[2]
}

// AdjustmentFactors are the home and away multipliers for an advantage label.
// The tilt grows from AdjustmentBase to AdjustmentBase+AdjustmentSpan with the
// advisory confidence, so 1.05-1.10 and 0.95-0.90 with the defaults
func AdjustmentFactors(label string, confidence int, cfg *PoddsConfig) (float64, float64) {
	c := clamp(float64(confidence), 0, 100) / 100
	tilt := cfg.AdjustmentBase + cfg.AdjustmentSpan*c
	switch label {
	case advisory.AdvantageHome:
		return 1 + tilt, 1 - tilt
	case advisory.AdvantageAway:
		return 1 - tilt, 1 + tilt
	default:
		return 1, 1
	}
}

// ApplyAdjustment tilts the 1X2 triple towards the labelled side and
// renormalises it. Draw is never scaled directly and the over/under pairs
// are kept complementary
func ApplyAdjustment(m Markets, label string, confidence int, cfg *PoddsConfig) Markets {
	homeMul, awayMul := AdjustmentFactors(label, confidence, cfg)
	out := m
	out.HomeWin, out.Draw, out.AwayWin = NormalizeOutcome(m.HomeWin*homeMul, m.Draw, m.AwayWin*awayMul, OutcomeBoundsFrom(cfg))

	out.OverUnder = make([]OverUnder, len(m.OverUnder))
	for i, ou := range m.OverUnder {
		over := clamp(ou.Over, cfg.MinOver, cfg.MaxOver)
		out.OverUnder[i] = OverUnder{Threshold: ou.Threshold, Over: over, Under: 1 - over}
	}
	return out
}
