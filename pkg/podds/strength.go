package podds

import (
	"math"

	"github.com/richard-senior/podds/internal/logger"
)

// neutralMotivation is the motivation score that leaves attack untouched
const neutralMotivation = 50.0

// StrengthBias is a learned correction applied on top of the configured
// model. The zero value changes nothing
type StrengthBias struct {
	HomeAdvantageShift float64 `json:"homeAdvantageShift"` // added to HomeAdvantageFactor
	GoalScaleShift     float64 `json:"goalScaleShift"`     // both lambdas are scaled by 1+shift
	Sample             int     `json:"sample"`
}

// TeamStrength is a team's attack and defense scalars with the parts that made them
type TeamStrength struct {
	Attack               float64 `json:"attack"`
	Defense              float64 `json:"defense"`
	FormLabel            string  `json:"formLabel"`
	FormMultiplier       float64 `json:"formMultiplier"`
	MotivationMultiplier float64 `json:"motivationMultiplier"`
	RatingMultiplier     float64 `json:"ratingMultiplier"`
	UsedDefaults         bool    `json:"usedDefaults"`
}

// ExpectedGoals is the lambda pair for a fixture
type ExpectedGoals struct {
	Home         float64      `json:"home"`
	Away         float64      `json:"away"`
	HomeStrength TeamStrength `json:"homeStrength"`
	AwayStrength TeamStrength `json:"awayStrength"`
}

// StrengthModel turns team season records into expected goals
type StrengthModel struct {
	cfg  *PoddsConfig
	bias StrengthBias
}

func NewStrengthModel(cfg *PoddsConfig) *StrengthModel {
	return &StrengthModel{cfg: cfg}
}

// WithBias returns a copy of the model applying b
func (m *StrengthModel) WithBias(b StrengthBias) *StrengthModel {
	return &StrengthModel{cfg: m.cfg, bias: b}
}

// Bias is the learned correction in use
func (m *StrengthModel) Bias() StrengthBias {
	return m.bias
}

// RatingMultiplier scales strength by distance from the baseline rating
func (m *StrengthModel) RatingMultiplier(rating int) float64 {
	mult := 1 + float64(rating-m.cfg.RatingBaseline)/m.cfg.RatingScale
	return clamp(mult, m.cfg.MinRatingMultiplier, m.cfg.MaxRatingMultiplier)
}

// MotivationMultiplier maps a 0-100 motivation score onto 0.9-1.1
func MotivationMultiplier(motivation float64) float64 {
	if math.IsNaN(motivation) {
		motivation = neutralMotivation
	}
	motivation = clamp(motivation, 0, 100)
	return 1 + (motivation-neutralMotivation)/500
}

// Strength computes attack and defense for a team. Missing inputs fall back to
// DefaultGoalsPerGame and DefaultConcededPerGame. That keeps cold-start teams
// predictable at the cost of prediction quality, so it is logged
func (m *StrengthModel) Strength(t *TeamSeason) TeamStrength {
	gpg, okScored := t.GoalsPerGame()
	cpg, okConceded := t.ConcededPerGame()
	usedDefaults := false
	if !okScored || math.IsNaN(gpg) || gpg < 0 {
		gpg = m.cfg.DefaultGoalsPerGame
		usedDefaults = true
	}
	if !okConceded || math.IsNaN(cpg) || cpg < 0 {
		cpg = m.cfg.DefaultConcededPerGame
		usedDefaults = true
	}
	if usedDefaults {
		logger.Debug("using neutral goal rates for", t.Name, t.TeamID)
	}

	label := FormLabel(t.FormPoints5, m.cfg.FormWindowShort)
	formMult := FormMultiplier(label)
	motivationMult := MotivationMultiplier(t.MotivationScore)
	ratingMult := m.RatingMultiplier(t.Rating)

	attack := (gpg / m.cfg.ReferenceGoalsPerGame) * formMult * motivationMult * ratingMult
	defense := math.Max(m.cfg.DefenseFloor, m.cfg.ReferenceConceded-cpg) * ratingMult

	return TeamStrength{
		Attack:               attack,
		Defense:              defense,
		FormLabel:            label,
		FormMultiplier:       formMult,
		MotivationMultiplier: motivationMult,
		RatingMultiplier:     ratingMult,
		UsedDefaults:         usedDefaults,
	}
}

// ExpectedGoals produces the clamped lambda pair for home v away
func (m *StrengthModel) ExpectedGoals(home, away *TeamSeason) ExpectedGoals {
	hs := m.Strength(home)
	as := m.Strength(away)
	return ExpectedGoals{
		Home:         m.Lambdas(hs, as, true),
		Away:         m.Lambdas(as, hs, false),
		HomeStrength: hs,
		AwayStrength: as,
	}
}

// Lambdas is the expected goals of attacker against defender
func (m *StrengthModel) Lambdas(attacker, defender TeamStrength, home bool) float64 {
	attack := attacker.Attack
	if home {
		attack *= 1 + m.cfg.HomeAdvantageFactor + m.bias.HomeAdvantageShift
	}
	defense := defender.Defense
	if defense <= 0 || math.IsNaN(defense) {
		defense = m.cfg.DefenseFloor
	}
	lambda := attack / defense * (1 + m.bias.GoalScaleShift)
	return m.ClampGoals(lambda)
}

// ClampGoals bounds an expected goals value, NaN and negatives go to the floor
func (m *StrengthModel) ClampGoals(lambda float64) float64 {
	return clampGoals(lambda, m.cfg.MinGoals, m.cfg.MaxGoals)
}

func clampGoals(lambda, lo, hi float64) float64 {
	if math.IsNaN(lambda) || lambda < lo {
		return lo
	}
	if lambda > hi {
		return hi
	}
	return lambda
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
