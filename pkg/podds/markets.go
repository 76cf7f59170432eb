package podds

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// OverUnder is a goal total market, Under is always 1-Over
type OverUnder struct {
	Threshold float64 `json:"threshold"`
	Over      float64 `json:"over"`
	Under     float64 `json:"under"`
}

// ScorerCandidate is a player who may score, with their season goals
type ScorerCandidate struct {
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
	TeamID   int    `json:"teamId"`
	Goals    int    `json:"goals"`
}

// ScorerInput carries candidates for both sides. Team goals are the
// denominators for each player's share
type ScorerInput struct {
	Home      []ScorerCandidate `json:"home,omitempty"`
	Away      []ScorerCandidate `json:"away,omitempty"`
	HomeGoals int               `json:"homeGoals,omitempty"`
	AwayGoals int               `json:"awayGoals,omitempty"`
}

// ScorerProbability is the chance a player scores at least once
type ScorerProbability struct {
	PlayerID    int     `json:"playerId"`
	Name        string  `json:"name"`
	TeamID      int     `json:"teamId"`
	Probability float64 `json:"probability"`
}

// Markets is the named probability sheet for a fixture.
// FirstHalfGoal, EarlyGoal and LateGoal are fixed base rates from config,
// placeholders that do not depend on the simulated goal counts
type Markets struct {
	HomeWin          float64             `json:"homeWin"`
	Draw             float64             `json:"draw"`
	AwayWin          float64             `json:"awayWin"`
	OverUnder        []OverUnder         `json:"overUnder"`
	BothTeamsToScore float64             `json:"bothTeamsToScore"`
	MostLikelyScore  string              `json:"mostLikelyScore"`
	FirstHalfGoal    float64             `json:"firstHalfGoal"`
	EarlyGoal        float64             `json:"earlyGoal"`
	LateGoal         float64             `json:"lateGoal"`
	Scorers          []ScorerProbability `json:"scorers,omitempty"`
}

// Over returns the over probability for a threshold if the market exists
func (m Markets) Over(threshold float64) (float64, bool) {
	for _, ou := range m.OverUnder {
		if ou.Threshold == threshold {
			return ou.Over, true
		}
	}
	return 0, false
}

// Favourite is "H", "D" or "A" for the most probable outcome, home wins ties
func (m Markets) Favourite() string {
	switch {
	case m.HomeWin >= m.Draw && m.HomeWin >= m.AwayWin:
		return ResultHome
	case m.AwayWin > m.Draw:
		return ResultAway
	default:
		return ResultDraw
	}
}

// DeriveMarkets maps a distribution into named markets. It is a pure function
// of its arguments
func DeriveMarkets(dist *Distribution, scorers ScorerInput, cfg *PoddsConfig) Markets {
	home, draw, away := NormalizeOutcome(dist.HomeWin, dist.Draw, dist.AwayWin, OutcomeBoundsFrom(cfg))

	ou := make([]OverUnder, 0, len(cfg.OverThresholds))
	for _, t := range cfg.OverThresholds {
		over := dist.Over(t)
		ou = append(ou, OverUnder{Threshold: t, Over: over, Under: 1 - over})
	}

	h, a := dist.MostLikelyScore()
	return Markets{
		HomeWin:          home,
		Draw:             draw,
		AwayWin:          away,
		OverUnder:        ou,
		BothTeamsToScore: dist.BothTeamsToScore(),
		MostLikelyScore:  fmt.Sprintf("%d-%d", h, a),
		FirstHalfGoal:    cfg.FirstHalfGoalRate,
		EarlyGoal:        cfg.EarlyGoalRate,
		LateGoal:         cfg.LateGoalRate,
		Scorers:          scorerMarkets(dist, scorers, cfg.ScorersPerSide),
	}
}

// scorerMarkets is a heuristic: a player's share of the team's goals thins
// the team's lambda, P(scores) = 1 - exp(-lambda * share)
func scorerMarkets(dist *Distribution, in ScorerInput, perSide int) []ScorerProbability {
	out := sideScorers(in.Home, in.HomeGoals, dist.LambdaHome, perSide)
	return append(out, sideScorers(in.Away, in.AwayGoals, dist.LambdaAway, perSide)...)
}

func sideScorers(candidates []ScorerCandidate, teamGoals int, lambda float64, perSide int) []ScorerProbability {
	if len(candidates) == 0 || perSide <= 0 {
		return nil
	}
	total := teamGoals
	if total <= 0 {
		for _, c := range candidates {
			total += max(c.Goals, 0)
		}
	}
	if total <= 0 {
		return nil
	}

	out := make([]ScorerProbability, 0, len(candidates))
	for _, c := range candidates {
		if c.Goals <= 0 {
			continue
		}
		share := math.Min(1, float64(c.Goals)/float64(total))
		out = append(out, ScorerProbability{
			PlayerID:    c.PlayerID,
			Name:        c.Name,
			TeamID:      c.TeamID,
			Probability: 1 - math.Exp(-lambda*share),
		})
	}
	slices.SortFunc(out, func(a, b ScorerProbability) int {
		if c := cmp.Compare(b.Probability, a.Probability); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(out) > perSide {
		out = out[:perSide]
	}
	return out
}
