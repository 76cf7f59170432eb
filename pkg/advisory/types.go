// Package advisory talks to an optional tactical-advisory service that adds
// qualitative signals to a team or a matchup. Every call is rate limited and
// any failure can be replaced by a deterministic local analysis.
package advisory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrThrottled is returned when the provider signals it is over its limit (HTTP 429)
	ErrThrottled = errors.New("advisory provider throttled the request")
	// ErrQuotaExhausted is returned when the local daily quota has been used up
	ErrQuotaExhausted = errors.New("advisory daily quota exhausted")
	// ErrMalformedReply is returned when no analysis could be read from the reply
	ErrMalformedReply = errors.New("malformed advisory reply")
)

// Advantage labels
const (
	AdvantageHome     = "home"
	AdvantageAway     = "away"
	AdvantageBalanced = "balanced"
)

// Analysis sources
const (
	SourceService  = "service"
	SourceFallback = "fallback"
)

const (
	maxListItems   = 3
	maxScenarios   = 3
	fallbackConfid = 50
)

// Config configures the service and its limits
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	FallbackEnabled bool          `mapstructure:"fallback_enabled"` // Substitute a local analysis on failure (default: true)
	Endpoint        string        `mapstructure:"endpoint"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`          // Per call (default: 30s)
	MinSpacing      time.Duration `mapstructure:"min_spacing"`      // Between calls, at least 20s
	PerMinute       int           `mapstructure:"per_minute"`       // Rolling per-minute ceiling (default: 3)
	DailyQuota      int           `mapstructure:"daily_quota"`      // 0 means none configured
	ThrottleBackoff time.Duration `mapstructure:"throttle_backoff"` // Extra wait after a 429 before the single retry (default: 60s)
}

// TeamProfile is the numeric picture of a team sent to the service,
// and the only input to the local fallback
type TeamProfile struct {
	TeamID       int      `json:"team_id"`
	Name         string   `json:"name"`
	Season       string   `json:"season"`
	Played       int      `json:"played"`
	Wins         int      `json:"wins"`
	Draws        int      `json:"draws"`
	Losses       int      `json:"losses"`
	GoalsFor     int      `json:"goals_for"`
	GoalsAgainst int      `json:"goals_against"`
	Position     int      `json:"position"`
	Points       int      `json:"points"`
	Rating       int      `json:"rating"`
	FormPoints5  *int     `json:"form_points_5,omitempty"`
	Volatility   *float64 `json:"volatility,omitempty"`
	Motivation   float64  `json:"motivation"`
}

// MatchupProfile describes a fixture to the service
type MatchupProfile struct {
	Home          TeamProfile `json:"home"`
	Away          TeamProfile `json:"away"`
	ExpectedHome  float64     `json:"expected_home_goals"`
	ExpectedAway  float64     `json:"expected_away_goals"`
	KickoffFormat string      `json:"kickoff"`
}

// TeamAnalysis is the qualitative read of a single team
type TeamAnalysis struct {
	Style          string   `json:"style"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	FormLabel      string   `json:"form_label"`
	Predictability int      `json:"predictability"`
	Confidence     *int     `json:"confidence,omitempty"` // nil when the reply carried none
	Source         string   `json:"source"`
}

// Scenario is one way the match may unfold, Probability in percent
type Scenario struct {
	Description string `json:"description"`
	Probability int    `json:"probability"`
}

// MatchupAnalysis is the qualitative read of a fixture
type MatchupAnalysis struct {
	AdvantageLabel string     `json:"advantage_label"`
	Confidence     *int       `json:"confidence,omitempty"`
	Scenarios      []Scenario `json:"scenarios"`
	KeyFactors     []string   `json:"key_factors"`
	UpsetPotential int        `json:"upset_potential"`
	Source         string     `json:"source"`
}

// Advisor produces qualitative analyses
type Advisor interface {
	AnalyzeTeam(ctx context.Context, profile TeamProfile) (*TeamAnalysis, error)
	AnalyzeMatchup(ctx context.Context, profile MatchupProfile) (*MatchupAnalysis, error)
}

// ConfidenceOr is the matchup confidence, or def when none was given
func (m *MatchupAnalysis) ConfidenceOr(def int) int {
	if m.Confidence == nil {
		return def
	}
	return *m.Confidence
}

// usable reports whether the reply says anything about the team at all
func (a *TeamAnalysis) usable() bool {
	return a.Style != "" || a.FormLabel != "" || len(a.Strengths) > 0 || len(a.Weaknesses) > 0
}

// usable is checked before sanitize, which would default the label
func (m *MatchupAnalysis) usable() bool {
	return m.AdvantageLabel != "" || len(m.Scenarios) > 0 || len(m.KeyFactors) > 0
}

// sanitize trims a service reply into the documented shape
func (a *TeamAnalysis) sanitize() {
	a.Strengths = truncate(a.Strengths, maxListItems)
	a.Weaknesses = truncate(a.Weaknesses, maxListItems)
	a.Predictability = clampPercent(a.Predictability)
	a.Confidence = clampPercentPtr(a.Confidence)
}

func (m *MatchupAnalysis) sanitize() {
	switch m.AdvantageLabel {
	case AdvantageHome, AdvantageAway, AdvantageBalanced:
	default:
		m.AdvantageLabel = AdvantageBalanced
	}
	m.Confidence = clampPercentPtr(m.Confidence)
	m.UpsetPotential = clampPercent(m.UpsetPotential)
	if len(m.Scenarios) > maxScenarios {
		m.Scenarios = m.Scenarios[:maxScenarios]
	}
	total := 0
	for i := range m.Scenarios {
		m.Scenarios[i].Probability = clampPercent(m.Scenarios[i].Probability)
		total += m.Scenarios[i].Probability
	}
	// scenario probabilities may not exceed 100 between them
	if total > 100 {
		running := 0
		for i := range m.Scenarios {
			m.Scenarios[i].Probability = m.Scenarios[i].Probability * 100 / total
			running += m.Scenarios[i].Probability
		}
		if running > 100 {
			m.Scenarios[0].Probability -= running - 100
		}
	}
}

func truncate(s []string, n int) []string {
	out := make([]string, 0, n)
	for _, v := range s {
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampPercentPtr(v *int) *int {
	if v == nil {
		return nil
	}
	return percent(clampPercent(*v))
}

func percent(v int) *int { return &v }
