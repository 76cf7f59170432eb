package podds

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/richard-senior/podds/pkg/advisory"
	"github.com/spf13/viper"
)

// ErrAdvisoryQuota is returned before any work starts when the advisory
// service is enabled, the local fallback is disabled and the quota cannot
// cover the run
var ErrAdvisoryQuota = errors.New("advisory quota exhausted with no fallback configured")

// Simulation strategies
const (
	StrategyMonteCarlo = "montecarlo"
	StrategyClosedForm = "closedform"
)

// PoddsConfig contains all configurable parameters that influence prediction outcomes
// This centralizes all magic numbers and constants for easy adjustment
type PoddsConfig struct {
	// Storage
	DbPath      string `mapstructure:"db_path"`      // Location of the sqlite database (":memory:" for tests)
	PostgresDSN string `mapstructure:"postgres_dsn"` // When set, fixtures are read from postgres instead of sqlite
	LogLevel    string `mapstructure:"log_level"`    // DEBUG, INFO, WARN, ERROR

	// === General Default vars ===
	Leagues []int    `mapstructure:"leagues"` // the list of leagues in which we're interested
	Seasons []string `mapstructure:"seasons"` // the list of seasons we're interested in
	Workers int      `mapstructure:"workers"` // Parallel prediction workers (default: 4)

	// === RATINGS ===
	RatingBaseline int     `mapstructure:"rating_baseline"` // First-sighting rating (default: 1500)
	KFactor        float64 `mapstructure:"k_factor"`        // Rating step size (default: 20)
	HomeAdvantage  float64 `mapstructure:"home_advantage"`  // Whole rating points added to the home side's expectation (default: 60)

	// === FORM ===
	FormWindowShort     int `mapstructure:"form_window_short"`     // default: 5
	FormWindowLong      int `mapstructure:"form_window_long"`      // default: 10
	VolatilityWindow    int `mapstructure:"volatility_window"`     // default: 15
	MinVolatilitySample int `mapstructure:"min_volatility_sample"` // default: 5

	// === STRENGTH MODEL ===
	ReferenceGoalsPerGame  float64 `mapstructure:"reference_goals_per_game"`  // Neutral attack divisor (default: 1.0)
	ReferenceConceded      float64 `mapstructure:"reference_conceded"`        // Defense pivot (default: 2.5)
	DefenseFloor           float64 `mapstructure:"defense_floor"`             // Smallest defense factor (default: 0.5)
	HomeAdvantageFactor    float64 `mapstructure:"home_advantage_factor"`     // Multiplier on home attack (default: 0.30)
	MinGoals               float64 `mapstructure:"min_goals"`                 // Expected goals floor (default: 0.2)
	MaxGoals               float64 `mapstructure:"max_goals"`                 // Expected goals cap (default: 3.5)
	RatingScale            float64 `mapstructure:"rating_scale"`              // Rating points per unit of multiplier (default: 1000)
	MinRatingMultiplier    float64 `mapstructure:"min_rating_multiplier"`     // default: 0.7
	MaxRatingMultiplier    float64 `mapstructure:"max_rating_multiplier"`     // default: 1.3
	DefaultGoalsPerGame    float64 `mapstructure:"default_goals_per_game"`    // Used when a team has no games (default: 1.0)
	DefaultConcededPerGame float64 `mapstructure:"default_conceded_per_game"` // Used when a team has no games (default: 1.5)

	// === SIMULATION ===
	SimulationStrategy string  `mapstructure:"simulation_strategy"` // montecarlo or closedform
	PoissonSimulations int     `mapstructure:"poisson_simulations"` // Monte Carlo draws per side (default: 20000)
	GoalCutoff         int     `mapstructure:"goal_cutoff"`         // Highest goal count on the score grid (default: 10)
	Seed               int64   `mapstructure:"seed"`                // Monte Carlo seed, runs are reproducible
	DixonColes         bool    `mapstructure:"dixon_coles"`         // Apply the low-score correction
	DixonColesRho      float64 `mapstructure:"dixon_coles_rho"`     // Correlation parameter (default: -0.03, range: -0.1 to 0)

	// === PROBABILITY BOUNDS ===
	MinOutcome float64 `mapstructure:"min_outcome"` // default: 0.05
	MaxOutcome float64 `mapstructure:"max_outcome"` // default: 0.85
	MinDraw    float64 `mapstructure:"min_draw"`    // default: 0.05
	MaxDraw    float64 `mapstructure:"max_draw"`    // default: 0.60
	MinOver    float64 `mapstructure:"min_over"`    // default: 0.05
	MaxOver    float64 `mapstructure:"max_over"`    // default: 0.95

	// === MARKETS ===
	OverThresholds    []float64 `mapstructure:"over_thresholds"`      // default: 1.5, 2.5, 3.5
	FirstHalfGoalRate float64   `mapstructure:"first_half_goal_rate"` // Static placeholder (default: 0.72)
	EarlyGoalRate     float64   `mapstructure:"early_goal_rate"`      // Static placeholder, goal before 15' (default: 0.38)
	LateGoalRate      float64   `mapstructure:"late_goal_rate"`       // Static placeholder, goal after 75' (default: 0.68)
	ScorersPerSide    int       `mapstructure:"scorers_per_side"`     // default: 3

	// === ADJUSTMENT ===
	AdjustmentBase float64 `mapstructure:"adjustment_base"` // Minimum tilt for a labelled advantage (default: 0.05)
	AdjustmentSpan float64 `mapstructure:"adjustment_span"` // Extra tilt at full advisory confidence (default: 0.05)

	// === CONFIDENCE & LEARNING ===
	DefaultConfidence   int     `mapstructure:"default_confidence"`     // Substitute for a missing confidence (default: 50)
	TargetConfidence    float64 `mapstructure:"target_confidence"`      // Calibration target band (default: 0.7)
	LearningEnabled     bool    `mapstructure:"learning_enabled"`       // Apply StrengthBias from learning records
	MinLearningSample   int     `mapstructure:"min_learning_sample"`    // Records needed before a bias is produced (default: 20)
	MaxHomeAdvantageAdj float64 `mapstructure:"max_home_advantage_adj"` // Bound on the learned home advantage shift (default: 0.10)
	MaxGoalScaleAdj     float64 `mapstructure:"max_goal_scale_adj"`     // Bound on the learned goal scale shift (default: 0.10)

	// === MOTIVATION (league table derived) ===
	TitleRaceGap        int     `mapstructure:"title_race_gap"`          // Points to the top that still count as a title race (default: 3)
	RelegationGap       int     `mapstructure:"relegation_gap"`          // Points above the drop that count as a fight (default: 3)
	RelegationPlaces    int     `mapstructure:"relegation_places"`       // default: 3
	TitleRaceBonus      float64 `mapstructure:"title_race_bonus"`        // default: 20
	RelegationBonus     float64 `mapstructure:"relegation_bonus"`        // default: 15
	NothingToPlayFor    float64 `mapstructure:"nothing_to_play_for"`     // default: -10
	NothingToPlayForGap int     `mapstructure:"nothing_to_play_for_gap"` // Points clear of both ends (default: 10)

	Advisory advisory.Config `mapstructure:"advisory"`
}

// DefaultPoddsConfig returns the default configuration with all standard values
func DefaultPoddsConfig() *PoddsConfig {
	return &PoddsConfig{
		DbPath:   "podds.db",
		LogLevel: "INFO",
		Leagues:  []int{47, 48, 108, 109},
		Seasons:  []string{"2023/2024", "2024/2025", "2025/2026"},
		Workers:  4,

		// === RATINGS ===
		RatingBaseline: 1500,
		KFactor:        20,
		HomeAdvantage:  60,

		// === FORM ===
		FormWindowShort:     5,
		FormWindowLong:      10,
		VolatilityWindow:    15,
		MinVolatilitySample: 5,

		// === STRENGTH MODEL ===
		ReferenceGoalsPerGame:  1.0,
		ReferenceConceded:      2.5,
		DefenseFloor:           0.5,
		HomeAdvantageFactor:    0.30,
		MinGoals:               0.2,
		MaxGoals:               3.5,
		RatingScale:            1000,
		MinRatingMultiplier:    0.7,
		MaxRatingMultiplier:    1.3,
		DefaultGoalsPerGame:    1.0,
		DefaultConcededPerGame: 1.5,

		// === SIMULATION ===
		SimulationStrategy: StrategyMonteCarlo,
		PoissonSimulations: 20000,
		GoalCutoff:         10,
		Seed:               1,
		DixonColes:         true,
		DixonColesRho:      -0.03,

		// === PROBABILITY BOUNDS ===
		MinOutcome: 0.05,
		MaxOutcome: 0.85,
		MinDraw:    0.05,
		MaxDraw:    0.60,
		MinOver:    0.05,
		MaxOver:    0.95,

		// === MARKETS ===
		OverThresholds:    []float64{1.5, 2.5, 3.5},
		FirstHalfGoalRate: 0.72,
		EarlyGoalRate:     0.38,
		LateGoalRate:      0.68,
		ScorersPerSide:    3,

		// === ADJUSTMENT ===
		AdjustmentBase: 0.05,
		AdjustmentSpan: 0.05,

		// === CONFIDENCE & LEARNING ===
		DefaultConfidence:   50,
		TargetConfidence:    0.7,
		LearningEnabled:     false,
		MinLearningSample:   20,
		MaxHomeAdvantageAdj: 0.10,
		MaxGoalScaleAdj:     0.10,

		// === MOTIVATION ===
		TitleRaceGap:        3,
		RelegationGap:       3,
		RelegationPlaces:    3,
		TitleRaceBonus:      20,
		RelegationBonus:     15,
		NothingToPlayFor:    -10,
		NothingToPlayForGap: 10,

		Advisory: advisory.Config{
			Enabled:         false,
			FallbackEnabled: true,
			Model:           "default",
			Timeout:         30 * time.Second,
			MinSpacing:      20 * time.Second,
			PerMinute:       3,
			DailyQuota:      200,
			ThrottleBackoff: 60 * time.Second,
		},
	}
}

// LoadConfig reads an optional .env file and an optional YAML file over the defaults.
// Secrets can be supplied through PODDS_* environment variables which win over the file
func LoadConfig(path string) (*PoddsConfig, error) {
	_ = godotenv.Load() // .env is optional

	cfg := DefaultPoddsConfig()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// lists in the file replace the defaults instead of merging over them
		if v.IsSet("leagues") {
			cfg.Leagues = nil
		}
		if v.IsSet("seasons") {
			cfg.Seasons = nil
		}
		if v.IsSet("over_thresholds") {
			cfg.OverThresholds = nil
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	overrideFromEnv(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideFromEnv applies the sensitive or deployment specific settings
func overrideFromEnv(cfg *PoddsConfig) {
	if v := os.Getenv("PODDS_DB_PATH"); v != "" {
		cfg.DbPath = v
	}
	if v := os.Getenv("PODDS_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("PODDS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PODDS_ADVISORY_ENDPOINT"); v != "" {
		cfg.Advisory.Endpoint = v
	}
	if v := os.Getenv("PODDS_ADVISORY_API_KEY"); v != "" {
		cfg.Advisory.APIKey = v
	}
}

// === CONFIGURATION VALIDATION ===

// ValidateConfig ensures all configuration values are within reasonable ranges
func ValidateConfig(config *PoddsConfig) error {
	if config.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, got: %d", config.Workers)
	}
	if config.KFactor <= 0 {
		return fmt.Errorf("KFactor must be positive, got: %f", config.KFactor)
	}
	// the elo expectation works on whole rating points
	if config.HomeAdvantage < 0 || config.HomeAdvantage != math.Trunc(config.HomeAdvantage) {
		return fmt.Errorf("HomeAdvantage must be a non-negative whole number of rating points, got: %g", config.HomeAdvantage)
	}
	if config.FormWindowShort < 1 || config.FormWindowLong < 1 {
		return fmt.Errorf("form windows must be at least 1, got: %d and %d", config.FormWindowShort, config.FormWindowLong)
	}
	if config.MinVolatilitySample < 2 || config.VolatilityWindow < config.MinVolatilitySample {
		return fmt.Errorf("VolatilityWindow (%d) must be at least MinVolatilitySample (%d) which must be at least 2",
			config.VolatilityWindow, config.MinVolatilitySample)
	}
	if config.ReferenceGoalsPerGame <= 0 || config.RatingScale <= 0 {
		return fmt.Errorf("ReferenceGoalsPerGame and RatingScale must be positive")
	}
	if config.DefenseFloor <= 0 {
		return fmt.Errorf("DefenseFloor must be positive, got: %f", config.DefenseFloor)
	}
	if config.MinGoals <= 0 || config.MaxGoals <= config.MinGoals {
		return fmt.Errorf("expected goals bounds are invalid: [%f, %f]", config.MinGoals, config.MaxGoals)
	}
	switch strings.ToLower(config.SimulationStrategy) {
	case StrategyMonteCarlo:
		if config.PoissonSimulations < 10000 {
			return fmt.Errorf("PoissonSimulations should be at least 10000 for accuracy, got: %d", config.PoissonSimulations)
		}
	case StrategyClosedForm:
	default:
		return fmt.Errorf("unknown SimulationStrategy: %s", config.SimulationStrategy)
	}
	if config.GoalCutoff < 3 {
		return fmt.Errorf("GoalCutoff should be at least 3 to capture realistic scores, got: %d", config.GoalCutoff)
	}
	if config.DixonColesRho > 0 || config.DixonColesRho < -0.1 {
		return fmt.Errorf("DixonColesRho should be between -0.1 and 0, got: %f", config.DixonColesRho)
	}
	// the bounds must admit a distribution summing to one
	if config.MinOutcome*2+config.MinDraw > 1 || config.MaxOutcome*2+config.MaxDraw < 1 {
		return fmt.Errorf("outcome bounds cannot hold a distribution summing to 1")
	}
	if config.MinOver < 0 || config.MaxOver > 1 || config.MinOver >= config.MaxOver {
		return fmt.Errorf("over bounds are invalid: [%f, %f]", config.MinOver, config.MaxOver)
	}
	if config.AdjustmentBase < 0 || config.AdjustmentBase+config.AdjustmentSpan > 0.5 {
		return fmt.Errorf("adjustment tilt must be between 0 and 0.5, got: %f + %f", config.AdjustmentBase, config.AdjustmentSpan)
	}
	if config.DefaultConfidence < 0 || config.DefaultConfidence > 100 {
		return fmt.Errorf("DefaultConfidence must be between 0 and 100, got: %d", config.DefaultConfidence)
	}
	return validateAdvisory(&config.Advisory)
}

func validateAdvisory(a *advisory.Config) error {
	if !a.Enabled {
		return nil
	}
	if a.MinSpacing < 20*time.Second {
		return fmt.Errorf("advisory MinSpacing must be at least 20s, got: %s", a.MinSpacing)
	}
	if a.PerMinute < 1 {
		return fmt.Errorf("advisory PerMinute must be at least 1, got: %d", a.PerMinute)
	}
	if !a.FallbackEnabled && a.DailyQuota <= 0 {
		return fmt.Errorf("advisory enabled without fallback: %w", ErrAdvisoryQuota)
	}
	return nil
}

// CheckAdvisoryBudget verifies that a run needing the given number of advisory
// calls can complete when there is no fallback to absorb a quota failure.
// remaining is what the limiter has left today, negative when unknown
func CheckAdvisoryBudget(a *advisory.Config, calls, remaining int) error {
	if !a.Enabled || a.FallbackEnabled {
		return nil
	}
	if a.DailyQuota <= 0 {
		return fmt.Errorf("advisory fallback disabled without a daily quota: %w", ErrAdvisoryQuota)
	}
	if remaining < 0 {
		remaining = a.DailyQuota
	}
	if calls > remaining {
		return fmt.Errorf("run needs %d advisory calls, %d of %d left today: %w", calls, remaining, a.DailyQuota, ErrAdvisoryQuota)
	}
	return nil
}
