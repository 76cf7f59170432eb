package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/richard-senior/podds/pkg/advisory"
	"github.com/richard-senior/podds/pkg/podds"
	"gorm.io/datatypes"
)

// FixtureRow is a fixture as stored in postgres
type FixtureRow struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	LeagueID  int       `gorm:"column:league_id;not null;index:idx_fixture_season"`
	Season    string    `gorm:"column:season;size:9;not null;index:idx_fixture_season"`
	Round     int       `gorm:"column:round"`
	Kickoff   time.Time `gorm:"column:kickoff;not null;index"`
	HomeID    int       `gorm:"column:home_id;not null;index"`
	AwayID    int       `gorm:"column:away_id;not null;index"`
	HomeName  string    `gorm:"column:home_name;size:128"`
	AwayName  string    `gorm:"column:away_name;size:128"`
	HomeGoals int       `gorm:"column:home_goals;not null"`
	AwayGoals int       `gorm:"column:away_goals;not null"`
	Status    string    `gorm:"column:status;size:16;not null"`
}

func (FixtureRow) TableName() string { return "fixture" }

// TeamSeasonRow is one row of a season table
type TeamSeasonRow struct {
	TeamID          int       `gorm:"column:team_id;primaryKey;autoIncrement:false"`
	LeagueID        int       `gorm:"column:league_id;primaryKey;autoIncrement:false"`
	Season          string    `gorm:"column:season;primaryKey;size:9"`
	Name            string    `gorm:"column:name;size:128"`
	Played          int       `gorm:"column:played"`
	Wins            int       `gorm:"column:wins"`
	Draws           int       `gorm:"column:draws"`
	Losses          int       `gorm:"column:losses"`
	GoalsFor        int       `gorm:"column:goals_for"`
	GoalsAgainst    int       `gorm:"column:goals_against"`
	Points          int       `gorm:"column:points"`
	Rating          int       `gorm:"column:rating"`
	FormPoints5     *int      `gorm:"column:form_points_5"`
	FormPoints10    *int      `gorm:"column:form_points_10"`
	Form            string    `gorm:"column:form;size:16"`
	Volatility      *float64  `gorm:"column:volatility"`
	Position        int       `gorm:"column:position"`
	DistanceToTop   int       `gorm:"column:distance_to_top"`
	DistanceToDrop  int       `gorm:"column:distance_to_drop"`
	MotivationScore float64   `gorm:"column:motivation_score"`
	PressureScore   float64   `gorm:"column:pressure_score"`
	AsOf            time.Time `gorm:"column:as_of"`
}

func (TeamSeasonRow) TableName() string { return "team_season" }

// PredictionRow keeps the structured parts of a prediction as jsonb
type PredictionRow struct {
	ID                 string          `gorm:"column:id;primaryKey;size:36"`
	FixtureID          int             `gorm:"column:fixture_id;index"`
	LeagueID           int             `gorm:"column:league_id"`
	Season             string          `gorm:"column:season;size:9"`
	HomeID             int             `gorm:"column:home_id;index"`
	AwayID             int             `gorm:"column:away_id;index"`
	HomeName           string          `gorm:"column:home_name;size:128"`
	AwayName           string          `gorm:"column:away_name;size:128"`
	Kickoff            time.Time       `gorm:"column:kickoff"`
	CreatedAt          time.Time       `gorm:"column:created_at;index"`
	ExpectedHomeGoals  float64         `gorm:"column:expected_home_goals"`
	ExpectedAwayGoals  float64         `gorm:"column:expected_away_goals"`
	PredictedHomeGoals int             `gorm:"column:predicted_home_goals"`
	PredictedAwayGoals int             `gorm:"column:predicted_away_goals"`
	Method             string          `gorm:"column:method;size:16"`
	Markets            datatypes.JSON  `gorm:"column:markets;type:jsonb;not null"`
	HomeAnalysis       *datatypes.JSON `gorm:"column:home_analysis;type:jsonb"`
	AwayAnalysis       *datatypes.JSON `gorm:"column:away_analysis;type:jsonb"`
	MatchupAnalysis    *datatypes.JSON `gorm:"column:matchup_analysis;type:jsonb"`
	OverallConfidence  int             `gorm:"column:overall_confidence"`
	KeyFactors         datatypes.JSON  `gorm:"column:key_factors;type:jsonb"`
	Bias               datatypes.JSON  `gorm:"column:bias;type:jsonb"`
}

func (PredictionRow) TableName() string { return "fixture_prediction" }

// LearningRow is a learning record, linked to its prediction
type LearningRow struct {
	ID                  string    `gorm:"column:id;primaryKey;size:36"`
	PredictionID        string    `gorm:"column:prediction_id;size:36;index"`
	FixtureID           int       `gorm:"column:fixture_id;index"`
	CreatedAt           time.Time `gorm:"column:created_at;index"`
	HomeGoals           int       `gorm:"column:home_goals"`
	AwayGoals           int       `gorm:"column:away_goals"`
	PredictedResult     string    `gorm:"column:predicted_result;size:1"`
	ActualResult        string    `gorm:"column:actual_result;size:1"`
	ResultMiss          bool      `gorm:"column:result_miss"`
	PredictedHomeWin    float64   `gorm:"column:predicted_home_win"`
	OverProbability     float64   `gorm:"column:over_probability"`
	ActualOver          bool      `gorm:"column:actual_over"`
	OverUnderError      float64   `gorm:"column:over_under_error"`
	ExpectedTotal       float64   `gorm:"column:expected_total"`
	GoalError           float64   `gorm:"column:goal_error"`
	Confidence          int       `gorm:"column:confidence"`
	CalibrationError    float64   `gorm:"column:calibration_error"`
	SuggestedAdjustment string    `gorm:"column:suggested_adjustment;size:255"`
}

func (LearningRow) TableName() string { return "learning_record" }

func fixtureRow(f podds.Fixture) FixtureRow {
	return FixtureRow{
		ID: f.ID, LeagueID: f.LeagueID, Season: f.Season, Round: f.Round, Kickoff: f.Kickoff.UTC(),
		HomeID: f.HomeID, AwayID: f.AwayID, HomeName: f.HomeName, AwayName: f.AwayName,
		HomeGoals: f.HomeGoals, AwayGoals: f.AwayGoals, Status: f.Status,
	}
}

func (r FixtureRow) fixture() podds.Fixture {
	return podds.Fixture{
		ID: r.ID, LeagueID: r.LeagueID, Season: r.Season, Round: r.Round, Kickoff: r.Kickoff.UTC(),
		HomeID: r.HomeID, AwayID: r.AwayID, HomeName: r.HomeName, AwayName: r.AwayName,
		HomeGoals: r.HomeGoals, AwayGoals: r.AwayGoals, Status: r.Status,
	}
}

func teamSeasonRow(t *podds.TeamSeason) TeamSeasonRow {
	return TeamSeasonRow{
		TeamID: t.TeamID, LeagueID: t.LeagueID, Season: t.Season, Name: t.Name,
		Played: t.Played, Wins: t.Wins, Draws: t.Draws, Losses: t.Losses,
		GoalsFor: t.GoalsFor, GoalsAgainst: t.GoalsAgainst, Points: t.Points, Rating: t.Rating,
		FormPoints5: t.FormPoints5, FormPoints10: t.FormPoints10, Form: t.Form, Volatility: t.Volatility,
		Position: t.Position, DistanceToTop: t.DistanceToTop, DistanceToDrop: t.DistanceToDrop,
		MotivationScore: t.MotivationScore, PressureScore: t.PressureScore, AsOf: t.AsOf.UTC(),
	}
}

func (r TeamSeasonRow) teamSeason() *podds.TeamSeason {
	return &podds.TeamSeason{
		TeamID: r.TeamID, LeagueID: r.LeagueID, Season: r.Season, Name: r.Name,
		Played: r.Played, Wins: r.Wins, Draws: r.Draws, Losses: r.Losses,
		GoalsFor: r.GoalsFor, GoalsAgainst: r.GoalsAgainst, Points: r.Points, Rating: r.Rating,
		FormPoints5: r.FormPoints5, FormPoints10: r.FormPoints10, Form: r.Form, Volatility: r.Volatility,
		Position: r.Position, DistanceToTop: r.DistanceToTop, DistanceToDrop: r.DistanceToDrop,
		MotivationScore: r.MotivationScore, PressureScore: r.PressureScore, AsOf: r.AsOf.UTC(),
	}
}

// jsonColumn encodes v, a nil pointer gives a NULL column
func jsonColumn[T any](v *T) (*datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	j := datatypes.JSON(data)
	return &j, nil
}

func decodeColumn[T any](j *datatypes.JSON) (*T, error) {
	if j == nil || len(*j) == 0 {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal(*j, out); err != nil {
		return nil, err
	}
	return out, nil
}

func predictionRow(p *podds.FixturePrediction) (PredictionRow, error) {
	row := PredictionRow{
		ID: p.ID, FixtureID: p.FixtureID, LeagueID: p.LeagueID, Season: p.Season,
		HomeID: p.HomeID, AwayID: p.AwayID, HomeName: p.HomeName, AwayName: p.AwayName,
		Kickoff: p.Kickoff.UTC(), CreatedAt: p.CreatedAt.UTC(),
		ExpectedHomeGoals: p.ExpectedHomeGoals, ExpectedAwayGoals: p.ExpectedAwayGoals,
		PredictedHomeGoals: p.PredictedHomeGoals, PredictedAwayGoals: p.PredictedAwayGoals,
		Method: p.Method, OverallConfidence: p.OverallConfidence,
	}
	var err error
	if row.Markets, err = json.Marshal(p.Markets); err != nil {
		return row, fmt.Errorf("failed to encode markets: %w", err)
	}
	if row.KeyFactors, err = json.Marshal(p.KeyFactors); err != nil {
		return row, fmt.Errorf("failed to encode key factors: %w", err)
	}
	if row.Bias, err = json.Marshal(p.Bias); err != nil {
		return row, fmt.Errorf("failed to encode bias: %w", err)
	}
	if row.HomeAnalysis, err = jsonColumn(p.HomeAnalysis); err != nil {
		return row, fmt.Errorf("failed to encode home analysis: %w", err)
	}
	if row.AwayAnalysis, err = jsonColumn(p.AwayAnalysis); err != nil {
		return row, fmt.Errorf("failed to encode away analysis: %w", err)
	}
	if row.MatchupAnalysis, err = jsonColumn(p.MatchupAnalysis); err != nil {
		return row, fmt.Errorf("failed to encode matchup analysis: %w", err)
	}
	return row, nil
}

func (r PredictionRow) prediction() (*podds.FixturePrediction, error) {
	p := &podds.FixturePrediction{
		ID: r.ID, FixtureID: r.FixtureID, LeagueID: r.LeagueID, Season: r.Season,
		HomeID: r.HomeID, AwayID: r.AwayID, HomeName: r.HomeName, AwayName: r.AwayName,
		Kickoff: r.Kickoff.UTC(), CreatedAt: r.CreatedAt.UTC(),
		ExpectedHomeGoals: r.ExpectedHomeGoals, ExpectedAwayGoals: r.ExpectedAwayGoals,
		PredictedHomeGoals: r.PredictedHomeGoals, PredictedAwayGoals: r.PredictedAwayGoals,
		Method: r.Method, OverallConfidence: r.OverallConfidence,
	}
	if err := json.Unmarshal(r.Markets, &p.Markets); err != nil {
		return nil, fmt.Errorf("failed to decode markets of %s: %w", r.ID, err)
	}
	if len(r.KeyFactors) > 0 {
		if err := json.Unmarshal(r.KeyFactors, &p.KeyFactors); err != nil {
			return nil, fmt.Errorf("failed to decode key factors of %s: %w", r.ID, err)
		}
	}
	if len(r.Bias) > 0 {
		if err := json.Unmarshal(r.Bias, &p.Bias); err != nil {
			return nil, fmt.Errorf("failed to decode bias of %s: %w", r.ID, err)
		}
	}
	var err error
	if p.HomeAnalysis, err = decodeColumn[advisory.TeamAnalysis](r.HomeAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode home analysis of %s: %w", r.ID, err)
	}
	if p.AwayAnalysis, err = decodeColumn[advisory.TeamAnalysis](r.AwayAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode away analysis of %s: %w", r.ID, err)
	}
	if p.MatchupAnalysis, err = decodeColumn[advisory.MatchupAnalysis](r.MatchupAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode matchup analysis of %s: %w", r.ID, err)
	}
	return p, nil
}

func learningRow(r *podds.LearningRecord) LearningRow {
	return LearningRow{
		ID: r.ID, PredictionID: r.PredictionID, FixtureID: r.FixtureID, CreatedAt: r.CreatedAt.UTC(),
		HomeGoals: r.HomeGoals, AwayGoals: r.AwayGoals,
		PredictedResult: r.PredictedResult, ActualResult: r.ActualResult, ResultMiss: r.ResultMiss,
		PredictedHomeWin: r.PredictedHomeWin, OverProbability: r.OverProbability, ActualOver: r.ActualOver,
		OverUnderError: r.OverUnderError, ExpectedTotal: r.ExpectedTotal, GoalError: r.GoalError,
		Confidence: r.Confidence, CalibrationError: r.CalibrationError, SuggestedAdjustment: r.SuggestedAdjustment,
	}
}

func (r LearningRow) record() *podds.LearningRecord {
	return &podds.LearningRecord{
		ID: r.ID, PredictionID: r.PredictionID, FixtureID: r.FixtureID, CreatedAt: r.CreatedAt.UTC(),
		HomeGoals: r.HomeGoals, AwayGoals: r.AwayGoals,
		PredictedResult: r.PredictedResult, ActualResult: r.ActualResult, ResultMiss: r.ResultMiss,
		PredictedHomeWin: r.PredictedHomeWin, OverProbability: r.OverProbability, ActualOver: r.ActualOver,
		OverUnderError: r.OverUnderError, ExpectedTotal: r.ExpectedTotal, GoalError: r.GoalError,
		Confidence: r.Confidence, CalibrationError: r.CalibrationError, SuggestedAdjustment: r.SuggestedAdjustment,
	}
}
