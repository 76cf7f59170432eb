package podds

import (
	"time"

	"github.com/richard-senior/podds/pkg/advisory"
)

// Compile-time check to ensure FixturePrediction implements Persistable interface
var _ Persistable = (*FixturePrediction)(nil)

// FixturePrediction is the probability sheet for one (home, away, kickoff).
// It is created once and never mutated, learning records link to it by ID
type FixturePrediction struct {
	ID        string    `json:"id" column:"id" dbtype:"TEXT" primary:"true"`
	FixtureID int       `json:"fixtureId,omitempty" column:"fixture_id" dbtype:"INTEGER" index:"true"`
	LeagueID  int       `json:"leagueId" column:"league_id" dbtype:"INTEGER"`
	Season    string    `json:"season" column:"season" dbtype:"TEXT"`
	HomeID    int       `json:"homeId" column:"home_id" dbtype:"INTEGER" index:"true"`
	AwayID    int       `json:"awayId" column:"away_id" dbtype:"INTEGER" index:"true"`
	HomeName  string    `json:"homeName" column:"home_name" dbtype:"TEXT"`
	AwayName  string    `json:"awayName" column:"away_name" dbtype:"TEXT"`
	Kickoff   time.Time `json:"kickoff" column:"kickoff" dbtype:"INTEGER" encode:"unix"`
	CreatedAt time.Time `json:"createdAt" column:"created_at" dbtype:"INTEGER" encode:"unix" index:"true"`

	ExpectedHomeGoals  float64 `json:"expectedHomeGoals" column:"expected_home_goals" dbtype:"REAL"`
	ExpectedAwayGoals  float64 `json:"expectedAwayGoals" column:"expected_away_goals" dbtype:"REAL"`
	PredictedHomeGoals int     `json:"predictedHomeGoals" column:"predicted_home_goals" dbtype:"INTEGER"`
	PredictedAwayGoals int     `json:"predictedAwayGoals" column:"predicted_away_goals" dbtype:"INTEGER"`
	Method             string  `json:"method" column:"method" dbtype:"TEXT"`

	Markets           Markets                   `json:"markets" column:"markets" dbtype:"TEXT" encode:"json"`
	HomeAnalysis      *advisory.TeamAnalysis    `json:"homeAnalysis" column:"home_analysis" dbtype:"TEXT" encode:"json"`
	AwayAnalysis      *advisory.TeamAnalysis    `json:"awayAnalysis" column:"away_analysis" dbtype:"TEXT" encode:"json"`
	MatchupAnalysis   *advisory.MatchupAnalysis `json:"matchupAnalysis" column:"matchup_analysis" dbtype:"TEXT" encode:"json"`
	OverallConfidence int                       `json:"overallConfidence" column:"overall_confidence" dbtype:"INTEGER"`
	KeyFactors        []string                  `json:"keyFactors" column:"key_factors" dbtype:"TEXT" encode:"json"`
	Bias              StrengthBias              `json:"bias" column:"bias" dbtype:"TEXT" encode:"json"`
}

func (p *FixturePrediction) GetTableName() string { return "fixture_prediction" }

func (p *FixturePrediction) GetPrimaryKey() map[string]any {
	return map[string]any{"id": p.ID}
}

func (p *FixturePrediction) BeforeSave() error { return nil }
func (p *FixturePrediction) AfterSave() error  { return nil }
