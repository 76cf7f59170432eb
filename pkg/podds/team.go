package podds

import (
	"time"

	"github.com/richard-senior/podds/pkg/advisory"
)

// Compile-time check to ensure TeamSeason implements Persistable interface
var _ Persistable = (*TeamSeason)(nil)

// TeamSeason is a team within one competition edition as of a point in time.
// It is upserted per season and never deleted
type TeamSeason struct {
	TeamID   int    `json:"teamId" column:"team_id" dbtype:"INTEGER" primary:"true" index:"true"`
	LeagueID int    `json:"leagueId" column:"league_id" dbtype:"INTEGER" primary:"true"`
	Season   string `json:"season" column:"season" dbtype:"TEXT" primary:"true"`
	Name     string `json:"name" column:"name" dbtype:"TEXT"`

	// cumulative record
	Played       int `json:"played" column:"played" dbtype:"INTEGER"`
	Wins         int `json:"wins" column:"wins" dbtype:"INTEGER"`
	Draws        int `json:"draws" column:"draws" dbtype:"INTEGER"`
	Losses       int `json:"losses" column:"losses" dbtype:"INTEGER"`
	GoalsFor     int `json:"goalsFor" column:"goals_for" dbtype:"INTEGER"`
	GoalsAgainst int `json:"goalsAgainst" column:"goals_against" dbtype:"INTEGER"`
	Points       int `json:"points" column:"points" dbtype:"INTEGER"`

	// strength and form
	Rating       int      `json:"rating" column:"rating" dbtype:"INTEGER"`
	FormPoints5  *int     `json:"formPoints5" column:"form_points_5" dbtype:"INTEGER"`
	FormPoints10 *int     `json:"formPoints10" column:"form_points_10" dbtype:"INTEGER"`
	Form         string   `json:"form" column:"form" dbtype:"TEXT"` // recent results, oldest first e.g. WWDLW
	Volatility   *float64 `json:"volatility" column:"volatility" dbtype:"REAL"`

	// context derived from the league table
	Position        int     `json:"position" column:"position" dbtype:"INTEGER"`
	DistanceToTop   int     `json:"distanceToTop" column:"distance_to_top" dbtype:"INTEGER"`
	DistanceToDrop  int     `json:"distanceToDrop" column:"distance_to_drop" dbtype:"INTEGER"`
	MotivationScore float64 `json:"motivationScore" column:"motivation_score" dbtype:"REAL"`
	PressureScore   float64 `json:"pressureScore" column:"pressure_score" dbtype:"REAL"`

	AsOf time.Time `json:"asOf" column:"as_of" dbtype:"INTEGER" encode:"unix"`
}

func (t *TeamSeason) GetTableName() string { return "team_season" }

func (t *TeamSeason) GetPrimaryKey() map[string]any {
	return map[string]any{"team_id": t.TeamID, "league_id": t.LeagueID, "season": t.Season}
}

func (t *TeamSeason) BeforeSave() error { return nil }
func (t *TeamSeason) AfterSave() error  { return nil }

// Key is the team's season key
func (t *TeamSeason) Key() SeasonKey {
	return SeasonKey{LeagueID: t.LeagueID, Season: t.Season}
}

// GoalsPerGame is goals scored per game, ok is false before the first game
func (t *TeamSeason) GoalsPerGame() (float64, bool) {
	if t.Played <= 0 {
		return 0, false
	}
	return float64(t.GoalsFor) / float64(t.Played), true
}

// ConcededPerGame is goals conceded per game, ok is false before the first game
func (t *TeamSeason) ConcededPerGame() (float64, bool) {
	if t.Played <= 0 {
		return 0, false
	}
	return float64(t.GoalsAgainst) / float64(t.Played), true
}

// GoalDifference is goals for minus goals against
func (t *TeamSeason) GoalDifference() int {
	return t.GoalsFor - t.GoalsAgainst
}

// addResult accumulates one completed fixture from this team's point of view
func (t *TeamSeason) addResult(scored, conceded int) {
	t.Played++
	t.GoalsFor += scored
	t.GoalsAgainst += conceded
	switch {
	case scored > conceded:
		t.Wins++
		t.Points += 3
	case scored == conceded:
		t.Draws++
		t.Points++
	default:
		t.Losses++
	}
}

// Profile is the numeric picture handed to the advisory service
func (t *TeamSeason) Profile() advisory.TeamProfile {
	return advisory.TeamProfile{
		TeamID:       t.TeamID,
		Name:         t.Name,
		Season:       t.Season,
		Played:       t.Played,
		Wins:         t.Wins,
		Draws:        t.Draws,
		Losses:       t.Losses,
		GoalsFor:     t.GoalsFor,
		GoalsAgainst: t.GoalsAgainst,
		Position:     t.Position,
		Points:       t.Points,
		Rating:       t.Rating,
		FormPoints5:  t.FormPoints5,
		Volatility:   t.Volatility,
		Motivation:   t.MotivationScore,
	}
}

// NewTeamSeason is a cold-start record: no games, baseline rating, neutral context
func NewTeamSeason(teamID int, key SeasonKey, name string, baseline int) *TeamSeason {
	return &TeamSeason{
		TeamID:          teamID,
		LeagueID:        key.LeagueID,
		Season:          key.Season,
		Name:            name,
		Rating:          baseline,
		MotivationScore: neutralMotivation,
		PressureScore:   neutralMotivation,
	}
}
