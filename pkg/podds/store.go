package podds

import (
	"context"
	"fmt"
)

// Compile-time checks to ensure Store serves the engine
var (
	_ FixtureSource  = (*Store)(nil)
	_ PredictionSink = (*Store)(nil)
	_ TeamSeasonSink = (*Store)(nil)
	_ LearningSource = (*Store)(nil)
)

// Fixtures returns the season's fixtures in (kickoff, id) order
func (s *Store) Fixtures(ctx context.Context, leagueID int, season string) ([]Fixture, error) {
	rows, err := FindWhere[Fixture](ctx, s, "league_id = ? AND season = ? ORDER BY kickoff, id", leagueID, season)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures for %d %s: %w", leagueID, season, err)
	}
	fixtures := make([]Fixture, len(rows))
	for i, f := range rows {
		fixtures[i] = *f
	}
	return fixtures, nil
}

// SaveFixtures upserts fixtures in one transaction
func (s *Store) SaveFixtures(ctx context.Context, fixtures []Fixture) error {
	objs := make([]Persistable, len(fixtures))
	for i := range fixtures {
		objs[i] = &fixtures[i]
	}
	return s.BulkSave(ctx, objs)
}

// SaveTeamSeasons upserts the table rows of a season
func (s *Store) SaveTeamSeasons(ctx context.Context, teams []*TeamSeason) error {
	objs := make([]Persistable, len(teams))
	for i, t := range teams {
		objs[i] = t
	}
	return s.BulkSave(ctx, objs)
}

// TeamSeasons returns the stored table for a season ordered by position
func (s *Store) TeamSeasons(ctx context.Context, key SeasonKey) ([]*TeamSeason, error) {
	return FindWhere[TeamSeason](ctx, s, "league_id = ? AND season = ? ORDER BY position, team_id", key.LeagueID, key.Season)
}

// SavePrediction inserts a prediction, predictions are never rewritten
func (s *Store) SavePrediction(ctx context.Context, p *FixturePrediction) error {
	return s.Insert(ctx, p)
}

// SaveLearningRecord inserts a learning record
func (s *Store) SaveLearningRecord(ctx context.Context, r *LearningRecord) error {
	return s.Insert(ctx, r)
}

// Prediction loads a prediction by id
func (s *Store) Prediction(ctx context.Context, id string) (*FixturePrediction, error) {
	p := &FixturePrediction{ID: id}
	if err := s.FindByPrimaryKey(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LatestPrediction is the newest prediction made for a fixture
func (s *Store) LatestPrediction(ctx context.Context, fixtureID int) (*FixturePrediction, error) {
	rows, err := FindWhere[FixturePrediction](ctx, s, "fixture_id = ? ORDER BY created_at DESC LIMIT 1", fixtureID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("prediction for fixture %d: %w", fixtureID, ErrRecordNotFound)
	}
	return rows[0], nil
}

// Predictions returns every stored prediction keyed by id
func (s *Store) Predictions(ctx context.Context) (map[string]*FixturePrediction, error) {
	rows, err := FindWhere[FixturePrediction](ctx, s, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*FixturePrediction, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// LearningRecords returns every learning record oldest first
func (s *Store) LearningRecords(ctx context.Context) ([]*LearningRecord, error) {
	return FindWhere[LearningRecord](ctx, s, "1 = 1 ORDER BY created_at, id")
}
