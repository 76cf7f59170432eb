package podds

import (
	"context"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/advisory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreFixturesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	fixtures := roundRobin()
	// store them out of order, reads come back by kickoff then id
	reversed := make([]Fixture, len(fixtures))
	for i, f := range fixtures {
		reversed[len(fixtures)-1-i] = f
	}
	require.NoError(t, s.SaveFixtures(ctx, reversed))

	got, err := s.Fixtures(ctx, 47, "2024/2025")
	require.NoError(t, err)
	require.Len(t, got, len(fixtures))
	for i := range fixtures {
		assert.Equal(t, fixtures[i].ID, got[i].ID)
		assert.True(t, fixtures[i].Kickoff.Equal(got[i].Kickoff))
		assert.Equal(t, fixtures[i].HomeGoals, got[i].HomeGoals)
		assert.Equal(t, fixtures[i].Status, got[i].Status)
	}
	assert.Equal(t, -1, got[len(got)-1].HomeGoals)

	other, err := s.Fixtures(ctx, 48, "2024/2025")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreFixtureUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	f := scheduled(1, 1, 2, 0)
	require.NoError(t, s.Save(ctx, &f))

	f.HomeGoals, f.AwayGoals, f.Status = 2, 2, StatusComplete
	require.NoError(t, s.Save(ctx, &f))

	exists, err := s.Exists(ctx, &f)
	require.NoError(t, err)
	assert.True(t, exists)

	got := &Fixture{ID: 1}
	require.NoError(t, s.FindByPrimaryKey(ctx, got))
	assert.Equal(t, 2, got.HomeGoals)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, "Team 1", got.HomeName)
}

func TestStoreTeamSeasons(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	state := replayedState(t, testConfig())

	require.NoError(t, s.SaveTeamSeasons(ctx, state.Latest()))
	// a second save of the same season replaces the rows
	require.NoError(t, s.SaveTeamSeasons(ctx, state.Latest()))

	rows, err := s.TeamSeasons(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, 1, rows[0].TeamID)
	assert.Equal(t, 18, rows[0].Points)
	require.NotNil(t, rows[0].FormPoints5)
	assert.Equal(t, 15, *rows[0].FormPoints5)
	assert.Nil(t, rows[0].FormPoints10)
	require.NotNil(t, rows[0].Volatility)
	assert.InDelta(t, 1.1547, *rows[0].Volatility, 1e-4)
}

func TestStorePredictionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created := time.Date(2025, 2, 1, 10, 30, 0, 0, time.UTC)
	pred := samplePrediction()
	pred.CreatedAt = created
	pred.Kickoff = created.Add(48 * time.Hour)
	pred.HomeAnalysis = advisory.FallbackTeam(advisory.TeamProfile{Name: "Home", Played: 3})
	pred.MatchupAnalysis = &advisory.MatchupAnalysis{AdvantageLabel: advisory.AdvantageHome, Confidence: intPtr(70)}
	pred.KeyFactors = []string{"rating gap +120"}
	require.NoError(t, s.SavePrediction(ctx, pred))

	// predictions are immutable
	assert.Error(t, s.SavePrediction(ctx, pred))

	got, err := s.Prediction(ctx, pred.ID)
	require.NoError(t, err)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, pred.Kickoff.Equal(got.Kickoff))
	assert.Equal(t, pred.Markets, got.Markets)
	assert.Equal(t, pred.HomeAnalysis, got.HomeAnalysis)
	assert.Nil(t, got.AwayAnalysis)
	assert.Equal(t, advisory.AdvantageHome, got.MatchupAnalysis.AdvantageLabel)
	assert.Equal(t, pred.KeyFactors, got.KeyFactors)

	latest, err := s.LatestPrediction(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, pred.ID, latest.ID)

	_, err = s.LatestPrediction(ctx, 999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = s.Prediction(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	all, err := s.Predictions(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, pred.ID)
}

func TestStoreLearningRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	pred := samplePrediction()

	first := Evaluate(pred, 1, 0, 0.7, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	second := Evaluate(pred, 0, 2, 0.7, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveLearningRecord(ctx, second))
	require.NoError(t, s.SaveLearningRecord(ctx, first))

	records, err := s.LearningRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.False(t, records[0].ResultMiss)
	assert.True(t, records[1].ResultMiss)
	assert.Equal(t, second.SuggestedAdjustment, records[1].SuggestedAdjustment)
}
