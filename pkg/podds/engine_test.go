package podds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/advisory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowAdvisor never answers before the caller gives up
type slowAdvisor struct{}

func (slowAdvisor) AnalyzeTeam(ctx context.Context, _ advisory.TeamProfile) (*advisory.TeamAnalysis, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowAdvisor) AnalyzeMatchup(ctx context.Context, _ advisory.MatchupProfile) (*advisory.MatchupAnalysis, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// confidentAdvisor always favours the home side
type confidentAdvisor struct{}

func (confidentAdvisor) AnalyzeTeam(context.Context, advisory.TeamProfile) (*advisory.TeamAnalysis, error) {
	return &advisory.TeamAnalysis{Style: "pressing", Strengths: []string{"pace"}, Weaknesses: []string{"set pieces"},
		FormLabel: "good", Predictability: 70, Confidence: intPtr(80), Source: advisory.SourceService}, nil
}

func (confidentAdvisor) AnalyzeMatchup(context.Context, advisory.MatchupProfile) (*advisory.MatchupAnalysis, error) {
	return &advisory.MatchupAnalysis{AdvantageLabel: advisory.AdvantageHome, Confidence: intPtr(70),
		KeyFactors: []string{"home crowd"}, Source: advisory.SourceService}, nil
}

// unsureAdvisor answers without ever stating a confidence
type unsureAdvisor struct{}

func (unsureAdvisor) AnalyzeTeam(context.Context, advisory.TeamProfile) (*advisory.TeamAnalysis, error) {
	return &advisory.TeamAnalysis{Style: "direct", Strengths: []string{"aerial threat"}, Source: advisory.SourceService}, nil
}

func (unsureAdvisor) AnalyzeMatchup(context.Context, advisory.MatchupProfile) (*advisory.MatchupAnalysis, error) {
	return &advisory.MatchupAnalysis{AdvantageLabel: advisory.AdvantageHome, Source: advisory.SourceService}, nil
}

var fixedNow = time.Date(2024, 9, 20, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg *PoddsConfig, opts ...EngineOption) (*Engine, *memorySource) {
	t.Helper()
	src := &memorySource{fixtures: roundRobin()}
	opts = append([]EngineOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	e, err := NewEngine(cfg, src, opts...)
	require.NoError(t, err)
	return e, src
}

func nextFixture() PredictionRequest {
	return RequestFor(scheduled(13, 1, 2, 42))
}

func TestEnginePredict(t *testing.T) {
	cfg := testConfig()
	sink := &memorySink{}
	e, _ := newTestEngine(t, cfg, WithSink(sink))

	pred, err := e.Predict(context.Background(), nextFixture())
	require.NoError(t, err)

	assert.NotEmpty(t, pred.ID)
	assert.Equal(t, 13, pred.FixtureID)
	assert.Equal(t, "Team 1", pred.HomeName)
	assert.Equal(t, "2024/2025", pred.Season)
	assert.Equal(t, fixedNow, pred.CreatedAt)
	assert.Equal(t, MethodMonteCarlo, pred.Method)
	assertValidOutcome(t, cfg, pred.Markets)
	assert.Greater(t, pred.Markets.HomeWin, pred.Markets.AwayWin)
	assert.Greater(t, pred.ExpectedHomeGoals, pred.ExpectedAwayGoals)

	// every analysis is the local fallback
	assert.Equal(t, advisory.SourceFallback, pred.HomeAnalysis.Source)
	assert.Equal(t, advisory.SourceFallback, pred.MatchupAnalysis.Source)
	assert.Equal(t, 50, pred.OverallConfidence)
	assert.NotEmpty(t, pred.KeyFactors)

	require.Len(t, sink.predictions, 1)
	assert.Same(t, pred, sink.predictions[0])
}

func TestEnginePredictionIsReproducible(t *testing.T) {
	a, _ := newTestEngine(t, testConfig())
	b, _ := newTestEngine(t, testConfig())
	pa, err := a.Predict(context.Background(), nextFixture())
	require.NoError(t, err)
	pb, err := b.Predict(context.Background(), nextFixture())
	require.NoError(t, err)
	assert.Equal(t, pa.Markets, pb.Markets)
	assert.Equal(t, pa.ExpectedHomeGoals, pb.ExpectedHomeGoals)
}

func TestEngineColdStartTeams(t *testing.T) {
	cfg := testConfig()
	cfg.SimulationStrategy = StrategyClosedForm
	e, _ := newTestEngine(t, cfg)

	req := PredictionRequest{LeagueID: 47, Season: "2024-25", HomeID: 101, AwayID: 102,
		HomeName: "Promoted", AwayName: "Newcomers", Kickoff: seasonStart.AddDate(0, 1, 0)}
	pred, err := e.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.InDelta(t, 1.3, pred.ExpectedHomeGoals, 1e-9)
	assert.InDelta(t, 1.0, pred.ExpectedAwayGoals, 1e-9)
	assert.GreaterOrEqual(t, pred.Markets.HomeWin, 0.35)
	assert.LessOrEqual(t, pred.Markets.HomeWin, 0.45)
	assert.GreaterOrEqual(t, pred.Markets.Draw, 0.25)
	assert.LessOrEqual(t, pred.Markets.Draw, 0.30)
	assert.Equal(t, "Promoted", pred.HomeName)
	assert.Contains(t, pred.KeyFactors, "limited season data for Promoted")
}

func TestEngineAdvisoryTimeoutFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.Advisory.Enabled = true
	cfg.Advisory.Timeout = 10 * time.Millisecond
	svc := advisory.NewService(cfg.Advisory, slowAdvisor{}, &stepClock{now: fixedNow})
	e, _ := newTestEngine(t, cfg, WithAdvisory(svc))

	pred, err := e.Predict(context.Background(), nextFixture())
	require.NoError(t, err)

	assert.Equal(t, 50, pred.OverallConfidence)
	assert.NotEmpty(t, pred.HomeAnalysis.Strengths)
	assert.NotEmpty(t, pred.HomeAnalysis.Weaknesses)
	assert.NotEmpty(t, pred.AwayAnalysis.Strengths)
	assert.NotEmpty(t, pred.AwayAnalysis.Weaknesses)
	assert.Equal(t, advisory.SourceFallback, pred.AwayAnalysis.Source)
	assertValidOutcome(t, cfg, pred.Markets)
}

func TestEngineUsesAdvisoryAnalyses(t *testing.T) {
	cfg := testConfig()
	cfg.Advisory.Enabled = true
	svc := advisory.NewService(cfg.Advisory, confidentAdvisor{}, &stepClock{now: fixedNow})
	advised, _ := newTestEngine(t, cfg, WithAdvisory(svc))

	pred, err := advised.Predict(context.Background(), nextFixture())
	require.NoError(t, err)

	assert.Equal(t, advisory.SourceService, pred.HomeAnalysis.Source)
	assert.Equal(t, 70, pred.OverallConfidence)
	assert.Equal(t, "home crowd", pred.KeyFactors[0])
	assert.Greater(t, pred.Markets.HomeWin, pred.Markets.AwayWin)
	assertValidOutcome(t, cfg, pred.Markets)
}

func TestEngineMissingAdvisoryConfidenceUsesDefault(t *testing.T) {
	cfg := testConfig()
	cfg.Advisory.Enabled = true
	cfg.DefaultConfidence = 50
	svc := advisory.NewService(cfg.Advisory, unsureAdvisor{}, &stepClock{now: fixedNow})
	e, _ := newTestEngine(t, cfg, WithAdvisory(svc))

	pred, err := e.Predict(context.Background(), nextFixture())
	require.NoError(t, err)

	assert.Equal(t, advisory.SourceService, pred.MatchupAnalysis.Source)
	assert.Nil(t, pred.HomeAnalysis.Confidence)
	assert.Nil(t, pred.MatchupAnalysis.Confidence)
	assert.Equal(t, 50, pred.OverallConfidence)
	assert.Greater(t, pred.Markets.HomeWin, pred.Markets.AwayWin)
	assertValidOutcome(t, cfg, pred.Markets)
}

func TestEnginePredictBatchKeepsOrder(t *testing.T) {
	e, src := newTestEngine(t, testConfig())
	reqs := []PredictionRequest{
		RequestFor(scheduled(14, 3, 4, 42)),
		nextFixture(),
		RequestFor(scheduled(15, 4, 1, 49)),
	}
	preds, err := e.PredictBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for i, p := range preds {
		assert.Equal(t, reqs[i].FixtureID, p.FixtureID)
		assert.Equal(t, reqs[i].HomeID, p.HomeID)
	}
	// the season is replayed once for the whole batch
	assert.Equal(t, 1, src.reads)
}

func TestEnginePredictBatchRefusesOverQuota(t *testing.T) {
	cfg := testConfig()
	cfg.Advisory.Enabled = true
	cfg.Advisory.FallbackEnabled = false
	cfg.Advisory.DailyQuota = 5
	svc := advisory.NewService(cfg.Advisory, confidentAdvisor{}, &stepClock{now: fixedNow})
	e, src := newTestEngine(t, cfg, WithAdvisory(svc))

	_, err := e.PredictBatch(context.Background(), []PredictionRequest{nextFixture(), nextFixture()})
	assert.ErrorIs(t, err, ErrAdvisoryQuota)
	assert.Zero(t, src.reads)

	preds, err := e.PredictBatch(context.Background(), []PredictionRequest{nextFixture()})
	require.NoError(t, err)
	assert.Len(t, preds, 1)
	assert.Equal(t, 2, svc.Remaining())
}

func TestEngineRejectsFallbackWithoutQuota(t *testing.T) {
	cfg := testConfig()
	cfg.Advisory.Enabled = true
	cfg.Advisory.FallbackEnabled = false
	cfg.Advisory.DailyQuota = 0
	_, err := NewEngine(cfg, &memorySource{})
	assert.ErrorIs(t, err, ErrAdvisoryQuota)
}

func TestEnginePredictUpcoming(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	preds, err := e.PredictUpcoming(context.Background(), testKey, seasonStart)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 13, preds[0].FixtureID)
	assert.Equal(t, 14, preds[1].FixtureID)
}

func TestEngineSinkFailureStillPredicts(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	e, _ := newTestEngine(t, testConfig(), WithSink(sink))

	pred, err := e.Predict(context.Background(), nextFixture())
	require.NoError(t, err)
	assert.NotNil(t, pred)

	rec := e.Learn(context.Background(), pred, 1, 0)
	assert.Equal(t, pred.ID, rec.PredictionID)
}

func TestEngineLearnAndCalibrate(t *testing.T) {
	cfg := testConfig()
	cfg.LearningEnabled = true
	cfg.MinLearningSample = 5
	sink := &memorySink{}
	e, _ := newTestEngine(t, cfg, WithSink(sink))

	pred, err := e.Predict(context.Background(), nextFixture())
	require.NoError(t, err)
	snapshot := *pred
	for i := 0; i < 5; i++ {
		rec := e.Learn(context.Background(), pred, 3, 2)
		assert.Equal(t, fixedNow, rec.CreatedAt)
	}
	assert.Equal(t, snapshot, *pred)
	require.Len(t, sink.records, 5)

	bias, err := e.Calibrate(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 5, bias.Sample)
	assert.Equal(t, bias, e.Bias())
	assert.Greater(t, bias.GoalScaleShift, 0.0)

	after, err := e.Predict(context.Background(), nextFixture())
	require.NoError(t, err)
	assert.Equal(t, bias, after.Bias)
	assert.GreaterOrEqual(t, after.ExpectedAwayGoals, pred.ExpectedAwayGoals)
}

func TestEngineCalibrateWithoutLearning(t *testing.T) {
	sink := &memorySink{}
	e, _ := newTestEngine(t, testConfig(), WithSink(sink))
	for i := 0; i < 30; i++ {
		sink.records = append(sink.records, &LearningRecord{ActualResult: ResultAway, ExpectedTotal: 2})
	}
	bias, err := e.Calibrate(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 30, bias.Sample)
	assert.Zero(t, e.Bias().Sample)
}

func TestEngineBacktest(t *testing.T) {
	sink := &memorySink{}
	e, _ := newTestEngine(t, testConfig(), WithSink(sink))

	acc, records, err := e.Backtest(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 12, acc.Count)
	assert.Len(t, records, 12)
	assert.GreaterOrEqual(t, acc.ResultHitRate, 0.0)
	assert.LessOrEqual(t, acc.ResultHitRate, 1.0)
	// backtests persist nothing
	assert.Empty(t, sink.predictions)
	assert.Empty(t, sink.records)
}

func TestEngineWithStore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.SaveFixtures(ctx, roundRobin()))

	e, err := NewEngine(testConfig(), store, WithSink(store))
	require.NoError(t, err)
	require.NoError(t, e.LoadSeasons(ctx, []SeasonKey{testKey, testKey}))

	table, err := store.TeamSeasons(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, table, 4)
	assert.Equal(t, e.Ratings().Rating(testKey, 1), table[0].Rating)

	pred, err := e.Predict(ctx, nextFixture())
	require.NoError(t, err)
	stored, err := store.LatestPrediction(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, pred.ID, stored.ID)
	assert.Equal(t, pred.Markets, stored.Markets)

	e.Learn(ctx, stored, 2, 1)
	records, err := store.LearningRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, pred.ID, records[0].PredictionID)
}
