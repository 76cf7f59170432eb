package podds

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/advisory"
	"golang.org/x/sync/errgroup"
)

// advisoryCallsPerFixture is two team analyses and one matchup analysis
const advisoryCallsPerFixture = 3

// motivationGap is the difference in motivation scores worth reporting
const motivationGap = 10

// FixtureSource reads a season's fixtures ordered by kickoff
type FixtureSource interface {
	Fixtures(ctx context.Context, leagueID int, season string) ([]Fixture, error)
}

// PredictionSink stores predictions and learning records
type PredictionSink interface {
	SavePrediction(ctx context.Context, p *FixturePrediction) error
	SaveLearningRecord(ctx context.Context, r *LearningRecord) error
}

// TeamSeasonSink is implemented by sinks that also keep the season tables
type TeamSeasonSink interface {
	SaveTeamSeasons(ctx context.Context, teams []*TeamSeason) error
}

// LearningSource reads back the accumulated learning records
type LearningSource interface {
	LearningRecords(ctx context.Context) ([]*LearningRecord, error)
}

// PredictionRequest identifies a fixture to predict. Names are only used
// when the season has never seen the team
type PredictionRequest struct {
	FixtureID int         `json:"fixtureId,omitempty"`
	LeagueID  int         `json:"leagueId"`
	Season    string      `json:"season"`
	HomeID    int         `json:"homeId"`
	AwayID    int         `json:"awayId"`
	HomeName  string      `json:"homeName,omitempty"`
	AwayName  string      `json:"awayName,omitempty"`
	Kickoff   time.Time   `json:"kickoff"`
	Scorers   ScorerInput `json:"scorers"`
}

// RequestFor builds a request for a stored fixture
func RequestFor(f Fixture) PredictionRequest {
	return PredictionRequest{
		FixtureID: f.ID,
		LeagueID:  f.LeagueID,
		Season:    f.Season,
		HomeID:    f.HomeID,
		AwayID:    f.AwayID,
		HomeName:  f.HomeName,
		AwayName:  f.AwayName,
		Kickoff:   f.Kickoff,
	}
}

// Engine replays seasons and produces predictions
type Engine struct {
	cfg      *PoddsConfig
	source   FixtureSource
	sink     PredictionSink
	advisory *advisory.Service
	ratings  *RatingStore
	sim      Simulator
	now      func() time.Time

	mu       sync.RWMutex
	strength *StrengthModel
	seasons  map[SeasonKey]*SeasonState
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithSink persists predictions, learning records and season tables
func WithSink(sink PredictionSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithAdvisory sets the advisory service, without one every analysis is the local fallback
func WithAdvisory(s *advisory.Service) EngineOption {
	return func(e *Engine) { e.advisory = s }
}

// WithSimulator replaces the configured simulation strategy
func WithSimulator(sim Simulator) EngineOption {
	return func(e *Engine) { e.sim = sim }
}

// WithClock sets the time source for prediction and learning timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates the configuration and builds an engine reading from source
func NewEngine(cfg *PoddsConfig, source FixtureSource, opts ...EngineOption) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("a fixture source is required")
	}
	e := &Engine{
		cfg:      cfg,
		source:   source,
		ratings:  NewRatingStore(cfg.RatingBaseline),
		sim:      NewSimulator(cfg),
		now:      time.Now,
		strength: NewStrengthModel(cfg),
		seasons:  make(map[SeasonKey]*SeasonState),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.advisory == nil {
		e.advisory = advisory.NewService(advisory.Config{FallbackEnabled: true}, nil, advisory.SystemClock{})
	}
	return e, nil
}

// Ratings exposes the replayed ratings
func (e *Engine) Ratings() *RatingStore {
	return e.ratings
}

// Bias is the learned correction currently applied
func (e *Engine) Bias() StrengthBias {
	return e.model().Bias()
}

func (e *Engine) model() *StrengthModel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strength
}

// LoadSeason reads and replays a season from scratch. The resulting table is
// handed to the sink when it keeps tables, a failure there is only logged
func (e *Engine) LoadSeason(ctx context.Context, key SeasonKey) (*SeasonState, error) {
	season, err := ParseSeason(key.Season)
	if err != nil {
		return nil, err
	}
	key.Season = season

	fixtures, err := e.source.Fixtures(ctx, key.LeagueID, key.Season)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures for %s: %w", key, err)
	}
	arena := NewFixtureArena(fixtures)
	state := newSeasonState(key, arena, e.cfg)

	e.ratings.Forget(key)
	if err := e.ratings.Replay(key, arena, e.cfg.HomeAdvantage, e.cfg.KFactor, state.observe); err != nil {
		return nil, fmt.Errorf("failed to replay %s: %w", key, err)
	}

	e.mu.Lock()
	e.seasons[key] = state
	e.mu.Unlock()
	logger.Info(fmt.Sprintf("replayed %s: %d fixtures, %d results", key, arena.Len(), len(state.Changes)))

	if ts, ok := e.sink.(TeamSeasonSink); ok {
		if err := ts.SaveTeamSeasons(ctx, state.Latest()); err != nil {
			logger.Warn("failed to save season table for "+key.String(), err)
		}
	}
	return state, nil
}

// LoadSeasons replays distinct seasons in parallel
func (e *Engine) LoadSeasons(ctx context.Context, keys []SeasonKey) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	seen := make(map[SeasonKey]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Go(func() error {
			_, err := e.LoadSeason(ctx, key)
			return err
		})
	}
	return g.Wait()
}

// Season returns a replayed season, loading it on first use
func (e *Engine) Season(ctx context.Context, key SeasonKey) (*SeasonState, error) {
	season, err := ParseSeason(key.Season)
	if err != nil {
		return nil, err
	}
	key.Season = season

	e.mu.RLock()
	state, ok := e.seasons[key]
	e.mu.RUnlock()
	if ok {
		return state, nil
	}
	return e.LoadSeason(ctx, key)
}

// Predict produces a prediction for a fixture as of its kickoff. Only fixtures
// strictly before the kickoff contribute
func (e *Engine) Predict(ctx context.Context, req PredictionRequest) (*FixturePrediction, error) {
	state, err := e.Season(ctx, SeasonKey{LeagueID: req.LeagueID, Season: req.Season})
	if err != nil {
		return nil, err
	}
	home, away := recordsFor(state, req)
	return e.predict(ctx, e.advisory, e.sink, home, away, req)
}

// recordsFor picks both sides from the table as of kickoff, cold-starting unknown teams
func recordsFor(state *SeasonState, req PredictionRequest) (*TeamSeason, *TeamSeason) {
	var home, away *TeamSeason
	for _, t := range state.Table(req.Kickoff) {
		switch t.TeamID {
		case req.HomeID:
			home = t
		case req.AwayID:
			away = t
		}
	}
	if home == nil {
		home = NewTeamSeason(req.HomeID, state.Key, req.HomeName, state.cfg.RatingBaseline)
	}
	if away == nil {
		away = NewTeamSeason(req.AwayID, state.Key, req.AwayName, state.cfg.RatingBaseline)
	}
	if home.Name == "" {
		home.Name = req.HomeName
	}
	if away.Name == "" {
		away.Name = req.AwayName
	}
	return home, away
}

func (e *Engine) predict(ctx context.Context, svc *advisory.Service, sink PredictionSink, home, away *TeamSeason, req PredictionRequest) (*FixturePrediction, error) {
	model := e.model()
	xg := model.ExpectedGoals(home, away)

	dist := e.sim.Simulate(xg.Home, xg.Away)
	if e.cfg.DixonColes {
		dist = dist.WithDixonColes(e.cfg.DixonColesRho)
	}
	markets := DeriveMarkets(dist, req.Scorers, e.cfg)

	homeAnalysis, err := svc.Team(ctx, home.Profile())
	if err != nil {
		return nil, fmt.Errorf("home analysis for %s: %w", home.Name, err)
	}
	awayAnalysis, err := svc.Team(ctx, away.Profile())
	if err != nil {
		return nil, fmt.Errorf("away analysis for %s: %w", away.Name, err)
	}
	matchup, err := svc.Matchup(ctx, advisory.MatchupProfile{
		Home:          home.Profile(),
		Away:          away.Profile(),
		ExpectedHome:  xg.Home,
		ExpectedAway:  xg.Away,
		KickoffFormat: req.Kickoff.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("matchup analysis for %s v %s: %w", home.Name, away.Name, err)
	}

	markets = ApplyAdjustment(markets, matchup.AdvantageLabel, matchup.ConfidenceOr(e.cfg.DefaultConfidence), e.cfg)
	predictedHome, predictedAway := dist.MostLikelyScore()

	pred := &FixturePrediction{
		ID:                 uuid.NewString(),
		FixtureID:          req.FixtureID,
		LeagueID:           home.LeagueID,
		Season:             home.Season,
		HomeID:             home.TeamID,
		AwayID:             away.TeamID,
		HomeName:           home.Name,
		AwayName:           away.Name,
		Kickoff:            req.Kickoff,
		CreatedAt:          e.now(),
		ExpectedHomeGoals:  xg.Home,
		ExpectedAwayGoals:  xg.Away,
		PredictedHomeGoals: predictedHome,
		PredictedAwayGoals: predictedAway,
		Method:             dist.Method,
		Markets:            markets,
		HomeAnalysis:       homeAnalysis,
		AwayAnalysis:       awayAnalysis,
		MatchupAnalysis:    matchup,
		OverallConfidence: WeakestConfidence(e.cfg.DefaultConfidence,
			homeAnalysis.Confidence, awayAnalysis.Confidence, matchup.Confidence),
		KeyFactors: keyFactors(home, away, xg, model.Bias(), matchup),
		Bias:       model.Bias(),
	}

	if sink != nil {
		if err := sink.SavePrediction(ctx, pred); err != nil {
			logger.Warn(fmt.Sprintf("failed to save prediction for %s v %s", home.Name, away.Name), err)
		}
	}
	return pred, nil
}

// keyFactors lists the matchup's own factors first, then what the model
// itself leaned on
func keyFactors(home, away *TeamSeason, xg ExpectedGoals, bias StrengthBias, matchup *advisory.MatchupAnalysis) []string {
	factors := append([]string{}, matchup.KeyFactors...)
	add := func(f string) {
		if !slices.Contains(factors, f) {
			factors = append(factors, f)
		}
	}
	if xg.HomeStrength.UsedDefaults {
		add("limited season data for " + home.Name)
	}
	if xg.AwayStrength.UsedDefaults {
		add("limited season data for " + away.Name)
	}
	if math.Abs(home.MotivationScore-away.MotivationScore) >= motivationGap {
		add(fmt.Sprintf("motivation %.0f v %.0f", home.MotivationScore, away.MotivationScore))
	}
	if bias.Sample > 0 {
		add(fmt.Sprintf("learned bias from %d results", bias.Sample))
	}
	return factors
}

// PredictBatch predicts every request on a bounded worker pool. Results come
// back in request order. When the advisory service has no fallback the whole
// batch is refused up front if the quota cannot cover it
func (e *Engine) PredictBatch(ctx context.Context, reqs []PredictionRequest) ([]*FixturePrediction, error) {
	if err := CheckAdvisoryBudget(&e.cfg.Advisory, advisoryCallsPerFixture*len(reqs), e.advisory.Remaining()); err != nil {
		return nil, err
	}

	var keys []SeasonKey
	for _, r := range reqs {
		keys = append(keys, SeasonKey{LeagueID: r.LeagueID, Season: r.Season})
	}
	for _, key := range keys {
		if _, err := e.Season(ctx, key); err != nil {
			return nil, err
		}
	}

	results := make([]*FixturePrediction, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, req := range reqs {
		g.Go(func() error {
			p, err := e.Predict(ctx, req)
			if err != nil {
				return err
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// PredictUpcoming predicts every unplayed fixture of the season from the given time
func (e *Engine) PredictUpcoming(ctx context.Context, key SeasonKey, from time.Time) ([]*FixturePrediction, error) {
	state, err := e.Season(ctx, key)
	if err != nil {
		return nil, err
	}
	upcoming := state.Arena.Upcoming(from)
	reqs := make([]PredictionRequest, len(upcoming))
	for i, f := range upcoming {
		reqs[i] = RequestFor(f)
	}
	logger.Info(fmt.Sprintf("predicting %d upcoming fixtures for %s", len(reqs), state.Key))
	return e.PredictBatch(ctx, reqs)
}

// Learn evaluates a prediction against the final score and stores the
// record. The prediction itself is left untouched
func (e *Engine) Learn(ctx context.Context, pred *FixturePrediction, homeGoals, awayGoals int) *LearningRecord {
	rec := Evaluate(pred, homeGoals, awayGoals, e.cfg.TargetConfidence, e.now())
	if e.sink != nil {
		if err := e.sink.SaveLearningRecord(ctx, rec); err != nil {
			logger.Warn(fmt.Sprintf("failed to save learning record for prediction %s", pred.ID), err)
		}
	}
	return rec
}

// Calibrate derives a bias from the stored learning records. It is applied
// to later predictions only when learning is enabled
func (e *Engine) Calibrate(ctx context.Context, src LearningSource) (StrengthBias, error) {
	records, err := src.LearningRecords(ctx)
	if err != nil {
		return StrengthBias{}, fmt.Errorf("failed to read learning records: %w", err)
	}
	bias := NewCalibrator(e.cfg).Bias(records)
	if e.cfg.LearningEnabled {
		e.mu.Lock()
		e.strength = e.strength.WithBias(bias)
		e.mu.Unlock()
		logger.Inform(fmt.Sprintf("applied learned bias from %d records", bias.Sample), bias)
	}
	return bias, nil
}

// Backtest predicts every completed fixture of a season as of its kickoff
// and scores it against the result. Analyses come from the local fallback
// and nothing is persisted
func (e *Engine) Backtest(ctx context.Context, key SeasonKey) (Accuracy, []*LearningRecord, error) {
	state, err := e.Season(ctx, key)
	if err != nil {
		return Accuracy{}, nil, err
	}
	offline := advisory.NewService(advisory.Config{FallbackEnabled: true}, nil, advisory.SystemClock{})

	var records []*LearningRecord
	predictions := make(map[string]*FixturePrediction)
	for f := range state.Arena.Completed() {
		if err := ctx.Err(); err != nil {
			return Accuracy{}, nil, err
		}
		req := RequestFor(f)
		home, away := recordsFor(state, req)
		pred, err := e.predict(ctx, offline, nil, home, away, req)
		if err != nil {
			return Accuracy{}, nil, err
		}
		predictions[pred.ID] = pred
		records = append(records, Evaluate(pred, f.HomeGoals, f.AwayGoals, e.cfg.TargetConfidence, e.now()))
	}
	return Summarize(records, predictions), records, nil
}
