package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/internal/repository"
	"github.com/richard-senior/podds/pkg/advisory"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/util"
)

const usage = `usage: podds <command> [flags]

commands:
  import    load fixtures from a JSON file into the store
  replay    replay the configured seasons and store the league tables
  predict   predict upcoming fixtures, or one match with -home and -away
  learn     score stored predictions against results and calibrate,
            or one prediction with -prediction ID -score 2-1
  backtest  predict every completed fixture as of its kickoff`

// storage is what both the sqlite store and the postgres repository offer
type storage interface {
	podds.FixtureSource
	podds.PredictionSink
	podds.TeamSeasonSink
	podds.LearningSource
	SaveFixtures(ctx context.Context, fixtures []podds.Fixture) error
	Prediction(ctx context.Context, id string) (*podds.FixturePrediction, error)
	LatestPrediction(ctx context.Context, fixtureID int) (*podds.FixturePrediction, error)
	Predictions(ctx context.Context) (map[string]*podds.FixturePrediction, error)
	Close() error
}

func main() {
	logger.SetShowDateTime(true)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Error("podds "+os.Args[1]+" failed", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	logOutput := fs.String("log", "c", "log output: c console, f file, b both")
	file := fs.String("file", "", "fixtures JSON file (import)")
	from := fs.String("from", "", "predict fixtures from this date, YYYY-MM-DD (default now)")
	home := fs.String("home", "", "home team name (predict)")
	away := fs.String("away", "", "away team name (predict)")
	league := fs.Int("league", 0, "league id for -home/-away (default first configured)")
	season := fs.String("season", "", "season for -home/-away (default first configured)")
	predictionID := fs.String("prediction", "", "score this prediction by id (learn)")
	score := fs.String("score", "", "final score for -prediction, e.g. 2-1 (learn)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if len(*logOutput) != 1 {
		return fmt.Errorf("invalid log output %q", *logOutput)
	}
	if err := logger.SetLogOutput(rune((*logOutput)[0])); err != nil {
		return err
	}

	cfg, err := podds.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if command == "import" {
		return importFixtures(ctx, store, *file)
	}

	svc := advisory.NewService(cfg.Advisory, advisorFor(cfg.Advisory), advisory.SystemClock{})
	engine, err := podds.NewEngine(cfg, store, podds.WithSink(store), podds.WithAdvisory(svc))
	if err != nil {
		return err
	}
	keys, err := seasonKeys(cfg)
	if err != nil {
		return err
	}
	if command == "predict" || command == "backtest" {
		// stored learning records bias the model when learning is enabled
		if _, err := engine.Calibrate(ctx, store); err != nil {
			return err
		}
	}

	switch command {
	case "replay":
		return replay(ctx, engine, keys, out)
	case "predict":
		if *home != "" || *away != "" {
			key, err := matchKey(keys, *league, *season)
			if err != nil {
				return err
			}
			return predictMatch(ctx, engine, key, *home, *away, out)
		}
		start := time.Now().UTC()
		if *from != "" {
			if start, err = time.Parse(time.DateOnly, *from); err != nil {
				return fmt.Errorf("invalid -from date: %w", err)
			}
		}
		return predictUpcoming(ctx, engine, keys, start, out)
	case "learn":
		var manual *manualResult
		if *predictionID != "" || *score != "" {
			if manual, err = parseManualResult(*predictionID, *score); err != nil {
				return err
			}
		}
		return learn(ctx, engine, store, keys, manual, out)
	case "backtest":
		return backtest(ctx, engine, keys, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func openStorage(ctx context.Context, cfg *podds.PoddsConfig) (storage, error) {
	if cfg.PostgresDSN != "" {
		return repository.Open(ctx, cfg.PostgresDSN)
	}
	return podds.OpenStore(ctx, cfg.DbPath)
}

// advisorFor returns nil when the service is off so that every analysis
// comes from the local fallback
func advisorFor(cfg advisory.Config) advisory.Advisor {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil
	}
	return advisory.NewHTTPAdvisor(cfg, nil)
}

func seasonKeys(cfg *podds.PoddsConfig) ([]podds.SeasonKey, error) {
	var keys []podds.SeasonKey
	for _, id := range cfg.Leagues {
		for _, s := range cfg.Seasons {
			season, err := podds.ParseSeason(s)
			if err != nil {
				return nil, err
			}
			keys = append(keys, podds.SeasonKey{LeagueID: id, Season: season})
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("no leagues or seasons configured")
	}
	return keys, nil
}

func matchKey(keys []podds.SeasonKey, league int, season string) (podds.SeasonKey, error) {
	key := keys[0]
	if league != 0 {
		key.LeagueID = league
	}
	if season != "" {
		s, err := podds.ParseSeason(season)
		if err != nil {
			return key, err
		}
		key.Season = s
	}
	return key, nil
}

func importFixtures(ctx context.Context, store storage, path string) error {
	if path == "" {
		return errors.New("import needs -file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	fixtures, err := parseFixtures(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := store.SaveFixtures(ctx, fixtures); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("imported %d fixtures from %s", len(fixtures), path))
	return nil
}

// parseFixtures decodes a JSON array of fixtures. Missing goals mean the
// fixture is unplayed
func parseFixtures(data []byte) ([]podds.Fixture, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	fixtures := make([]podds.Fixture, len(raw))
	for i, r := range raw {
		f := podds.Fixture{HomeGoals: -1, AwayGoals: -1}
		if err := json.Unmarshal(r, &f); err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		season, err := podds.ParseSeason(f.Season)
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", f.ID, err)
		}
		f.Season = season
		f.Kickoff = f.Kickoff.UTC()
		if err := f.BeforeSave(); err != nil {
			return nil, err
		}
		fixtures[i] = f
	}
	return fixtures, nil
}

func replay(ctx context.Context, engine *podds.Engine, keys []podds.SeasonKey, out io.Writer) error {
	if err := engine.LoadSeasons(ctx, keys); err != nil {
		return err
	}
	for _, key := range keys {
		state, err := engine.Season(ctx, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", key)
		for _, t := range state.Latest() {
			fmt.Fprintf(out, "%3d %-28s %3d %3d %4d %5s %4d\n",
				t.Position, t.Name, t.Played, t.Points, t.GoalsFor-t.GoalsAgainst, t.Form, t.Rating)
		}
	}
	return nil
}

func predictUpcoming(ctx context.Context, engine *podds.Engine, keys []podds.SeasonKey, from time.Time, out io.Writer) error {
	var all []*podds.FixturePrediction
	for _, key := range keys {
		preds, err := engine.PredictUpcoming(ctx, key, from)
		if err != nil {
			return err
		}
		all = append(all, preds...)
	}
	return writeJSON(out, all)
}

// resolveTeam finds the season's team whose name best matches name
func resolveTeam(teams []*podds.TeamSeason, name string) (*podds.TeamSeason, error) {
	names := make([]string, len(teams))
	for i, t := range teams {
		names[i] = t.Name
	}
	i, score := util.BestMatch(name, names)
	if i < 0 {
		return nil, fmt.Errorf("no team matches %q", name)
	}
	if score < 1 {
		logger.Debug(fmt.Sprintf("resolved %q to %q (%.2f)", name, teams[i].Name, score))
	}
	return teams[i], nil
}

func predictMatch(ctx context.Context, engine *podds.Engine, key podds.SeasonKey, home, away string, out io.Writer) error {
	if home == "" || away == "" {
		return errors.New("predict needs both -home and -away")
	}
	state, err := engine.Season(ctx, key)
	if err != nil {
		return err
	}
	teams := state.Latest()
	h, err := resolveTeam(teams, home)
	if err != nil {
		return err
	}
	a, err := resolveTeam(teams, away)
	if err != nil {
		return err
	}
	if h.TeamID == a.TeamID {
		return fmt.Errorf("%q and %q are the same team", home, away)
	}
	pred, err := engine.Predict(ctx, podds.PredictionRequest{
		LeagueID: key.LeagueID,
		Season:   key.Season,
		HomeID:   h.TeamID,
		AwayID:   a.TeamID,
		HomeName: h.Name,
		AwayName: a.Name,
		Kickoff:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return writeJSON(out, pred)
}

// manualResult scores one prediction by id, for ad hoc predictions that
// have no stored fixture
type manualResult struct {
	predictionID string
	homeGoals    int
	awayGoals    int
}

func parseManualResult(id, score string) (*manualResult, error) {
	if id == "" || score == "" {
		return nil, errors.New("learn needs both -prediction and -score")
	}
	var h, a int
	if n, err := fmt.Sscanf(score, "%d-%d", &h, &a); err != nil || n != 2 {
		return nil, fmt.Errorf("invalid score %q, want home-away such as 2-1", score)
	}
	if h < 0 || a < 0 {
		return nil, fmt.Errorf("invalid score %q, goals cannot be negative", score)
	}
	return &manualResult{predictionID: id, homeGoals: h, awayGoals: a}, nil
}

// learn scores the latest prediction of every completed fixture that has
// not been scored yet, plus the manual result when one is given
func learn(ctx context.Context, engine *podds.Engine, store storage, keys []podds.SeasonKey, manual *manualResult, out io.Writer) error {
	existing, err := store.LearningRecords(ctx)
	if err != nil {
		return err
	}
	scored := make(map[string]bool, len(existing))
	for _, r := range existing {
		scored[r.PredictionID] = true
	}

	added := 0
	if manual != nil {
		if scored[manual.predictionID] {
			return fmt.Errorf("prediction %s has already been scored", manual.predictionID)
		}
		pred, err := store.Prediction(ctx, manual.predictionID)
		if err != nil {
			return err
		}
		engine.Learn(ctx, pred, manual.homeGoals, manual.awayGoals)
		scored[pred.ID] = true
		added++
	}
	for _, key := range keys {
		fixtures, err := store.Fixtures(ctx, key.LeagueID, key.Season)
		if err != nil {
			return err
		}
		for _, f := range fixtures {
			if !f.IsComplete() {
				continue
			}
			pred, err := store.LatestPrediction(ctx, f.ID)
			if errors.Is(err, podds.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if scored[pred.ID] || pred.CreatedAt.After(f.Kickoff) {
				continue
			}
			engine.Learn(ctx, pred, f.HomeGoals, f.AwayGoals)
			scored[pred.ID] = true
			added++
		}
	}
	logger.Info(fmt.Sprintf("scored %d new predictions", added))

	bias, err := engine.Calibrate(ctx, store)
	if err != nil {
		return err
	}
	records, err := store.LearningRecords(ctx)
	if err != nil {
		return err
	}
	predictions, err := store.Predictions(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"accuracy": podds.Summarize(records, predictions),
		"bias":     bias,
	})
}

func backtest(ctx context.Context, engine *podds.Engine, keys []podds.SeasonKey, out io.Writer) error {
	results := make(map[string]podds.Accuracy, len(keys))
	for _, key := range keys {
		acc, _, err := engine.Backtest(ctx, key)
		if err != nil {
			return err
		}
		results[key.String()] = acc
	}
	return writeJSON(out, results)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
