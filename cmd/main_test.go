package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richard-senior/podds/pkg/podds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturesJSON = `[
  {"id": 1, "leagueId": 47, "season": "2024-25", "kickoff": "2024-08-10T15:00:00Z", "homeId": 1, "awayId": 2, "homeName": "Arsenal", "awayName": "Chelsea", "homeGoals": 2, "awayGoals": 0},
  {"id": 2, "leagueId": 47, "season": "2024-25", "kickoff": "2024-08-17T15:00:00Z", "homeId": 2, "awayId": 3, "homeName": "Chelsea", "awayName": "Fulham", "homeGoals": 1, "awayGoals": 1},
  {"id": 3, "leagueId": 47, "season": "2024-25", "kickoff": "2024-08-24T15:00:00Z", "homeId": 3, "awayId": 1, "homeName": "Fulham", "awayName": "Arsenal", "homeGoals": 0, "awayGoals": 3},
  {"id": 4, "leagueId": 47, "season": "2024-25", "kickoff": "2024-09-30T19:45:00Z", "homeId": 2, "awayId": 1, "homeName": "Chelsea", "awayName": "Arsenal"}
]`

func writeWorkspace(t *testing.T, extra ...string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "podds.yaml")
	cfg := "db_path: " + filepath.Join(dir, "podds.db") + "\nleagues: [47]\nseasons: [\"2024/2025\"]\nworkers: 2\n"
	for _, line := range extra {
		cfg += line + "\n"
	}
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	fixPath := filepath.Join(dir, "fixtures.json")
	require.NoError(t, os.WriteFile(fixPath, []byte(fixturesJSON), 0o644))
	return cfgPath, fixPath
}

func TestParseFixtures(t *testing.T) {
	fixtures, err := parseFixtures([]byte(fixturesJSON))
	require.NoError(t, err)
	require.Len(t, fixtures, 4)

	assert.Equal(t, "2024/2025", fixtures[0].Season)
	assert.True(t, fixtures[0].IsComplete())
	assert.Equal(t, podds.StatusComplete, fixtures[0].Status)

	assert.Equal(t, -1, fixtures[3].HomeGoals)
	assert.False(t, fixtures[3].IsComplete())
	assert.Equal(t, podds.StatusScheduled, fixtures[3].Status)

	_, err = parseFixtures([]byte(`[{"id": 1, "season": "2024"}]`))
	assert.Error(t, err)
}

func TestSeasonKeys(t *testing.T) {
	cfg := podds.DefaultPoddsConfig()
	cfg.Leagues = []int{47, 48}
	cfg.Seasons = []string{"2023-24", "2024/2025"}
	keys, err := seasonKeys(cfg)
	require.NoError(t, err)
	assert.Equal(t, []podds.SeasonKey{
		{LeagueID: 47, Season: "2023/2024"}, {LeagueID: 47, Season: "2024/2025"},
		{LeagueID: 48, Season: "2023/2024"}, {LeagueID: 48, Season: "2024/2025"},
	}, keys)

	cfg.Leagues = nil
	_, err = seasonKeys(cfg)
	assert.Error(t, err)
}

func TestMatchKey(t *testing.T) {
	keys := []podds.SeasonKey{{LeagueID: 47, Season: "2024/2025"}}

	key, err := matchKey(keys, 0, "")
	require.NoError(t, err)
	assert.Equal(t, keys[0], key)

	key, err = matchKey(keys, 48, "2023-24")
	require.NoError(t, err)
	assert.Equal(t, podds.SeasonKey{LeagueID: 48, Season: "2023/2024"}, key)

	_, err = matchKey(keys, 0, "last year")
	assert.Error(t, err)
}

func TestResolveTeam(t *testing.T) {
	teams := []*podds.TeamSeason{
		{TeamID: 1, Name: "Manchester United"},
		{TeamID: 2, Name: "Manchester City"},
		{TeamID: 3, Name: "Newcastle United"},
	}
	team, err := resolveTeam(teams, "man city")
	require.NoError(t, err)
	assert.Equal(t, 2, team.TeamID)

	_, err = resolveTeam(teams, "Real Madrid")
	assert.Error(t, err)
}

func TestRunCommands(t *testing.T) {
	ctx := context.Background()
	cfgPath, fixPath := writeWorkspace(t)

	var out bytes.Buffer
	require.NoError(t, run(ctx, "import", []string{"-config", cfgPath, "-file", fixPath}, &out))

	out.Reset()
	require.NoError(t, run(ctx, "replay", []string{"-config", cfgPath}, &out))
	assert.Contains(t, out.String(), "47:2024/2025")
	assert.Contains(t, out.String(), "Arsenal")

	out.Reset()
	require.NoError(t, run(ctx, "predict", []string{"-config", cfgPath, "-from", "2024-09-01"}, &out))
	var upcoming []*podds.FixturePrediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &upcoming))
	require.Len(t, upcoming, 1)
	assert.Equal(t, 4, upcoming[0].FixtureID)
	assert.Equal(t, "Chelsea", upcoming[0].HomeName)

	out.Reset()
	require.NoError(t, run(ctx, "predict", []string{"-config", cfgPath, "-home", "arsenal", "-away", "Fulham FC"}, &out))
	var match podds.FixturePrediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &match))
	assert.Equal(t, "Arsenal", match.HomeName)
	assert.Equal(t, "Fulham", match.AwayName)
	assert.InDelta(t, 1.0, match.Markets.HomeWin+match.Markets.Draw+match.Markets.AwayWin, 1e-6)

	out.Reset()
	require.NoError(t, run(ctx, "learn", []string{"-config", cfgPath}, &out))
	assert.Contains(t, out.String(), "accuracy")

	out.Reset()
	require.NoError(t, run(ctx, "backtest", []string{"-config", cfgPath}, &out))
	var backtest map[string]podds.Accuracy
	require.NoError(t, json.Unmarshal(out.Bytes(), &backtest))
	assert.Equal(t, 3, backtest["47:2024/2025"].Count)
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	cfgPath, _ := writeWorkspace(t)
	err := run(context.Background(), "explode", []string{"-config", cfgPath}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown command")
}

func TestPredictAppliesLearnedBias(t *testing.T) {
	ctx := context.Background()
	cfgPath, fixPath := writeWorkspace(t, "learning_enabled: true", "min_learning_sample: 3")
	require.NoError(t, run(ctx, "import", []string{"-config", cfgPath, "-file", fixPath}, &bytes.Buffer{}))

	cfg, err := podds.LoadConfig(cfgPath)
	require.NoError(t, err)
	store, err := podds.OpenStore(ctx, cfg.DbPath)
	require.NoError(t, err)
	for i, id := range []string{"rec-1", "rec-2", "rec-3"} {
		require.NoError(t, store.SaveLearningRecord(ctx, &podds.LearningRecord{
			ID: id, PredictionID: "old-" + id, FixtureID: i + 1,
			CreatedAt: time.Date(2024, 9, 1+i, 18, 0, 0, 0, time.UTC),
			HomeGoals: 3, AwayGoals: 1, ActualResult: podds.ResultHome, PredictedHomeWin: 0.4, ExpectedTotal: 2.5,
		}))
	}
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, run(ctx, "predict", []string{"-config", cfgPath, "-home", "arsenal", "-away", "chelsea"}, &out))
	var pred podds.FixturePrediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &pred))

	assert.Equal(t, 3, pred.Bias.Sample)
	assert.Greater(t, pred.Bias.HomeAdvantageShift, 0.0)
	assert.Contains(t, pred.KeyFactors, "learned bias from 3 results")
}

func TestParseManualResult(t *testing.T) {
	m, err := parseManualResult("pred-1", "2-1")
	require.NoError(t, err)
	assert.Equal(t, &manualResult{predictionID: "pred-1", homeGoals: 2, awayGoals: 1}, m)

	for _, tt := range []struct{ id, score string }{
		{"", "2-1"}, {"pred-1", ""}, {"pred-1", "two-one"}, {"pred-1", "-1-2"},
	} {
		_, err := parseManualResult(tt.id, tt.score)
		assert.Error(t, err, tt)
	}
}

func TestLearnScoresAdHocPrediction(t *testing.T) {
	ctx := context.Background()
	cfgPath, fixPath := writeWorkspace(t)
	require.NoError(t, run(ctx, "import", []string{"-config", cfgPath, "-file", fixPath}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, run(ctx, "predict", []string{"-config", cfgPath, "-home", "arsenal", "-away", "fulham"}, &out))
	var pred podds.FixturePrediction
	require.NoError(t, json.Unmarshal(out.Bytes(), &pred))

	out.Reset()
	require.NoError(t, run(ctx, "learn", []string{"-config", cfgPath, "-prediction", pred.ID, "-score", "2-1"}, &out))
	var summary struct {
		Accuracy podds.Accuracy `json:"accuracy"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 1, summary.Accuracy.Count)

	err := run(ctx, "learn", []string{"-config", cfgPath, "-prediction", pred.ID, "-score", "2-1"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "already been scored")

	err = run(ctx, "learn", []string{"-config", cfgPath, "-prediction", "missing", "-score", "0-0"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, podds.ErrRecordNotFound)
}
