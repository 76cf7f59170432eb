package podds

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var seasonStart = time.Date(2024, 8, 10, 15, 0, 0, 0, time.UTC)

func testConfig() *PoddsConfig {
	cfg := DefaultPoddsConfig()
	cfg.DbPath = ":memory:"
	cfg.Workers = 2
	return cfg
}

func intPtr(v int) *int { return &v }

// played builds a completed league 47 fixture kicking off day days into the season
func played(id, homeID, awayID, homeGoals, awayGoals, day int) Fixture {
	f := NewFixture(id, 47, "2024/2025", seasonStart.AddDate(0, 0, day), homeID, awayID)
	f.HomeName = fmt.Sprintf("Team %d", homeID)
	f.AwayName = fmt.Sprintf("Team %d", awayID)
	f.HomeGoals = homeGoals
	f.AwayGoals = awayGoals
	f.Status = StatusComplete
	return *f
}

// scheduled builds an unplayed fixture
func scheduled(id, homeID, awayID, day int) Fixture {
	f := NewFixture(id, 47, "2024/2025", seasonStart.AddDate(0, 0, day), homeID, awayID)
	f.HomeName = fmt.Sprintf("Team %d", homeID)
	f.AwayName = fmt.Sprintf("Team %d", awayID)
	return *f
}

// memorySource serves fixtures from a slice
type memorySource struct {
	mu       sync.Mutex
	fixtures []Fixture
	reads    int
}

func (m *memorySource) Fixtures(_ context.Context, leagueID int, season string) ([]Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	var out []Fixture
	for _, f := range m.fixtures {
		if f.LeagueID == leagueID && f.Season == season {
			out = append(out, f)
		}
	}
	return out, nil
}

// memorySink records what the engine saves
type memorySink struct {
	mu          sync.Mutex
	predictions []*FixturePrediction
	records     []*LearningRecord
	err         error
}

func (m *memorySink) SavePrediction(_ context.Context, p *FixturePrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.predictions = append(m.predictions, p)
	return nil
}

func (m *memorySink) SaveLearningRecord(_ context.Context, r *LearningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memorySink) LearningRecords(context.Context) ([]*LearningRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

// stepClock advances instantly when slept on
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

// roundRobin is a small four team season, every side meets every other once
// at home. Team 1 wins everything, team 4 loses everything
func roundRobin() []Fixture {
	return []Fixture{
		played(1, 1, 2, 2, 0, 0),
		played(2, 3, 4, 1, 0, 0),
		played(3, 2, 3, 1, 1, 7),
		played(4, 4, 1, 0, 3, 7),
		played(5, 1, 3, 2, 1, 14),
		played(6, 2, 4, 2, 0, 14),
		played(7, 3, 1, 0, 1, 21),
		played(8, 4, 2, 1, 2, 21),
		played(9, 1, 4, 4, 0, 28),
		played(10, 3, 2, 0, 0, 28),
		played(11, 2, 1, 0, 1, 35),
		played(12, 4, 3, 0, 2, 35),
		scheduled(13, 1, 2, 42),
		scheduled(14, 3, 4, 42),
	}
}
