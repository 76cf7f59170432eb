package podds

import (
	"cmp"
	"iter"
	"slices"
	"time"
)

// Fixture statuses
const (
	StatusScheduled = "scheduled"
	StatusComplete  = "complete"
	StatusPostponed = "postponed"
)

// Compile-time check to ensure Fixture implements Persistable interface
var _ Persistable = (*Fixture)(nil)

// Fixture is a single match. Once complete it is an immutable historical fact.
// Goals are -1 while the fixture is unplayed
type Fixture struct {
	ID        int       `json:"id" column:"id" dbtype:"INTEGER" primary:"true"`
	LeagueID  int       `json:"leagueId" column:"league_id" dbtype:"INTEGER" index:"true"`
	Season    string    `json:"season" column:"season" dbtype:"TEXT" index:"true"`
	Round     int       `json:"round,omitempty" column:"round" dbtype:"INTEGER"`
	Kickoff   time.Time `json:"kickoff" column:"kickoff" dbtype:"INTEGER" encode:"unix" index:"true"`
	HomeID    int       `json:"homeId" column:"home_id" dbtype:"INTEGER" index:"true"`
	AwayID    int       `json:"awayId" column:"away_id" dbtype:"INTEGER" index:"true"`
	HomeName  string    `json:"homeName" column:"home_name" dbtype:"TEXT"`
	AwayName  string    `json:"awayName" column:"away_name" dbtype:"TEXT"`
	HomeGoals int       `json:"homeGoals" column:"home_goals" dbtype:"INTEGER DEFAULT -1"`
	AwayGoals int       `json:"awayGoals" column:"away_goals" dbtype:"INTEGER DEFAULT -1"`
	Status    string    `json:"status" column:"status" dbtype:"TEXT"`
}

// NewFixture creates an unplayed fixture
func NewFixture(id, leagueID int, season string, kickoff time.Time, homeID, awayID int) *Fixture {
	return &Fixture{
		ID:        id,
		LeagueID:  leagueID,
		Season:    season,
		Kickoff:   kickoff,
		HomeID:    homeID,
		AwayID:    awayID,
		HomeGoals: -1,
		AwayGoals: -1,
		Status:    StatusScheduled,
	}
}

func (f *Fixture) GetTableName() string { return "fixture" }

func (f *Fixture) GetPrimaryKey() map[string]any {
	return map[string]any{"id": f.ID}
}

// BeforeSave normalises the status from the score
func (f *Fixture) BeforeSave() error {
	if f.Status == "" {
		f.Status = StatusScheduled
		if f.IsComplete() {
			f.Status = StatusComplete
		}
	}
	return nil
}

func (f *Fixture) AfterSave() error { return nil }

// IsComplete reports whether the fixture has a final score
func (f *Fixture) IsComplete() bool {
	return f.HomeGoals >= 0 && f.AwayGoals >= 0 && f.Status != StatusPostponed
}

// Involves reports whether the team plays in the fixture
func (f *Fixture) Involves(teamID int) bool {
	return f.HomeID == teamID || f.AwayID == teamID
}

// GoalsFor returns (scored, conceded) from the team's point of view
func (f *Fixture) GoalsFor(teamID int) (int, int) {
	if f.HomeID == teamID {
		return f.HomeGoals, f.AwayGoals
	}
	return f.AwayGoals, f.HomeGoals
}

// PointsFor returns the 3/1/0 league points earned by the team
func (f *Fixture) PointsFor(teamID int) int {
	scored, conceded := f.GoalsFor(teamID)
	switch {
	case scored > conceded:
		return 3
	case scored == conceded:
		return 1
	default:
		return 0
	}
}

// compareFixtures orders by kickoff then fixture id so replay is reproducible
func compareFixtures(a, b *Fixture) int {
	if c := a.Kickoff.Compare(b.Kickoff); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// FixtureArena owns a season's fixtures in replay order and hands them out
// through ordered iterators
type FixtureArena struct {
	fixtures []Fixture
	byTeam   map[int][]int
	byID     map[int]int
}

// NewFixtureArena copies and orders the fixtures
func NewFixtureArena(fixtures []Fixture) *FixtureArena {
	a := &FixtureArena{
		fixtures: slices.Clone(fixtures),
		byTeam:   make(map[int][]int),
		byID:     make(map[int]int, len(fixtures)),
	}
	slices.SortFunc(a.fixtures, func(x, y Fixture) int { return compareFixtures(&x, &y) })
	for i := range a.fixtures {
		f := &a.fixtures[i]
		a.byID[f.ID] = i
		a.byTeam[f.HomeID] = append(a.byTeam[f.HomeID], i)
		a.byTeam[f.AwayID] = append(a.byTeam[f.AwayID], i)
	}
	return a
}

func (a *FixtureArena) Len() int { return len(a.fixtures) }

// Get returns a fixture by id
func (a *FixtureArena) Get(id int) (Fixture, bool) {
	i, ok := a.byID[id]
	if !ok {
		return Fixture{}, false
	}
	return a.fixtures[i], true
}

// All yields every fixture in (kickoff, id) order
func (a *FixtureArena) All() iter.Seq[Fixture] {
	return func(yield func(Fixture) bool) {
		for _, f := range a.fixtures {
			if !yield(f) {
				return
			}
		}
	}
}

// Completed yields completed fixtures in (kickoff, id) order
func (a *FixtureArena) Completed() iter.Seq[Fixture] {
	return func(yield func(Fixture) bool) {
		for _, f := range a.fixtures {
			if f.IsComplete() && !yield(f) {
				return
			}
		}
	}
}

// CompletedBefore yields the team's completed fixtures kicking off strictly
// before the given time, most recent first
func (a *FixtureArena) CompletedBefore(teamID int, before time.Time) iter.Seq[Fixture] {
	return func(yield func(Fixture) bool) {
		idx := a.byTeam[teamID]
		for i := len(idx) - 1; i >= 0; i-- {
			f := a.fixtures[idx[i]]
			if !f.Kickoff.Before(before) || !f.IsComplete() {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Recent returns at most n of the team's completed fixtures before the given time, most recent first
func (a *FixtureArena) Recent(teamID int, before time.Time, n int) []Fixture {
	out := make([]Fixture, 0, n)
	if n <= 0 {
		return out
	}
	for f := range a.CompletedBefore(teamID, before) {
		out = append(out, f)
		if len(out) == n {
			break
		}
	}
	return out
}

// Upcoming returns the unplayed fixtures at or after the given time in kickoff order
func (a *FixtureArena) Upcoming(from time.Time) []Fixture {
	var out []Fixture
	for f := range a.All() {
		if !f.IsComplete() && f.Status != StatusPostponed && !f.Kickoff.Before(from) {
			out = append(out, f)
		}
	}
	return out
}

// Teams returns the ids of every team in the arena in ascending order
func (a *FixtureArena) Teams() []int {
	ids := make([]int, 0, len(a.byTeam))
	for id := range a.byTeam {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// TeamName finds a display name for the team
func (a *FixtureArena) TeamName(teamID int) string {
	for _, i := range a.byTeam[teamID] {
		f := a.fixtures[i]
		if f.HomeID == teamID && f.HomeName != "" {
			return f.HomeName
		}
		if f.AwayID == teamID && f.AwayName != "" {
			return f.AwayName
		}
	}
	return ""
}
