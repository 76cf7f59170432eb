package podds

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseSeason normalises a season to YYYY/YYYY. It accepts YYYY/YYYY,
// YYYY-YYYY, YYYY/YY, YYYY-YY and league-encoded forms such as 472324
func ParseSeason(season string) (string, error) {
	ss := strings.TrimSpace(season)
	if ss == "" {
		return "", fmt.Errorf("must pass a season")
	}
	if len(ss) == 9 && (ss[4] == '-' || ss[4] == '/') {
		return checkSeason(ss[:4], ss[5:])
	}
	// short form YYYY/YY, the missing century is taken from the first year
	if len(ss) == 7 && (ss[4] == '-' || ss[4] == '/') {
		return checkSeason(ss[:4], ss[:2]+ss[5:])
	}
	// league encoded: the last four digits are two consecutive two digit years
	if len(ss) > 4 && isDigits(ss) {
		tail := ss[len(ss)-4:]
		return checkSeason("20"+tail[:2], "20"+tail[2:])
	}
	return "", fmt.Errorf("invalid season format: %s", ss)
}

func checkSeason(first, second string) (string, error) {
	a, err := strconv.Atoi(first)
	if err != nil {
		return "", fmt.Errorf("invalid season year %q: %w", first, err)
	}
	b, err := strconv.Atoi(second)
	if err != nil {
		return "", fmt.Errorf("invalid season year %q: %w", second, err)
	}
	if b != a+1 {
		return "", fmt.Errorf("season years must be consecutive, got %d/%d", a, b)
	}
	return fmt.Sprintf("%d/%d", a, b), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ratingPoint is a team's rating after a fixture
type ratingPoint struct {
	kickoff time.Time
	rating  int
}

// SeasonState is a replayed season: its fixture arena plus the rating
// history needed to rebuild any team's record as of a given time
type SeasonState struct {
	Key      SeasonKey
	Arena    *FixtureArena
	Changes  []RatingChange
	cfg      *PoddsConfig
	history  map[int][]ratingPoint
	fixtures map[int]int // fixtures per team over the whole season
}

func newSeasonState(key SeasonKey, arena *FixtureArena, cfg *PoddsConfig) *SeasonState {
	s := &SeasonState{
		Key:      key,
		Arena:    arena,
		cfg:      cfg,
		history:  make(map[int][]ratingPoint),
		fixtures: make(map[int]int),
	}
	for f := range arena.All() {
		s.fixtures[f.HomeID]++
		s.fixtures[f.AwayID]++
	}
	return s
}

// observe records a replayed change, it is called in replay order
func (s *SeasonState) observe(f Fixture, c RatingChange) {
	s.Changes = append(s.Changes, c)
	s.history[f.HomeID] = append(s.history[f.HomeID], ratingPoint{f.Kickoff, c.HomeBefore + c.Delta})
	s.history[f.AwayID] = append(s.history[f.AwayID], ratingPoint{f.Kickoff, c.AwayBefore - c.Delta})
}

// RatingAt is the team's rating from fixtures strictly before the given time
func (s *SeasonState) RatingAt(teamID int, before time.Time) int {
	points := s.history[teamID]
	i := sort.Search(len(points), func(i int) bool { return !points[i].kickoff.Before(before) })
	if i == 0 {
		return s.cfg.RatingBaseline
	}
	return points[i-1].rating
}

// Table builds every team's record from completed fixtures strictly before
// the given time, ordered by league position
func (s *SeasonState) Table(before time.Time) []*TeamSeason {
	records := make(map[int]*TeamSeason)
	for _, id := range s.Arena.Teams() {
		records[id] = NewTeamSeason(id, s.Key, s.Arena.TeamName(id), s.cfg.RatingBaseline)
	}
	for f := range s.Arena.Completed() {
		if !f.Kickoff.Before(before) {
			break
		}
		records[f.HomeID].addResult(f.HomeGoals, f.AwayGoals)
		records[f.AwayID].addResult(f.AwayGoals, f.HomeGoals)
	}

	table := make([]*TeamSeason, 0, len(records))
	for id, r := range records {
		r.Rating = s.RatingAt(id, before)
		r.FormPoints5 = FormPoints(s.Arena, id, before, s.cfg.FormWindowShort)
		r.FormPoints10 = FormPoints(s.Arena, id, before, s.cfg.FormWindowLong)
		r.Form = FormString(s.Arena, id, before, s.cfg.FormWindowShort)
		r.Volatility = Volatility(s.Arena, id, before, s.cfg.VolatilityWindow, s.cfg.MinVolatilitySample)
		r.AsOf = before
		table = append(table, r)
	}
	slices.SortFunc(table, compareStanding)
	s.applyContext(table)
	return table
}

// compareStanding orders by points, goal difference, goals scored then team id
func compareStanding(a, b *TeamSeason) int {
	if c := cmp.Compare(b.Points, a.Points); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GoalDifference(), a.GoalDifference()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.GoalsFor, a.GoalsFor); c != 0 {
		return c
	}
	return cmp.Compare(a.TeamID, b.TeamID)
}

// applyContext sets positions, distances and the motivation and pressure
// scores. Both come from the table alone: a title race or relegation fight
// raises them, a team with nothing to play for loses some. The effect grows
// with the share of the season played
func (s *SeasonState) applyContext(table []*TeamSeason) {
	if len(table) == 0 {
		return
	}
	top := table[0].Points
	dropIndex := len(table) - s.cfg.RelegationPlaces
	dropPoints := 0
	if dropIndex >= 0 && dropIndex < len(table) {
		dropPoints = table[dropIndex].Points
	}

	for i, t := range table {
		t.Position = i + 1
		t.DistanceToTop = top - t.Points
		t.DistanceToDrop = t.Points - dropPoints
		if dropIndex >= 0 && i >= dropIndex {
			t.DistanceToDrop = t.Points - table[max(dropIndex-1, 0)].Points
		}

		t.MotivationScore = neutralMotivation
		t.PressureScore = neutralMotivation
		total := s.fixtures[t.TeamID]
		if t.Played == 0 || total == 0 {
			continue
		}
		progress := float64(t.Played) / float64(total)

		titleRace := t.DistanceToTop <= s.cfg.TitleRaceGap
		dropFight := s.cfg.RelegationPlaces > 0 && t.DistanceToDrop <= s.cfg.RelegationGap
		bonus := 0.0
		switch {
		case titleRace && dropFight:
			bonus = max(s.cfg.TitleRaceBonus, s.cfg.RelegationBonus)
		case titleRace:
			bonus = s.cfg.TitleRaceBonus
		case dropFight:
			bonus = s.cfg.RelegationBonus
		case t.DistanceToTop > s.cfg.NothingToPlayForGap && t.DistanceToDrop > s.cfg.NothingToPlayForGap:
			bonus = s.cfg.NothingToPlayFor
		}
		t.MotivationScore = clamp(neutralMotivation+bonus*progress, 0, 100)
		t.PressureScore = clamp(neutralMotivation+(t.MotivationScore-neutralMotivation)*(1+progress), 0, 100)
	}
}

// TeamRecord is the team's record as of the given time. A team never seen
// in the season gets a cold-start record
func (s *SeasonState) TeamRecord(teamID int, before time.Time) *TeamSeason {
	for _, t := range s.Table(before) {
		if t.TeamID == teamID {
			return t
		}
	}
	return NewTeamSeason(teamID, s.Key, "", s.cfg.RatingBaseline)
}

// Latest is the table after every completed fixture
func (s *SeasonState) Latest() []*TeamSeason {
	last := time.Time{}
	for f := range s.Arena.Completed() {
		last = f.Kickoff
	}
	return s.Table(last.Add(time.Nanosecond))
}
