package podds

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	elogo "github.com/kortemy/elo-go"
)

// ErrOutOfOrder is returned when a fixture older than the last applied one
// is fed to a season's ratings
var ErrOutOfOrder = errors.New("fixture applied out of chronological order")

// eloDivisor is the classic 400 point logistic scale
const eloDivisor = 400

// SeasonKey identifies one competition edition
type SeasonKey struct {
	LeagueID int
	Season   string
}

func (k SeasonKey) String() string {
	return fmt.Sprintf("%d:%s", k.LeagueID, k.Season)
}

// RatingChange records a single zero-sum exchange
type RatingChange struct {
	FixtureID    int     `json:"fixtureId"`
	HomeID       int     `json:"homeId"`
	AwayID       int     `json:"awayId"`
	HomeBefore   int     `json:"homeBefore"`
	AwayBefore   int     `json:"awayBefore"`
	ExpectedHome float64 `json:"expectedHome"`
	Delta        int     `json:"delta"` // added to home, subtracted from away
}

// seasonRatings is one season's ratings. The mutex makes it a single
// writer resource; different seasons never share one
type seasonRatings struct {
	mu          sync.Mutex
	ratings     map[int]int
	lastKickoff time.Time
	lastID      int
	applied     int
}

// RatingStore holds one rating per (team, season)
type RatingStore struct {
	baseline int
	elo      *elogo.Elo

	mu      sync.Mutex
	seasons map[SeasonKey]*seasonRatings
}

// NewRatingStore creates a store where every first sighting starts at baseline
func NewRatingStore(baseline int) *RatingStore {
	return &RatingStore{
		baseline: baseline,
		elo:      elogo.NewEloWithFactors(32, eloDivisor),
		seasons:  make(map[SeasonKey]*seasonRatings),
	}
}

func (s *RatingStore) season(key SeasonKey) *seasonRatings {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.seasons[key]
	if !ok {
		sr = &seasonRatings{ratings: make(map[int]int)}
		s.seasons[key] = sr
	}
	return sr
}

// initialize sets the baseline on first sighting, callers hold sr.mu
func (s *RatingStore) initialize(sr *seasonRatings, teamID int) int {
	r, ok := sr.ratings[teamID]
	if !ok {
		r = s.baseline
		sr.ratings[teamID] = r
	}
	return r
}

// Initialize returns the team's rating, silently starting it at the
// baseline the first time the team is seen in the season
func (s *RatingStore) Initialize(key SeasonKey, teamID int) int {
	sr := s.season(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return s.initialize(sr, teamID)
}

// Rating is an alias of Initialize for readers, a cold-start team reads as the baseline
func (s *RatingStore) Rating(key SeasonKey, teamID int) int {
	return s.Initialize(key, teamID)
}

// ExpectedHome is the home side's expected score given a home advantage in rating points
func (s *RatingStore) ExpectedHome(homeRating, awayRating int, homeAdvantage float64) float64 {
	adv := int(math.Round(homeAdvantage))
	return s.elo.ExpectedScoreWithFactors(homeRating+adv, awayRating, eloDivisor)
}

// ApplyResult exchanges rating points between the two sides without any
// ordering check. Replay should go through ApplyFixture
func (s *RatingStore) ApplyResult(key SeasonKey, homeID, awayID, homeGoals, awayGoals int, homeAdvantage, kFactor float64) RatingChange {
	sr := s.season(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return s.apply(sr, 0, homeID, awayID, homeGoals, awayGoals, homeAdvantage, kFactor)
}

func (s *RatingStore) apply(sr *seasonRatings, fixtureID, homeID, awayID, homeGoals, awayGoals int, homeAdvantage, kFactor float64) RatingChange {
	home := s.initialize(sr, homeID)
	away := s.initialize(sr, awayID)

	expected := s.ExpectedHome(home, away, homeAdvantage)
	actual := 0.5
	switch {
	case homeGoals > awayGoals:
		actual = 1
	case homeGoals < awayGoals:
		actual = 0
	}
	delta := int(math.Round(kFactor * (actual - expected)))

	sr.ratings[homeID] = home + delta
	sr.ratings[awayID] = away - delta
	sr.applied++

	return RatingChange{
		FixtureID:    fixtureID,
		HomeID:       homeID,
		AwayID:       awayID,
		HomeBefore:   home,
		AwayBefore:   away,
		ExpectedHome: expected,
		Delta:        delta,
	}
}

// ApplyFixture applies a completed fixture, rejecting it when it is older
// than the last fixture applied to the season
func (s *RatingStore) ApplyFixture(key SeasonKey, f Fixture, homeAdvantage, kFactor float64) (RatingChange, error) {
	if !f.IsComplete() {
		return RatingChange{}, fmt.Errorf("fixture %d has no result", f.ID)
	}
	sr := s.season(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return s.applyOrdered(sr, f, homeAdvantage, kFactor)
}

func (s *RatingStore) applyOrdered(sr *seasonRatings, f Fixture, homeAdvantage, kFactor float64) (RatingChange, error) {
	if sr.applied > 0 {
		last := Fixture{ID: sr.lastID, Kickoff: sr.lastKickoff}
		if compareFixtures(&f, &last) <= 0 {
			return RatingChange{}, fmt.Errorf("fixture %d at %s: %w", f.ID, f.Kickoff.Format(time.RFC3339), ErrOutOfOrder)
		}
	}
	change := s.apply(sr, f.ID, f.HomeID, f.AwayID, f.HomeGoals, f.AwayGoals, homeAdvantage, kFactor)
	sr.lastKickoff = f.Kickoff
	sr.lastID = f.ID
	return change, nil
}

// Replay applies every completed fixture of the arena in order while holding
// the season lock, so no reader sees a half replayed season. Fixtures already
// applied by an earlier replay must not be fed again
func (s *RatingStore) Replay(key SeasonKey, arena *FixtureArena, homeAdvantage, kFactor float64, observe func(Fixture, RatingChange)) error {
	sr := s.season(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()

	for f := range arena.All() {
		// every participant gets a rating, even before their first result
		s.initialize(sr, f.HomeID)
		s.initialize(sr, f.AwayID)
	}
	for f := range arena.Completed() {
		change, err := s.applyOrdered(sr, f, homeAdvantage, kFactor)
		if err != nil {
			return err
		}
		if observe != nil {
			observe(f, change)
		}
	}
	return nil
}

// Snapshot copies the season's ratings
func (s *RatingStore) Snapshot(key SeasonKey) map[int]int {
	sr := s.season(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return maps.Clone(sr.ratings)
}

// Applied is the number of results applied to the season
func (s *RatingStore) Applied(key SeasonKey) int {
	sr := s.season(key)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.applied
}

// Forget drops a season so it can be replayed from scratch
func (s *RatingStore) Forget(key SeasonKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seasons, key)
}
