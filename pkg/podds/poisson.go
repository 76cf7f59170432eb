package podds

import (
	"math"
	"math/rand"
)

// Simulation methods recorded on a Distribution
const (
	MethodMonteCarlo = "monte-carlo"
	MethodClosedForm = "closed-form"
)

// Simulator turns a lambda pair into a joint score distribution
type Simulator interface {
	Simulate(lambdaHome, lambdaAway float64) *Distribution
}

// NewSimulator builds the configured strategy
func NewSimulator(cfg *PoddsConfig) Simulator {
	if cfg.SimulationStrategy == StrategyClosedForm {
		return NewClosedFormSimulator(cfg)
	}
	return NewMonteCarloSimulator(cfg)
}

// Distribution is the joint (home, away) score grid with the 1X2 triple.
// Grid[i][j] is P(home scores i, away scores j), the last row and column
// absorb anything above the cutoff
type Distribution struct {
	LambdaHome float64     `json:"lambdaHome"`
	LambdaAway float64     `json:"lambdaAway"`
	Grid       [][]float64 `json:"grid"`
	HomeWin    float64     `json:"homeWin"`
	Draw       float64     `json:"draw"`
	AwayWin    float64     `json:"awayWin"`
	Method     string      `json:"method"`
	Samples    int         `json:"samples,omitempty"`

	minOver float64
	maxOver float64
}

func newDistribution(grid [][]float64, lambdaHome, lambdaAway float64, method string, cfg *PoddsConfig) *Distribution {
	d := &Distribution{
		LambdaHome: lambdaHome,
		LambdaAway: lambdaAway,
		Grid:       grid,
		Method:     method,
		minOver:    cfg.MinOver,
		maxOver:    cfg.MaxOver,
	}
	d.HomeWin, d.Draw, d.AwayWin = outcomeProbabilities(grid)
	return d
}

// outcomeProbabilities sums the grid below, on and above the diagonal
func outcomeProbabilities(matrix [][]float64) (homeWin, draw, awayWin float64) {
	for i := range matrix {
		for j := range matrix[i] {
			switch {
			case i > j:
				homeWin += matrix[i][j]
			case i == j:
				draw += matrix[i][j]
			default:
				awayWin += matrix[i][j]
			}
		}
	}
	return homeWin, draw, awayWin
}

// OverRaw is P(total goals > threshold) without clamping
func (d *Distribution) OverRaw(threshold float64) float64 {
	p := 0.0
	for i := range d.Grid {
		for j := range d.Grid[i] {
			if float64(i+j) > threshold {
				p += d.Grid[i][j]
			}
		}
	}
	return p
}

// Over is P(total goals > threshold) clamped away from certainty
func (d *Distribution) Over(threshold float64) float64 {
	return clamp(d.OverRaw(threshold), d.minOver, d.maxOver)
}

// BothTeamsToScore is P(home >= 1 and away >= 1)
func (d *Distribution) BothTeamsToScore() float64 {
	p := 0.0
	for i := 1; i < len(d.Grid); i++ {
		for j := 1; j < len(d.Grid[i]); j++ {
			p += d.Grid[i][j]
		}
	}
	return p
}

// MostLikelyScore is the grid cell with the highest probability, lowest total wins ties
func (d *Distribution) MostLikelyScore() (int, int) {
	bestH, bestA, best := 0, 0, -1.0
	for i := range d.Grid {
		for j := range d.Grid[i] {
			if d.Grid[i][j] > best {
				bestH, bestA, best = i, j, d.Grid[i][j]
			}
		}
	}
	return bestH, bestA
}

// WithDixonColes returns a copy with the low-score dependence correction applied
func (d *Distribution) WithDixonColes(rho float64) *Distribution {
	grid := make([][]float64, len(d.Grid))
	for i := range d.Grid {
		grid[i] = make([]float64, len(d.Grid[i]))
		copy(grid[i], d.Grid[i])
	}
	if len(grid) > 1 && len(grid[0]) > 1 {
		for _, cell := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			grid[cell[0]][cell[1]] *= dixonColesTau(cell[0], cell[1], d.LambdaHome, d.LambdaAway, rho)
		}
	}
	renormalizeMatrix(grid)

	out := *d
	out.Grid = grid
	out.HomeWin, out.Draw, out.AwayWin = outcomeProbabilities(grid)
	return &out
}

// dixonColesTau is the correction factor for the four low scorelines
func dixonColesTau(homeGoals, awayGoals int, lambdaHome, lambdaAway, rho float64) float64 {
	switch {
	case homeGoals == 0 && awayGoals == 0:
		return 1 - lambdaHome*lambdaAway*rho
	case homeGoals == 0 && awayGoals == 1:
		return 1 + lambdaHome*rho
	case homeGoals == 1 && awayGoals == 0:
		return 1 + lambdaAway*rho
	case homeGoals == 1 && awayGoals == 1:
		return 1 - rho
	}
	return 1.0
}

// renormalizeMatrix scales the matrix in place so it sums to 1
func renormalizeMatrix(matrix [][]float64) {
	total := 0.0
	for i := range matrix {
		for j := range matrix[i] {
			total += matrix[i][j]
		}
	}
	if total <= 0 {
		return
	}
	for i := range matrix {
		for j := range matrix[i] {
			matrix[i][j] /= total
		}
	}
}

func newGrid(size int) [][]float64 {
	grid := make([][]float64, size)
	for i := range grid {
		grid[i] = make([]float64, size)
	}
	return grid
}

// MonteCarloSimulator draws independent Poisson goal counts for each side
// and tallies the joint scores
type MonteCarloSimulator struct {
	cfg     *PoddsConfig
	samples int
	cutoff  int
	seed    int64
}

func NewMonteCarloSimulator(cfg *PoddsConfig) *MonteCarloSimulator {
	return &MonteCarloSimulator{
		cfg:     cfg,
		samples: cfg.PoissonSimulations,
		cutoff:  cfg.GoalCutoff,
		seed:    cfg.Seed,
	}
}

// Simulate seeds its own source from the configured seed and the lambdas so
// identical inputs always give identical output, and concurrent calls share nothing
func (s *MonteCarloSimulator) Simulate(lambdaHome, lambdaAway float64) *Distribution {
	lambdaHome = clampGoals(lambdaHome, s.cfg.MinGoals, s.cfg.MaxGoals)
	lambdaAway = clampGoals(lambdaAway, s.cfg.MinGoals, s.cfg.MaxGoals)
	rng := rand.New(rand.NewSource(s.seedFor(lambdaHome, lambdaAway)))

	grid := newGrid(s.cutoff + 1)
	for n := 0; n < s.samples; n++ {
		h := min(poissonRandom(lambdaHome, rng), s.cutoff)
		a := min(poissonRandom(lambdaAway, rng), s.cutoff)
		grid[h][a]++
	}
	for i := range grid {
		for j := range grid[i] {
			grid[i][j] /= float64(s.samples)
		}
	}

	d := newDistribution(grid, lambdaHome, lambdaAway, MethodMonteCarlo, s.cfg)
	d.Samples = s.samples
	return d
}

func (s *MonteCarloSimulator) seedFor(lambdaHome, lambdaAway float64) int64 {
	h := math.Float64bits(lambdaHome)*0x9E3779B97F4A7C15 ^ math.Float64bits(lambdaAway)
	return s.seed ^ int64(h)
}

// poissonRandom generates a Poisson distributed random number
func poissonRandom(lambda float64, rng *rand.Rand) int {
	if lambda < 30 {
		// Knuth's algorithm for small lambda
		L := math.Exp(-lambda)
		k := 0
		p := 1.0
		for p > L {
			k++
			p *= rng.Float64()
		}
		return k - 1
	}
	// normal approximation for large lambda
	normal := rng.NormFloat64()
	return max(0, int(math.Round(lambda+math.Sqrt(lambda)*normal)))
}

// ClosedFormSimulator sums the Poisson mass function over the score grid
type ClosedFormSimulator struct {
	cfg    *PoddsConfig
	cutoff int
}

func NewClosedFormSimulator(cfg *PoddsConfig) *ClosedFormSimulator {
	return &ClosedFormSimulator{cfg: cfg, cutoff: cfg.GoalCutoff}
}

func (s *ClosedFormSimulator) Simulate(lambdaHome, lambdaAway float64) *Distribution {
	lambdaHome = clampGoals(lambdaHome, s.cfg.MinGoals, s.cfg.MaxGoals)
	lambdaAway = clampGoals(lambdaAway, s.cfg.MinGoals, s.cfg.MaxGoals)

	home := poissonMarginal(lambdaHome, s.cutoff)
	away := poissonMarginal(lambdaAway, s.cutoff)
	grid := newGrid(s.cutoff + 1)
	for i := range home {
		for j := range away {
			grid[i][j] = home[i] * away[j]
		}
	}
	return newDistribution(grid, lambdaHome, lambdaAway, MethodClosedForm, s.cfg)
}

// poissonMarginal is PMF(0..cutoff-1) with the tail mass folded into the last cell
func poissonMarginal(lambda float64, cutoff int) []float64 {
	probs := make([]float64, cutoff+1)
	cumulative := 0.0
	for k := 0; k < cutoff; k++ {
		probs[k] = PoissonPMF(lambda, k)
		cumulative += probs[k]
	}
	probs[cutoff] = math.Max(0, 1-cumulative)
	return probs
}

// PoissonPMF computed in log space to stay stable for larger k
func PoissonPMF(lambda float64, k int) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	lg, _ := math.Lgamma(float64(k + 1))
	return math.Exp(float64(k)*math.Log(lambda) - lambda - lg)
}
