package podds

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Results from the home side's point of view
const (
	ResultHome = "H"
	ResultDraw = "D"
	ResultAway = "A"
)

// goalMissThreshold is how far the actual total may stray from the expected
// total before the record suggests rescaling expected goals
const goalMissThreshold = 1.5

// Compile-time check to ensure LearningRecord implements Persistable interface
var _ Persistable = (*LearningRecord)(nil)

// LearningRecord holds the error signals for a resolved prediction.
// It links to the prediction and never rewrites it
type LearningRecord struct {
	ID           string    `json:"id" column:"id" dbtype:"TEXT" primary:"true"`
	PredictionID string    `json:"predictionId" column:"prediction_id" dbtype:"TEXT" index:"true"`
	FixtureID    int       `json:"fixtureId" column:"fixture_id" dbtype:"INTEGER" index:"true"`
	CreatedAt    time.Time `json:"createdAt" column:"created_at" dbtype:"INTEGER" encode:"unix"`

	HomeGoals       int    `json:"homeGoals" column:"home_goals" dbtype:"INTEGER"`
	AwayGoals       int    `json:"awayGoals" column:"away_goals" dbtype:"INTEGER"`
	PredictedResult string `json:"predictedResult" column:"predicted_result" dbtype:"TEXT"`
	ActualResult    string `json:"actualResult" column:"actual_result" dbtype:"TEXT"`
	ResultMiss      bool   `json:"resultMiss" column:"result_miss" dbtype:"INTEGER"`

	PredictedHomeWin float64 `json:"predictedHomeWin" column:"predicted_home_win" dbtype:"REAL"`
	OverProbability  float64 `json:"overProbability" column:"over_probability" dbtype:"REAL"`
	ActualOver       bool    `json:"actualOver" column:"actual_over" dbtype:"INTEGER"`
	OverUnderError   float64 `json:"overUnderError" column:"over_under_error" dbtype:"REAL"`

	ExpectedTotal float64 `json:"expectedTotal" column:"expected_total" dbtype:"REAL"`
	GoalError     float64 `json:"goalError" column:"goal_error" dbtype:"REAL"` // actual total minus expected total

	Confidence          int     `json:"confidence" column:"confidence" dbtype:"INTEGER"`
	CalibrationError    float64 `json:"calibrationError" column:"calibration_error" dbtype:"REAL"`
	SuggestedAdjustment string  `json:"suggestedAdjustment" column:"suggested_adjustment" dbtype:"TEXT"`
}

func (r *LearningRecord) GetTableName() string { return "learning_record" }

func (r *LearningRecord) GetPrimaryKey() map[string]any {
	return map[string]any{"id": r.ID}
}

func (r *LearningRecord) BeforeSave() error { return nil }
func (r *LearningRecord) AfterSave() error  { return nil }

// ResultOf is H, D or A for a scoreline
func ResultOf(homeGoals, awayGoals int) string {
	switch {
	case homeGoals > awayGoals:
		return ResultHome
	case homeGoals < awayGoals:
		return ResultAway
	default:
		return ResultDraw
	}
}

// Evaluate computes the error signals of a prediction against the final
// score. The prediction is only read
func Evaluate(pred *FixturePrediction, homeGoals, awayGoals int, targetConfidence float64, now time.Time) *LearningRecord {
	actual := ResultOf(homeGoals, awayGoals)
	favourite := pred.Markets.Favourite()

	over, ok := pred.Markets.Over(2.5)
	if !ok {
		over = 0.5
	}
	total := homeGoals + awayGoals
	actualOver := total > 2
	outcome := 0.0
	if actualOver {
		outcome = 1
	}

	rec := &LearningRecord{
		ID:               uuid.NewString(),
		PredictionID:     pred.ID,
		FixtureID:        pred.FixtureID,
		CreatedAt:        now,
		HomeGoals:        homeGoals,
		AwayGoals:        awayGoals,
		PredictedResult:  favourite,
		ActualResult:     actual,
		ResultMiss:       favourite != actual,
		PredictedHomeWin: pred.Markets.HomeWin,
		OverProbability:  over,
		ActualOver:       actualOver,
		OverUnderError:   math.Abs(over - outcome),
		ExpectedTotal:    pred.ExpectedHomeGoals + pred.ExpectedAwayGoals,
		Confidence:       pred.OverallConfidence,
		CalibrationError: math.Abs(float64(pred.OverallConfidence)/100 - targetConfidence),
	}
	rec.GoalError = float64(total) - rec.ExpectedTotal
	rec.SuggestedAdjustment = suggestAdjustment(rec)
	return rec
}

func suggestAdjustment(r *LearningRecord) string {
	var s []string
	if r.ResultMiss {
		switch {
		case r.ActualResult == ResultHome:
			s = append(s, "increase home advantage")
		case r.ActualResult == ResultAway && r.PredictedResult == ResultHome:
			s = append(s, "reduce home advantage")
		case r.ActualResult == ResultDraw:
			s = append(s, "widen draw probability")
		}
	}
	switch {
	case r.GoalError > goalMissThreshold:
		s = append(s, "scale expected goals up")
	case r.GoalError < -goalMissThreshold:
		s = append(s, "scale expected goals down")
	}
	if r.CalibrationError > 0.2 {
		s = append(s, "recalibrate confidence")
	}
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, "; ")
}

// Calibrator turns accumulated learning records into a bounded StrengthBias
type Calibrator struct {
	MinSample  int
	MaxHomeAdj float64
	MaxGoalAdj float64
}

func NewCalibrator(cfg *PoddsConfig) Calibrator {
	return Calibrator{
		MinSample:  cfg.MinLearningSample,
		MaxHomeAdj: cfg.MaxHomeAdvantageAdj,
		MaxGoalAdj: cfg.MaxGoalScaleAdj,
	}
}

// Bias averages the home win residual and the goal total ratio. Below the
// minimum sample it returns the zero bias
func (c Calibrator) Bias(records []*LearningRecord) StrengthBias {
	if len(records) == 0 || len(records) < c.MinSample {
		return StrengthBias{Sample: len(records)}
	}
	homeResidual := 0.0
	actualGoals, expectedGoals := 0.0, 0.0
	for _, r := range records {
		won := 0.0
		if r.ActualResult == ResultHome {
			won = 1
		}
		homeResidual += won - r.PredictedHomeWin
		actualGoals += float64(r.HomeGoals + r.AwayGoals)
		expectedGoals += r.ExpectedTotal
	}
	n := float64(len(records))
	bias := StrengthBias{
		HomeAdvantageShift: clamp(homeResidual/n, -c.MaxHomeAdj, c.MaxHomeAdj),
		Sample:             len(records),
	}
	if expectedGoals > 0 {
		bias.GoalScaleShift = clamp(actualGoals/expectedGoals-1, -c.MaxGoalAdj, c.MaxGoalAdj)
	}
	return bias
}

// Accuracy aggregates learning records
type Accuracy struct {
	Count                int     `json:"count"`
	ResultHitRate        float64 `json:"resultHitRate"`
	MeanOverUnderError   float64 `json:"meanOverUnderError"`
	MeanCalibrationError float64 `json:"meanCalibrationError"`
	MeanAbsGoalError     float64 `json:"meanAbsGoalError"`
	ExactScoreRate       float64 `json:"exactScoreRate"`
}

// Summarize aggregates records. Exact scores need the predictions, pass nil to skip them
func Summarize(records []*LearningRecord, predictions map[string]*FixturePrediction) Accuracy {
	acc := Accuracy{Count: len(records)}
	if len(records) == 0 {
		return acc
	}
	hits, exact := 0, 0
	for _, r := range records {
		if !r.ResultMiss {
			hits++
		}
		acc.MeanOverUnderError += r.OverUnderError
		acc.MeanCalibrationError += r.CalibrationError
		acc.MeanAbsGoalError += math.Abs(r.GoalError)
		if p, ok := predictions[r.PredictionID]; ok &&
			p.PredictedHomeGoals == r.HomeGoals && p.PredictedAwayGoals == r.AwayGoals {
			exact++
		}
	}
	n := float64(len(records))
	acc.ResultHitRate = float64(hits) / n
	acc.MeanOverUnderError /= n
	acc.MeanCalibrationError /= n
	acc.MeanAbsGoalError /= n
	acc.ExactScoreRate = float64(exact) / n
	return acc
}
