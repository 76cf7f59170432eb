package advisory

import (
	"fmt"
	"math"
)

// FallbackTeam derives an analysis from the profile alone. It has the same
// shape as a service reply with confidence fixed at 50 and never returns
// empty strengths or weaknesses
func FallbackTeam(p TeamProfile) *TeamAnalysis {
	gpg, gapg, winRate, lossRate := rates(p)

	var strengths, weaknesses []string
	if gpg >= 1.5 {
		strengths = append(strengths, "prolific attack")
	}
	if p.Played > 0 && gapg <= 1.0 {
		strengths = append(strengths, "solid defence")
	}
	if winRate >= 0.5 {
		strengths = append(strengths, "winning habit")
	}
	if p.FormPoints5 != nil && *p.FormPoints5 >= 10 {
		strengths = append(strengths, "strong recent form")
	}
	if p.Position > 0 && p.Position <= 4 {
		strengths = append(strengths, "top of the table quality")
	}
	if len(strengths) == 0 {
		strengths = append(strengths, "organised structure")
	}

	if p.Played > 0 && gpg < 1.0 {
		weaknesses = append(weaknesses, "struggles to score")
	}
	if gapg >= 1.5 {
		weaknesses = append(weaknesses, "leaky defence")
	}
	if lossRate >= 0.4 {
		weaknesses = append(weaknesses, "frequent defeats")
	}
	if p.FormPoints5 != nil && *p.FormPoints5 <= 4 {
		weaknesses = append(weaknesses, "poor recent form")
	}
	if p.Volatility != nil && *p.Volatility >= 2.0 {
		weaknesses = append(weaknesses, "inconsistent results")
	}
	if len(weaknesses) == 0 {
		if p.Played < 5 {
			weaknesses = append(weaknesses, "limited match history")
		} else {
			weaknesses = append(weaknesses, "lacks a decisive edge")
		}
	}

	style := "balanced"
	switch {
	case gpg >= 1.6:
		style = "attacking"
	case p.Played > 0 && gapg <= 0.9:
		style = "defensive"
	}

	predictability := 50
	if p.Volatility != nil {
		predictability = clampPercent(int(math.Round(100 - *p.Volatility*25)))
	}

	return &TeamAnalysis{
		Style:          style,
		Strengths:      truncate(strengths, maxListItems),
		Weaknesses:     truncate(weaknesses, maxListItems),
		FormLabel:      formLabel(p.FormPoints5, 5),
		Predictability: predictability,
		Confidence:     percent(fallbackConfid),
		Source:         SourceFallback,
	}
}

// fallbackEdge is the expected goals gap needed before the fallback names a side
const fallbackEdge = 0.5

// FallbackMatchup reads the advantage from the expected goals alone
func FallbackMatchup(m MatchupProfile) *MatchupAnalysis {
	eh, ea := m.ExpectedHome, m.ExpectedAway
	total := eh + ea
	homeShare := 0.5
	if total > 0 {
		homeShare = eh / total
	}

	label := AdvantageBalanced
	upset := 50
	switch diff := eh - ea; {
	case diff >= fallbackEdge:
		label = AdvantageHome
		upset = clampPercent(int(math.Round(100 * (1 - homeShare))))
	case diff <= -fallbackEdge:
		label = AdvantageAway
		upset = clampPercent(int(math.Round(100 * homeShare)))
	}

	pHome := int(60 * homeShare)
	pAway := int(60 * (1 - homeShare))
	scenarios := []Scenario{
		{Description: fmt.Sprintf("%s impose themselves and win", m.Home.Name), Probability: pHome},
		{Description: "tight game settled by small margins or a draw", Probability: 30},
		{Description: fmt.Sprintf("%s take their chances and win", m.Away.Name), Probability: pAway},
	}

	factors := []string{
		fmt.Sprintf("expected goals %.2f-%.2f", eh, ea),
		fmt.Sprintf("rating gap %+d", m.Home.Rating-m.Away.Rating),
		fmt.Sprintf("form %s v %s", formLabel(m.Home.FormPoints5, 5), formLabel(m.Away.FormPoints5, 5)),
	}

	out := &MatchupAnalysis{
		AdvantageLabel: label,
		Confidence:     percent(fallbackConfid),
		Scenarios:      scenarios,
		KeyFactors:     factors,
		UpsetPotential: upset,
		Source:         SourceFallback,
	}
	out.sanitize()
	return out
}

func rates(p TeamProfile) (gpg, gapg, winRate, lossRate float64) {
	if p.Played <= 0 {
		return 0, 0, 0, 0
	}
	n := float64(p.Played)
	return float64(p.GoalsFor) / n, float64(p.GoalsAgainst) / n, float64(p.Wins) / n, float64(p.Losses) / n
}

// formLabel mirrors the points-ratio ladder used by the strength model
func formLabel(points *int, window int) string {
	if points == nil || window <= 0 {
		return "average"
	}
	ratio := float64(*points) / float64(3*window)
	switch {
	case ratio >= 0.8:
		return "excellent"
	case ratio >= 0.6:
		return "good"
	case ratio >= 0.4:
		return "average"
	case ratio >= 0.2:
		return "poor"
	default:
		return "critical"
	}
}
