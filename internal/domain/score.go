package domain

import (
	"math"
	"strings"
)

// ProxyScore is the output of the accident-proxy scoring path.
type ProxyScore struct {
	Score     int   // safety score, [0,100], higher = safer
	Grade     Grade
	Danger    int
	RiskScore int // clamped risk accumulator, [0,100], higher = more dangerous
	Count     int
}

// timeWeight returns the decay weight for an incident by recency bucket.
// Bounds are inclusive: a 30-day-old incident still gets the full weight.
func timeWeight(days int) float64 {
	switch {
	case days <= 30:
		return 30
	case days <= 90:
		return 25
	case days <= 180:
		return 20
	case days <= 365:
		return 15
	case days <= 730:
		return 10
	default:
		return 5
	}
}

// ScoreAccidents converts matched incident records into a safety score via
// time-decayed, frequency-weighted accumulation. Incidents whose date cannot
// be parsed contribute nothing to the accumulator but still count toward the
// frequency bonus, matching the upstream provider's list semantics.
//
// The accumulator is risk-polarity (higher = worse); the non-linear rescale at
// the end converts it to the canonical safety polarity. Scoring reads time
// from the package clock, so a frozen clock makes it a pure function.
func ScoreAccidents(incidents []IncidentRecord, targetDistrict string) ProxyScore {
	now := clock.Now()
	gu := strings.TrimSpace(targetDistrict)

	var sum float64
	for _, inc := range incidents {
		occurred, ok := inc.OccurredAt()
		if !ok {
			continue
		}
		weight := timeWeight(DaysSince(occurred, now))

		// Incidents pinned to the target district weigh more than ones
		// matched only through the wider address text.
		boost := 1.0
		if gu != "" && (strings.Contains(inc.District, gu) || strings.Contains(inc.Address, gu)) {
			boost = 1.5
		}
		sum += weight * boost
	}

	sum += math.Min(40, float64(len(incidents))*3)

	riskScore := clampInt(int(math.Round(sum)), 0, 100)

	var safety float64
	switch {
	case riskScore <= 20:
		safety = 100 - float64(riskScore)*2
	case riskScore <= 40:
		safety = 60 - float64(riskScore-20)*1.5
	default:
		safety = 30 - float64(riskScore-40)*0.5
	}
	score := clampInt(int(math.Round(safety)), 0, 100)

	grade := GradeForScore(score)
	return ProxyScore{
		Score:     score,
		Grade:     grade,
		Danger:    DangerForGrade(grade),
		RiskScore: riskScore,
		Count:     len(incidents),
	}
}

// MeasurementGrade derives a grade directly from sink dimensions. See the
// package documentation for the threshold table.
func MeasurementGrade(width, depth float64) (Grade, int) {
	var g Grade
	switch {
	case depth >= 1.5 || width >= 3.0:
		g = GradeE
	case depth >= 1.0 || width >= 1.5:
		g = GradeD
	case depth >= 0.4 || width >= 0.5:
		g = GradeC
	default:
		g = GradeB
	}
	return g, DangerForGrade(g)
}

// EvaluationScore maps an official evaluation grade label to a safety score.
// Labels are free text; Korean and English variants are recognized, anything
// else gets the neutral midpoint.
func EvaluationScore(label string) int {
	g := Normalize(label)
	switch {
	case strings.Contains(g, "안전"), g == "safe", g == "ok":
		return 90
	case strings.Contains(g, "주의"), g == "caution", g == "warning":
		return 60
	case strings.Contains(g, "위험"), g == "danger", g == "hazard":
		return 30
	default:
		return 50
	}
}

// SelectLatestEvaluation picks the most recent record by evaluation date.
// Records without a parseable date sort oldest. Ok is false for an empty set.
func SelectLatestEvaluation(records []IncidentRecord) (IncidentRecord, bool) {
	if len(records) == 0 {
		return IncidentRecord{}, false
	}
	best := records[0]
	bestAt, _ := ParseIncidentDate(best.EvalDate)
	for _, r := range records[1:] {
		if at, ok := ParseIncidentDate(r.EvalDate); ok && at.After(bestAt) {
			best, bestAt = r, at
		}
	}
	return best, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
