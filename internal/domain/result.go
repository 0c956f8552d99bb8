package domain

import "sort"

// Grade is the letter risk grade, A (safest) through E (most dangerous).
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// RiskResult is the computed risk state for one (district, dong) pair.
type RiskResult struct {
	District string `json:"district"`
	Dong     string `json:"neighborhood"`

	// Score is the safety score in [0,100], higher = safer.
	Score  int   `json:"score"`
	Grade  Grade `json:"grade"`
	Danger int   `json:"danger"` // 1 (safest) .. 5

	AccidentCount int    `json:"accidentCount"`
	Color         string `json:"color,omitempty"` // map fill color for the grade

	// Incidents contributing to this result, sorted worst-first, for UI
	// drill-down. Omitted from the city-wide payload when empty.
	Incidents []IncidentRecord `json:"incidents,omitempty"`
}

// GradeForScore maps a safety score (higher = safer) to a letter grade.
func GradeForScore(score int) Grade {
	switch {
	case score >= 80:
		return GradeA
	case score >= 60:
		return GradeB
	case score >= 40:
		return GradeC
	case score >= 20:
		return GradeD
	default:
		return GradeE
	}
}

// DangerForGrade maps a grade to its danger level. The mapping is total and
// strictly monotonic; unknown grades get the neutral middle value.
func DangerForGrade(g Grade) int {
	switch g {
	case GradeA:
		return 1
	case GradeB:
		return 2
	case GradeC:
		return 3
	case GradeD:
		return 4
	case GradeE:
		return 5
	default:
		return 3
	}
}

// GradeForDanger is the inverse of DangerForGrade.
func GradeForDanger(danger int) Grade {
	switch danger {
	case 1:
		return GradeA
	case 2:
		return GradeB
	case 4:
		return GradeD
	case 5:
		return GradeE
	default:
		return GradeC
	}
}

// ScoreForGrade returns the midpoint safety score of a grade's band, used
// when a source yields a grade without a numeric score (the
// physical-measurement path).
func ScoreForGrade(g Grade) int {
	switch g {
	case GradeA:
		return 90
	case GradeB:
		return 70
	case GradeD:
		return 30
	case GradeE:
		return 10
	default:
		return 50
	}
}

// GradeColor returns the map fill color used by the frontend for a grade.
func GradeColor(g Grade) string {
	switch g {
	case GradeA:
		return "#2ecc71"
	case GradeB:
		return "#f1c40f"
	case GradeC:
		return "#e67e22"
	case GradeD:
		return "#e74c3c"
	case GradeE:
		return "#c0392b"
	default:
		return "#bdc3c7"
	}
}

// Rank orders results most-dangerous-first: descending danger, then
// descending accident count. The sort is stable for equal keys.
func Rank(results []RiskResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Danger != results[j].Danger {
			return results[i].Danger > results[j].Danger
		}
		return results[i].AccidentCount > results[j].AccidentCount
	})
}
