package domain

import "sort"

// Merge combines a scored incident entry into an existing per-neighborhood
// result under the "worse wins" rule: the more dangerous grade survives,
// accident counts are summed, and contributing incidents accumulate. The
// danger comparison is associative and commutative, so merge order never
// changes the outcome.
func Merge(existing *RiskResult, incoming RiskResult) RiskResult {
	if existing == nil {
		out := incoming
		out.Color = GradeColor(out.Grade)
		sortIncidentsWorstFirst(out.Incidents)
		return out
	}

	out := *existing
	if incoming.Danger > out.Danger {
		out.Grade = incoming.Grade
		out.Danger = incoming.Danger
		out.Score = incoming.Score
	}
	out.AccidentCount += incoming.AccidentCount
	out.Incidents = append(out.Incidents, incoming.Incidents...)
	out.Color = GradeColor(out.Grade)
	sortIncidentsWorstFirst(out.Incidents)
	return out
}

// sortIncidentsWorstFirst orders a drill-down list by descending measured
// severity so the UI shows the worst collapse at the top.
func sortIncidentsWorstFirst(incidents []IncidentRecord) {
	sort.SliceStable(incidents, func(i, j int) bool {
		_, di := MeasurementGrade(incidents[i].SinkWidth, incidents[i].SinkDepth)
		_, dj := MeasurementGrade(incidents[j].SinkWidth, incidents[j].SinkDepth)
		return di > dj
	})
}
