package domain

import (
	"strings"
	"time"
)

// IncidentRecord is one reported ground-subsidence event, normalized from
// whichever upstream field-naming scheme produced it.
type IncidentRecord struct {
	ID       string `json:"id"`
	Province string `json:"province,omitempty"` // si/do, e.g. "서울특별시"
	District string `json:"district,omitempty"` // gu, as reported upstream
	Dong     string `json:"dong,omitempty"`     // administrative or legal form
	Address  string `json:"address,omitempty"`  // free-text fallback match field
	Date     string `json:"date,omitempty"`     // raw upstream date string

	// Physical measurements in meters, zero when unreported.
	SinkWidth float64 `json:"sink_width,omitempty"`
	SinkDepth float64 `json:"sink_depth,omitempty"`

	// Official evaluation fields, present on evaluation-list records only.
	EvalGrade string `json:"eval_grade,omitempty"`
	EvalScore string `json:"eval_score,omitempty"`
	EvalDate  string `json:"eval_date,omitempty"`

	Detail string `json:"detail,omitempty"` // incident description text
}

// HasMeasurements reports whether the record carries direct sink dimensions.
func (r IncidentRecord) HasMeasurements() bool {
	return r.SinkWidth > 0 || r.SinkDepth > 0
}

// OccurredAt parses the record's date field. Ok is false when the field is
// empty or unparseable.
func (r IncidentRecord) OccurredAt() (time.Time, bool) {
	return ParseIncidentDate(r.Date)
}

// ParseIncidentDate handles the date formats observed upstream: compact
// "20240101", dashed "2024-01-01", and full RFC 3339 timestamps.
func ParseIncidentDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"20060102", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysSince returns the whole days elapsed from t to now, floored at 1 so
// same-day incidents land in the most recent decay bucket.
func DaysSince(t, now time.Time) int {
	days := int(now.Sub(t).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// DedupeByID drops records whose identifier was already seen, preserving
// order. Records without an ID are kept as-is; there is nothing to key on.
func DedupeByID(records []IncidentRecord) []IncidentRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
