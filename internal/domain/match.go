package domain

import (
	"regexp"
	"strings"
)

// adminDongRe matches an administrative dong name carrying a numeric
// subdivision before the trailing 동, e.g. "역삼1동" or "면목3.8동".
var adminDongRe = regexp.MustCompile(`^(.+?)[0-9.·]+동$`)

// Normalize lowercases and trims a locality string so matching is unaffected
// by case or surrounding whitespace on either side.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LegalDong converts an administrative dong name to its legal form by
// stripping the numeric subdivision: "역삼1동" → "역삼동". Names without a
// subdivision pass through unchanged, so the function is idempotent.
func LegalDong(name string) string {
	name = strings.TrimSpace(name)
	if m := adminDongRe.FindStringSubmatch(name); m != nil {
		return m[1] + "동"
	}
	return name
}

// Matches reports whether an incident record belongs to the target
// (district, dong) pair.
//
// A non-empty province field must contain a Seoul marker; records from other
// provinces are rejected. A missing province is not disqualifying; several
// upstream revisions omit it. The primary match is substring containment on
// the district and dong fields (tolerating suffixes and prefixes in upstream
// naming); when that fails, the free-text address is checked for both target
// strings. Dong names on both sides are reduced to legal form first, so
// "역삼1동" matches a query for "역삼동".
func Matches(record IncidentRecord, targetDistrict, targetDong string) bool {
	if province := Normalize(record.Province); province != "" && !strings.Contains(province, "서울") {
		return false
	}

	gu := Normalize(targetDistrict)
	dong := Normalize(LegalDong(targetDong))

	recGu := Normalize(record.District)
	recDong := Normalize(LegalDong(record.Dong))
	if strings.Contains(recGu, gu) && strings.Contains(recDong, dong) {
		return true
	}

	addr := Normalize(record.Address)
	return strings.Contains(addr, gu) && strings.Contains(addr, dong)
}

// MatchIncidents filters records down to those matching the target pair,
// de-duplicated by incident identifier.
func MatchIncidents(records []IncidentRecord, targetDistrict, targetDong string) []IncidentRecord {
	var matched []IncidentRecord
	for _, r := range records {
		if Matches(r, targetDistrict, targetDong) {
			matched = append(matched, r)
		}
	}
	return DedupeByID(matched)
}
