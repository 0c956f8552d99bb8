// Package domain models Korean ground-subsidence (sinkhole) incident data and
// the per-neighborhood risk results derived from it.
//
// # Data Source
//
// Incident records originate from the MOLIT underground-safety open API on
// data.go.kr (사고 리스트 / 사고 상세 / 위험도평가 리스트 endpoints). Upstream
// responses are inconsistent across API revisions: the same logical field
// appears under several names (see the candidate extractor lists in the molit
// adapter), dates arrive as "YYYYMMDD" or ISO strings, and neighborhoods are
// keyed sometimes by administrative dong ("역삼1동") and sometimes by legal
// dong ("역삼동").
//
// # Administrative vs. legal dong
//
// An administrative dong name is the legal name plus an optional numeric
// subdivision before the trailing 동: "역삼1동" is subdivision 1 of legal
// "역삼동". Datasets mix the two freely, so [LegalDong] strips the digits and
// is applied to BOTH sides of any join before matching. Names without digits
// pass through unchanged, which makes the normalization idempotent.
//
// # Scoring conventions
//
// Two upstream conventions exist with opposite polarity: the official
// evaluation grade is "higher score = safer", while raw accident counts
// naturally accumulate the other way. The canonical polarity throughout this
// package is higher = safer; the accident-proxy path converts its risk
// accumulator into a safety score at the boundary ([ScoreAccidents]) so the
// two sources reconcile without sign flips.
//
// Grade and danger form a strict invertible pair:
//
//	A↔1  B↔2  C↔3  D↔4  E↔5
//
// with A the safest. "Worse wins" merging compares danger values only.
//
// # Physical-measurement grading
//
// When an incident carries sink width/depth measurements, the grade comes from
// a fixed threshold table instead of time decay:
//
//	depth ≥ 1.5m or width ≥ 3.0m → E
//	depth ≥ 1.0m or width ≥ 1.5m → D
//	depth ≥ 0.4m or width ≥ 0.5m → C
//	otherwise                    → B
//
// The table is monotonic in both inputs. A measured collapse never grades A;
// A is reserved for neighborhoods with no matched incidents at all.
package domain
