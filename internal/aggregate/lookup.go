package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"

	"github.com/groundwatch/sinkhole-risk-service/internal/adapter/molit"
	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
	"github.com/groundwatch/sinkhole-risk-service/internal/observability"
)

// Location identifies one (district, neighborhood) pair in API payloads.
type Location struct {
	District string `json:"district"`
	Dong     string `json:"neighborhood"`
}

// Basis carries the provenance of an area result so the UI can show where a
// number came from without a separate debug endpoint.
type Basis struct {
	API               string   `json:"api,omitempty"`
	Endpoints         []string `json:"endpoints,omitempty"`
	UsedAccidentCount int      `json:"used_accident_count,omitempty"`
	RiskScore         int      `json:"riskScore,omitempty"`
	MatchedCount      int      `json:"matched_count,omitempty"`
	EvaluateDate      string   `json:"evaluateDate,omitempty"`
	Error             string   `json:"error,omitempty"`
	UpdatedAt         string   `json:"updated_at"`
}

// AreaResult is the per-location response shape shared by the area,
// evaluation, and bulk endpoints.
type AreaResult struct {
	Location      Location                `json:"location"`
	Score         int                     `json:"score"`
	Grade         domain.Grade            `json:"grade"`
	Danger        int                     `json:"danger"`
	EvaluateGrade string                  `json:"evaluateGrade,omitempty"`
	Description   string                  `json:"description"`
	Basis         Basis                   `json:"basis"`
	Raw           []domain.IncidentRecord `json:"raw"`
	Error         string                  `json:"error,omitempty"` // set on bulk per-location failure
}

// LookupConfig sizes the per-area query path.
type LookupConfig struct {
	PageSize  int
	MaxPages  int
	DetailCap int
	CacheTTL  time.Duration
}

// Lookup answers on-demand per-(district, neighborhood) risk queries with a
// short-lived per-key cache and the fallback ladder: official evaluation →
// accident proxy → degraded default. It never surfaces upstream errors to
// callers; failures degrade to a best-effort result with the error embedded
// in the basis.
type Lookup struct {
	gateway Gateway
	cfg     LookupConfig
	cache   *gocache.Cache
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLookup creates the per-area lookup service.
func NewLookup(g Gateway, cfg LookupConfig, clk clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Lookup {
	return &Lookup{
		gateway: g,
		cfg:     cfg,
		cache:   gocache.New(cfg.CacheTTL, 10*time.Minute),
		clock:   clk,
		metrics: metrics,
		logger:  logger,
	}
}

// AreaRisk computes the accident-proxy risk for one target area over the
// given YYYYMMDD window (defaulting to the last year). Upstream failure
// degrades to the neutral default rather than erroring.
func (s *Lookup) AreaRisk(ctx context.Context, district, dong, from, to string) AreaResult {
	result, err := s.areaRisk(ctx, district, dong, from, to)
	if err != nil {
		s.logger.Warn("area lookup degraded to default",
			"district", district, "dong", dong, "error", err)
		s.metrics.LookupRequests.WithLabelValues("default").Inc()
		return s.degraded(district, dong, err)
	}
	return result
}

// areaRisk is the proxy path without the degraded fallback; Bulk uses it to
// surface per-location failures instead of neutral placeholder data.
func (s *Lookup) areaRisk(ctx context.Context, district, dong, from, to string) (AreaResult, error) {
	from, to = s.defaultWindow(from, to)
	cacheKey := fmt.Sprintf("area|%s|%s|%s|%s", district, dong, from, to)
	if hit, ok := s.cache.Get(cacheKey); ok {
		return hit.(AreaResult), nil
	}

	matched, err := s.collectMatching(ctx, district, dong, from, to)
	if err != nil {
		return AreaResult{}, err
	}

	calc := domain.ScoreAccidents(matched, district)
	result := AreaResult{
		Location:    Location{District: district, Dong: dong},
		Score:       calc.Score,
		Grade:       calc.Grade,
		Danger:      calc.Danger,
		Description: "지반침하사고 기반 안전도(사고 프록시)",
		Basis: Basis{
			API:               "MOLIT undergroundsafetyinfo01",
			Endpoints:         []string{"getSubsidenceList01", "getSubsidenceInfo01"},
			UsedAccidentCount: calc.Count,
			RiskScore:         calc.RiskScore,
			UpdatedAt:         s.clock.Now().Format(time.RFC3339),
		},
		Raw: sample(matched, 5),
	}

	s.metrics.LookupRequests.WithLabelValues("proxy").Inc()
	s.cache.SetDefault(cacheKey, result)
	return result, nil
}

// AreaEvaluation answers from the official risk-evaluation feed, falling back
// to the accident proxy when the official path fails (auth failures
// included), and to the degraded default when both fail.
func (s *Lookup) AreaEvaluation(ctx context.Context, district, dong string) AreaResult {
	cacheKey := fmt.Sprintf("eval|%s|%s", district, dong)
	if hit, ok := s.cache.Get(cacheKey); ok {
		return hit.(AreaResult)
	}

	records, err := s.gateway.ListEvaluations(ctx, district, dong, 1, 100)
	if err != nil {
		if molit.IsAuthFailure(err) {
			s.logger.Warn("evaluation feed auth failure, using accident proxy",
				"district", district, "dong", dong)
		} else {
			s.logger.Warn("evaluation feed unavailable, using accident proxy",
				"district", district, "dong", dong, "error", err)
		}
		result := s.AreaRisk(ctx, district, dong, "", "")
		result.Basis.Error = err.Error()
		return result
	}

	matched := domain.MatchIncidents(records, district, dong)

	var evaluateGrade, evaluateDate string
	score := 50 // no evaluation on file: neutral midpoint
	if latest, ok := domain.SelectLatestEvaluation(matched); ok {
		evaluateGrade = latest.EvalGrade
		evaluateDate = latest.EvalDate
		score = domain.EvaluationScore(latest.EvalGrade)
	}
	grade := domain.GradeForScore(score)

	result := AreaResult{
		Location:      Location{District: district, Dong: dong},
		Score:         score,
		Grade:         grade,
		Danger:        domain.DangerForGrade(grade),
		EvaluateGrade: evaluateGrade,
		Description:   "지반침하위험도평가 기반 안전도",
		Basis: Basis{
			API:          "MOLIT undergroundsafetyinfo01",
			Endpoints:    []string{"getSubsidenceEvalutionList01"},
			MatchedCount: len(matched),
			EvaluateDate: evaluateDate,
			UpdatedAt:    s.clock.Now().Format(time.RFC3339),
		},
		Raw: sample(matched, 5),
	}

	s.metrics.LookupRequests.WithLabelValues("evaluation").Inc()
	s.cache.SetDefault(cacheKey, result)
	return result
}

// Bulk resolves each location independently and concurrently. A failing
// location yields an error-only entry, never the neutral placeholder body:
// batch consumers must be able to tell a computed result from a failure. One
// bad location never fails the batch. Distinct neighborhoods are independent
// upstream queries, so fan-out here does not break the
// sequential-within-one-lookup contract.
func (s *Lookup) Bulk(ctx context.Context, locations []Location) []AreaResult {
	results := make([]AreaResult, len(locations))
	var wg sync.WaitGroup
	for i, loc := range locations {
		wg.Add(1)
		go func(i int, loc Location) {
			defer wg.Done()
			if loc.District == "" || loc.Dong == "" {
				results[i] = AreaResult{
					Location: loc,
					Error:    "district and neighborhood are required",
				}
				return
			}
			result, err := s.areaRisk(ctx, loc.District, loc.Dong, "", "")
			if err != nil {
				s.logger.Warn("bulk entry failed",
					"district", loc.District, "dong", loc.Dong, "error", err)
				s.metrics.LookupRequests.WithLabelValues("error").Inc()
				results[i] = AreaResult{Location: loc, Error: err.Error()}
				return
			}
			results[i] = result
		}(i, loc)
	}
	wg.Wait()
	return results
}

// collectMatching walks list pages for the window, and when the list phase
// matches nothing (several API revisions omit locality fields from list
// rows), enriches a bounded number of first-page candidates through the
// detail endpoint. List-then-detail stays sequential within one lookup.
func (s *Lookup) collectMatching(ctx context.Context, district, dong, from, to string) ([]domain.IncidentRecord, error) {
	var all []domain.IncidentRecord
	for page := 1; page <= s.cfg.MaxPages; page++ {
		records, err := s.gateway.ListIncidents(ctx, from, to, page, s.cfg.PageSize)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			break
		}
		all = append(all, records...)
		if len(records) < s.cfg.PageSize {
			break
		}
	}

	matched := domain.MatchIncidents(all, district, dong)
	if len(matched) > 0 {
		return matched, nil
	}

	candidates := all
	if len(candidates) > s.cfg.DetailCap {
		candidates = candidates[:s.cfg.DetailCap]
	}
	for _, rec := range candidates {
		if rec.ID == "" {
			continue
		}
		if err := s.gateway.PaceDetail(ctx); err != nil {
			return matched, nil
		}
		detail, found, err := s.gateway.GetIncident(ctx, rec.ID)
		if err != nil || !found {
			s.metrics.DetailFailures.Inc()
			continue
		}
		if domain.Matches(detail, district, dong) {
			matched = append(matched, detail)
		}
	}
	return domain.DedupeByID(matched), nil
}

// degraded is the bottom of the fallback ladder: a neutral result the UI can
// render without an error state.
func (s *Lookup) degraded(district, dong string, err error) AreaResult {
	return AreaResult{
		Location:    Location{District: district, Dong: dong},
		Score:       50,
		Grade:       domain.GradeC,
		Danger:      3,
		Description: "안전도 계산 실패(임시값)",
		Basis: Basis{
			Error:     err.Error(),
			UpdatedAt: s.clock.Now().Format(time.RFC3339),
		},
	}
}

func (s *Lookup) defaultWindow(from, to string) (string, string) {
	if from != "" && to != "" {
		return from, to
	}
	now := s.clock.Now()
	if to == "" {
		to = now.Format("20060102")
	}
	if from == "" {
		from = now.AddDate(-1, 0, 0).Format("20060102")
	}
	return from, to
}

func sample(records []domain.IncidentRecord, n int) []domain.IncidentRecord {
	if len(records) > n {
		return records[:n]
	}
	return records
}
