package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
	"github.com/groundwatch/sinkhole-risk-service/internal/observability"
)

// Gateway is the upstream API surface the aggregation layer depends on.
// *molit.Client satisfies it.
type Gateway interface {
	ListIncidents(ctx context.Context, dateFrom, dateTo string, pageNo, pageSize int) ([]domain.IncidentRecord, error)
	GetIncident(ctx context.Context, id string) (domain.IncidentRecord, bool, error)
	ListEvaluations(ctx context.Context, district, dong string, pageNo, pageSize int) ([]domain.IncidentRecord, error)
	ListNotices(ctx context.Context, pageNo, pageSize int) ([]domain.IncidentRecord, error)
	PaceDetail(ctx context.Context) error
}

// RefresherConfig sizes a city-wide refresh pass.
type RefresherConfig struct {
	PageSize       int
	MaxPages       int
	LookbackMonths int
	DetailCap      int
}

// CityRefresher computes a full city-wide snapshot: it walks a rolling
// monthly lookback window, resolves each Seoul incident to its detail record
// sequentially (respecting the gateway's pacing and backoff contracts),
// grades by sink measurements, and merges per neighborhood.
type CityRefresher struct {
	gateway Gateway
	cfg     RefresherConfig
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCityRefresher creates a refresher over the given gateway.
func NewCityRefresher(g Gateway, cfg RefresherConfig, clk clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *CityRefresher {
	return &CityRefresher{gateway: g, cfg: cfg, clock: clk, metrics: metrics, logger: logger}
}

type dateRange struct {
	from, to string
}

// monthlyRanges builds n one-month buckets ending at now, most recent first.
func monthlyRanges(now time.Time, n int) []dateRange {
	ranges := make([]dateRange, 0, n)
	for i := 0; i < n; i++ {
		to := now.AddDate(0, -i, 0)
		from := to.AddDate(0, -1, 0)
		ranges = append(ranges, dateRange{from.Format("20060102"), to.Format("20060102")})
	}
	return ranges
}

// Refresh runs one complete pass. Individual page or detail failures are
// counted and skipped; only a pass that yields nothing at all errors out.
func (r *CityRefresher) Refresh(ctx context.Context) (*Snapshot, error) {
	now := r.clock.Now()
	ranges := monthlyRanges(now, r.cfg.LookbackMonths)

	candidates, listFailures := r.collectCandidates(ctx, ranges)
	if len(candidates) == 0 && listFailures == len(ranges) {
		return nil, fmt.Errorf("all %d lookback ranges failed", listFailures)
	}

	resolved, failCount := r.resolveDetails(ctx, candidates)

	byLocation := make(map[string]domain.RiskResult)
	for _, rec := range resolved {
		if rec.District == "" || rec.Dong == "" {
			continue
		}
		grade, danger := domain.MeasurementGrade(rec.SinkWidth, rec.SinkDepth)
		entry := domain.RiskResult{
			District:      rec.District,
			Dong:          domain.LegalDong(rec.Dong),
			Score:         domain.ScoreForGrade(grade),
			Grade:         grade,
			Danger:        danger,
			AccidentCount: 1,
			Incidents:     []domain.IncidentRecord{rec},
		}
		key := entry.District + "|" + entry.Dong
		if existing, ok := byLocation[key]; ok {
			byLocation[key] = domain.Merge(&existing, entry)
		} else {
			byLocation[key] = domain.Merge(nil, entry)
		}
	}

	results := make([]domain.RiskResult, 0, len(byLocation))
	for _, res := range byLocation {
		results = append(results, res)
	}
	domain.Rank(results)

	return &Snapshot{
		Results: results,
		Meta: Meta{
			Period:            ranges[len(ranges)-1].from + "~" + ranges[0].to,
			TotalAccidents:    len(resolved),
			SuccessCount:      len(resolved),
			FailCount:         failCount + listFailures,
			DistinctLocations: len(results),
			FetchedAt:         now,
		},
	}, nil
}

// collectCandidates walks every lookback range page by page and keeps the
// Seoul records. A failing range is skipped, not fatal.
func (r *CityRefresher) collectCandidates(ctx context.Context, ranges []dateRange) ([]domain.IncidentRecord, int) {
	var candidates []domain.IncidentRecord
	failures := 0
	for _, rg := range ranges {
		for page := 1; page <= r.cfg.MaxPages; page++ {
			records, err := r.gateway.ListIncidents(ctx, rg.from, rg.to, page, r.cfg.PageSize)
			if err != nil {
				failures++
				r.logger.Warn("list page failed, skipping range",
					"from", rg.from, "to", rg.to, "page", page, "error", err)
				break
			}
			if len(records) == 0 {
				break
			}
			for _, rec := range records {
				if strings.Contains(domain.Normalize(rec.Province), "서울") {
					candidates = append(candidates, rec)
				}
			}
			if len(records) < r.cfg.PageSize {
				break
			}
		}
	}
	return domain.DedupeByID(candidates), failures
}

// resolveDetails fetches the detail record for each candidate sequentially,
// never concurrently. The provider's informal rate limit does not survive
// fan-out. Failures are counted and skipped. Candidates without an id keep
// their list-phase fields when those are usable.
func (r *CityRefresher) resolveDetails(ctx context.Context, candidates []domain.IncidentRecord) ([]domain.IncidentRecord, int) {
	if len(candidates) > r.cfg.DetailCap {
		candidates = candidates[:r.cfg.DetailCap]
	}

	var resolved []domain.IncidentRecord
	failCount := 0
	for _, rec := range candidates {
		if rec.ID == "" {
			if rec.District != "" && rec.Dong != "" {
				resolved = append(resolved, rec)
			}
			continue
		}
		if err := r.gateway.PaceDetail(ctx); err != nil {
			failCount++
			continue
		}
		detail, found, err := r.gateway.GetIncident(ctx, rec.ID)
		if err != nil || !found {
			failCount++
			r.metrics.DetailFailures.Inc()
			if err != nil {
				r.logger.Warn("detail lookup failed, skipping", "id", rec.ID, "error", err)
			}
			continue
		}
		// Detail responses occasionally omit locality fields the list had.
		if detail.District == "" {
			detail.District = rec.District
		}
		if detail.Dong == "" {
			detail.Dong = rec.Dong
		}
		resolved = append(resolved, detail)
	}
	return resolved, failCount
}
