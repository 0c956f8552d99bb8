package aggregate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
)

func testLookupConfig() LookupConfig {
	return LookupConfig{PageSize: 100, MaxPages: 3, DetailCap: 10, CacheTTL: time.Minute}
}

func newTestLookup(g Gateway, clk clockwork.Clock) *Lookup {
	return NewLookup(g, testLookupConfig(), clk, testMetrics(), testLogger())
}

func frozenAt(t *testing.T, at time.Time) clockwork.Clock {
	t.Helper()
	clk := clockwork.NewFakeClockAt(at)
	domain.SetClock(clk)
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })
	return clk
}

func TestLookup_AreaRisk_AccidentProxy(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	clk := frozenAt(t, now)

	g := &stubGateway{
		listFn: func(_ context.Context, from, to string, page, _ int) ([]domain.IncidentRecord, error) {
			assert.Equal(t, "20240615", from, "window defaults to the last year")
			assert.Equal(t, "20250615", to)
			if page > 1 {
				return nil, nil
			}
			return []domain.IncidentRecord{
				{ID: "A-1", Province: "서울특별시", District: "강남구", Dong: "역삼동",
					Date: now.AddDate(0, 0, -10).Format("20060102")},
			}, nil
		},
	}

	s := newTestLookup(g, clk)
	result := s.AreaRisk(context.Background(), "강남구", "역삼동", "", "")

	// One 10-day-old in-district accident: weight 30 boosted 1.5x plus the
	// frequency bonus gives risk 48, safety 26, grade D.
	assert.Equal(t, 26, result.Score)
	assert.Equal(t, domain.GradeD, result.Grade)
	assert.Equal(t, 4, result.Danger)
	assert.Equal(t, 1, result.Basis.UsedAccidentCount)
	assert.Equal(t, 48, result.Basis.RiskScore)
	require.Len(t, result.Raw, 1)
}

func TestLookup_AreaRisk_NoAccidentsIsSafest(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	s := newTestLookup(&stubGateway{}, clk)

	result := s.AreaRisk(context.Background(), "강남구", "역삼동", "", "")
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, domain.GradeA, result.Grade)
	assert.Equal(t, 1, result.Danger)
}

func TestLookup_AreaRisk_DegradesOnUpstreamFailure(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	g := &stubGateway{
		listFn: func(context.Context, string, string, int, int) ([]domain.IncidentRecord, error) {
			return nil, errors.New("upstream down")
		},
	}
	s := newTestLookup(g, clk)

	result := s.AreaRisk(context.Background(), "강남구", "역삼동", "", "")
	assert.Equal(t, 50, result.Score)
	assert.Equal(t, domain.GradeC, result.Grade)
	assert.Equal(t, 3, result.Danger)
	assert.Contains(t, result.Basis.Error, "upstream down")
}

func TestLookup_AreaRisk_CachesPerKey(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	g := &stubGateway{}
	s := newTestLookup(g, clk)

	s.AreaRisk(context.Background(), "강남구", "역삼동", "", "")
	first := g.listCalls.Load()
	s.AreaRisk(context.Background(), "강남구", "역삼동", "", "")
	assert.Equal(t, first, g.listCalls.Load(), "second identical lookup served from cache")

	s.AreaRisk(context.Background(), "송파구", "잠실동", "", "")
	assert.Greater(t, g.listCalls.Load(), first, "different area misses the cache")
}

func TestLookup_AreaRisk_EnrichesViaDetailWhenListLacksLocality(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	g := &stubGateway{
		listFn: func(_ context.Context, _, _ string, page, _ int) ([]domain.IncidentRecord, error) {
			if page > 1 {
				return nil, nil
			}
			// List rows carry ids only, no locality fields to match on.
			return []domain.IncidentRecord{{ID: "A-1"}, {ID: "A-2"}}, nil
		},
		getFn: func(_ context.Context, id string) (domain.IncidentRecord, bool, error) {
			if id == "A-1" {
				return domain.IncidentRecord{ID: id, Province: "서울특별시", District: "강남구", Dong: "역삼동", Date: "20250601"}, true, nil
			}
			return domain.IncidentRecord{ID: id, Province: "서울특별시", District: "송파구", Dong: "잠실동", Date: "20250601"}, true, nil
		},
	}
	s := newTestLookup(g, clk)

	result := s.AreaRisk(context.Background(), "강남구", "역삼동", "", "")
	assert.Equal(t, 1, result.Basis.UsedAccidentCount)
	assert.Equal(t, int32(2), g.paceCalls.Load())
}

func TestLookup_AreaEvaluation_LatestEvaluationWins(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	g := &stubGateway{
		evalFn: func(_ context.Context, district, dong string, _, _ int) ([]domain.IncidentRecord, error) {
			assert.Equal(t, "강남구", district)
			assert.Equal(t, "역삼동", dong)
			return []domain.IncidentRecord{
				{ID: "E-1", Province: "서울특별시", District: "강남구", Dong: "역삼동", EvalGrade: "위험", EvalDate: "20240101"},
				{ID: "E-2", Province: "서울특별시", District: "강남구", Dong: "역삼동", EvalGrade: "안전", EvalDate: "20250301"},
			}, nil
		},
	}
	s := newTestLookup(g, clk)

	result := s.AreaEvaluation(context.Background(), "강남구", "역삼동")
	assert.Equal(t, 90, result.Score, "newest evaluation label decides")
	assert.Equal(t, domain.GradeA, result.Grade)
	assert.Equal(t, "안전", result.EvaluateGrade)
	assert.Equal(t, "20250301", result.Basis.EvaluateDate)
	assert.Equal(t, 2, result.Basis.MatchedCount)
}

func TestLookup_AreaEvaluation_NoMatchIsNeutral(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	s := newTestLookup(&stubGateway{}, clk)

	result := s.AreaEvaluation(context.Background(), "강남구", "역삼동")
	assert.Equal(t, 50, result.Score)
	assert.Equal(t, domain.GradeC, result.Grade)
	assert.Empty(t, result.EvaluateGrade)
}

func TestLookup_AreaEvaluation_FallsBackToProxy(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	clk := frozenAt(t, now)
	g := &stubGateway{
		evalFn: func(context.Context, string, string, int, int) ([]domain.IncidentRecord, error) {
			return nil, errors.New("evaluation feed down")
		},
		listFn: func(_ context.Context, _, _ string, page, _ int) ([]domain.IncidentRecord, error) {
			if page > 1 {
				return nil, nil
			}
			return []domain.IncidentRecord{
				{ID: "A-1", Province: "서울특별시", District: "강남구", Dong: "역삼동",
					Date: now.AddDate(0, 0, -10).Format("20060102")},
			}, nil
		},
	}
	s := newTestLookup(g, clk)

	result := s.AreaEvaluation(context.Background(), "강남구", "역삼동")
	assert.Equal(t, 26, result.Score, "accident proxy answer")
	assert.Contains(t, result.Basis.Error, "evaluation feed down")
}

func TestLookup_Bulk_IsolatesPerLocationFailures(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	s := newTestLookup(&stubGateway{}, clk)

	results := s.Bulk(context.Background(), []Location{
		{District: "강남구", Dong: "역삼동"},
		{District: "송파구"}, // missing neighborhood
		{District: "마포구", Dong: "합정동"},
	})
	require.Len(t, results, 3)

	assert.Empty(t, results[0].Error)
	assert.Equal(t, 100, results[0].Score)

	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, "송파구", results[1].Location.District)

	assert.Empty(t, results[2].Error)
	assert.Equal(t, "합정동", results[2].Location.Dong, "input order preserved")
}

func TestLookup_Bulk_UpstreamFailureYieldsErrorEntry(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	var feedDown atomic.Bool
	g := &stubGateway{
		listFn: func(context.Context, string, string, int, int) ([]domain.IncidentRecord, error) {
			if feedDown.Load() {
				return nil, errors.New("upstream down")
			}
			return nil, nil
		},
	}
	s := newTestLookup(g, clk)

	warm := s.Bulk(context.Background(), []Location{{District: "강남구", Dong: "역삼동"}})
	require.Len(t, warm, 1)
	require.Empty(t, warm[0].Error)

	feedDown.Store(true)
	results := s.Bulk(context.Background(), []Location{
		{District: "강남구", Dong: "역삼동"}, // cached from the first batch
		{District: "송파구", Dong: "잠실동"}, // hits the failing upstream
	})
	require.Len(t, results, 2)

	assert.Empty(t, results[0].Error, "cached area unaffected by the outage")
	assert.Equal(t, 100, results[0].Score)

	failed := results[1]
	assert.Contains(t, failed.Error, "upstream down")
	assert.Equal(t, "송파구", failed.Location.District)
	assert.Equal(t, "잠실동", failed.Location.Dong)
	assert.Zero(t, failed.Score, "no placeholder body for a failed entry")
	assert.Empty(t, failed.Grade)
	assert.Empty(t, failed.Basis.API)
}

func TestLookup_Notices(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	g := &stubGateway{
		noticFn: func(context.Context, int, int) ([]domain.IncidentRecord, error) {
			return []domain.IncidentRecord{
				{ID: "N-1", Province: "서울특별시", District: "강남구", Date: "20250601", Detail: "도로 침하 발생"},
				{ID: "N-2", Province: "서울특별시", District: "송파구", Date: "20250520"},
				{ID: "N-3", Province: "경기도", District: "성남시", Date: "20250510"},
			}, nil
		},
	}
	s := newTestLookup(g, clk)

	notices, err := s.Notices(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, notices, 2, "non-Seoul records filtered out")

	assert.Equal(t, "강남구 지반침하 사고", notices[0].Title)
	assert.Equal(t, "2025-06-01", notices[0].Date)
	assert.Equal(t, "국토교통부", notices[0].Source)
	assert.Equal(t, "상세정보 없음", notices[1].Description)

	filtered, err := s.Notices(context.Background(), "강남", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "N-1", filtered[0].ID)

	capped, err := s.Notices(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	assert.Equal(t, int32(1), g.noticeCalls.Load(), "feed fetched once, filters served from cache")
}

func TestLookup_Notices_UpstreamError(t *testing.T) {
	clk := frozenAt(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	g := &stubGateway{
		noticFn: func(context.Context, int, int) ([]domain.IncidentRecord, error) {
			return nil, errors.New("feed down")
		},
	}
	s := newTestLookup(g, clk)

	_, err := s.Notices(context.Background(), "", 10)
	require.Error(t, err)
}
