package aggregate

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
	"github.com/groundwatch/sinkhole-risk-service/internal/observability"
)

// stubGateway implements Gateway with per-method hooks. Unset hooks return
// empty results. Call counters let tests assert upstream traffic shape.
type stubGateway struct {
	listFn  func(ctx context.Context, from, to string, page, size int) ([]domain.IncidentRecord, error)
	getFn   func(ctx context.Context, id string) (domain.IncidentRecord, bool, error)
	evalFn  func(ctx context.Context, district, dong string, page, size int) ([]domain.IncidentRecord, error)
	noticFn func(ctx context.Context, page, size int) ([]domain.IncidentRecord, error)

	listCalls   atomic.Int32
	getCalls    atomic.Int32
	evalCalls   atomic.Int32
	noticeCalls atomic.Int32
	paceCalls   atomic.Int32
}

func (g *stubGateway) ListIncidents(ctx context.Context, from, to string, page, size int) ([]domain.IncidentRecord, error) {
	g.listCalls.Add(1)
	if g.listFn == nil {
		return nil, nil
	}
	return g.listFn(ctx, from, to, page, size)
}

func (g *stubGateway) GetIncident(ctx context.Context, id string) (domain.IncidentRecord, bool, error) {
	g.getCalls.Add(1)
	if g.getFn == nil {
		return domain.IncidentRecord{}, false, nil
	}
	return g.getFn(ctx, id)
}

func (g *stubGateway) ListEvaluations(ctx context.Context, district, dong string, page, size int) ([]domain.IncidentRecord, error) {
	g.evalCalls.Add(1)
	if g.evalFn == nil {
		return nil, nil
	}
	return g.evalFn(ctx, district, dong, page, size)
}

func (g *stubGateway) ListNotices(ctx context.Context, page, size int) ([]domain.IncidentRecord, error) {
	g.noticeCalls.Add(1)
	if g.noticFn == nil {
		return nil, nil
	}
	return g.noticFn(ctx, page, size)
}

func (g *stubGateway) PaceDetail(_ context.Context) error {
	g.paceCalls.Add(1)
	return nil
}

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
