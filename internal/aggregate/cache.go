package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
	"github.com/groundwatch/sinkhole-risk-service/internal/observability"
)

// Snapshot is one complete city-wide result set with its provenance metadata.
// Snapshots are immutable once published; a refresh builds a new one and
// swaps it in atomically.
type Snapshot struct {
	Results []domain.RiskResult `json:"data"`
	Meta    Meta                `json:"meta"`
}

// Meta describes how a snapshot was computed.
type Meta struct {
	Period            string    `json:"period"`
	TotalAccidents    int       `json:"totalAccidents"`
	SuccessCount      int       `json:"successCount"`
	FailCount         int       `json:"failCount"`
	DistinctLocations int       `json:"distinctLocations"`
	FetchedAt         time.Time `json:"fetchedAt"`
}

// Status reports the cache's observable state for the status endpoint.
type Status struct {
	HasData      bool
	IsUpdating   bool
	DataCount    int
	Age          time.Duration
	NextUpdateIn time.Duration
	LastFetched  time.Time
}

// Refresher computes a fresh city-wide snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*Snapshot, error)
}

// Publisher receives each successfully refreshed result set. Implementations
// must not fail the refresh: publish errors are logged and dropped.
type Publisher interface {
	PublishResults(ctx context.Context, snap *Snapshot) error
}

// CityCache owns the last successfully computed city-wide result set.
//
// State machine: Empty → Updating → Ready. A timer tick or RefreshNow moves
// Ready back to Updating; on completion the new snapshot is swapped in
// atomically, so readers never observe a partially-updated set. On refresh
// failure the previous snapshot stays: stale data beats no data once any
// pass has ever succeeded.
type CityCache struct {
	refresher Refresher
	publisher Publisher // nil disables publishing
	interval  time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	current  atomic.Pointer[Snapshot]
	updating atomic.Bool
}

// NewCityCache creates a cache that refreshes every interval once Run is
// started. Pass a nil publisher to disable result publishing.
func NewCityCache(r Refresher, p Publisher, interval time.Duration, clk clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *CityCache {
	return &CityCache{
		refresher: r,
		publisher: p,
		interval:  interval,
		clock:     clk,
		metrics:   metrics,
		logger:    logger,
	}
}

// Current returns the latest snapshot (nil before the first successful pass)
// together with the cache status.
func (c *CityCache) Current() (*Snapshot, Status) {
	return c.current.Load(), c.Status()
}

// Status reports the cache state without touching the snapshot contents.
func (c *CityCache) Status() Status {
	st := Status{IsUpdating: c.updating.Load()}
	snap := c.current.Load()
	if snap == nil {
		return st
	}
	st.HasData = true
	st.DataCount = len(snap.Results)
	st.LastFetched = snap.Meta.FetchedAt
	st.Age = c.clock.Since(snap.Meta.FetchedAt)
	if next := c.interval - st.Age; next > 0 {
		st.NextUpdateIn = next
	}
	return st
}

// RefreshNow starts an asynchronous refresh pass. It reports false, without
// queueing, when a pass is already running.
func (c *CityCache) RefreshNow(ctx context.Context) bool {
	if c.updating.Load() {
		return false
	}
	go c.runRefresh(ctx)
	return true
}

// CheckReadiness satisfies the HTTP readiness probe: the service is ready
// once one city-wide pass has completed.
func (c *CityCache) CheckReadiness(_ context.Context) error {
	if c.current.Load() == nil {
		return errors.New("city-wide cache has not completed a pass yet")
	}
	return nil
}

// Run populates the cache once at startup and then refreshes on a fixed
// interval until the context is cancelled.
func (c *CityCache) Run(ctx context.Context) {
	c.runRefresh(ctx)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("city cache stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			c.runRefresh(ctx)
		}
	}
}

// runRefresh executes one pass under the updating gate. A second caller
// observing the gate held is a no-op; there is never more than one in-flight
// pass issuing upstream load.
func (c *CityCache) runRefresh(ctx context.Context) {
	if !c.updating.CompareAndSwap(false, true) {
		return
	}
	defer c.updating.Store(false)

	c.metrics.CacheUpdating.Set(1)
	defer c.metrics.CacheUpdating.Set(0)

	start := c.clock.Now()
	snap, err := c.refresher.Refresh(ctx)
	if err != nil {
		c.metrics.RefreshPasses.WithLabelValues("failure").Inc()
		c.logger.Error("city-wide refresh failed, keeping previous snapshot", "error", err)
		return
	}

	c.current.Store(snap)
	c.metrics.RefreshPasses.WithLabelValues("success").Inc()
	c.metrics.RefreshDuration.Observe(c.clock.Since(start).Seconds())
	c.metrics.CacheLastRefresh.Set(float64(snap.Meta.FetchedAt.Unix()))
	c.logger.Info("city-wide refresh complete",
		"locations", snap.Meta.DistinctLocations,
		"accidents", snap.Meta.TotalAccidents,
		"failures", snap.Meta.FailCount,
		"duration", c.clock.Since(start),
	)

	if c.publisher != nil {
		if err := c.publisher.PublishResults(ctx, snap); err != nil {
			c.logger.Warn("publish refreshed results failed", "error", err)
		}
	}
}
