package molit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
	"github.com/groundwatch/sinkhole-risk-service/internal/observability"
)

const (
	listEndpoint       = "getSubsidenceList01"
	infoEndpoint       = "getSubsidenceInfo01"
	evaluationEndpoint = "getSubsidenceEvalutionList01"
)

// Backoff controls the rate-limit retry policy: how many attempts a request
// gets in total and how long to sleep before the retry. The sleep runs on the
// injected clock so tests can accelerate it.
type Backoff struct {
	Attempts int
	Delay    time.Duration
}

// Client talks to the MOLIT underground-safety open API (data.go.kr) and the
// safetydata.go.kr incident feed, normalizing either into IncidentRecords.
type Client struct {
	key        string
	baseURL    string
	noticeURL  string
	format     string // "json" or "xml" via the type query parameter
	httpClient *http.Client
	backoff    Backoff
	clock      clockwork.Clock
	pacer      *rate.Limiter // spaces successive detail requests in a batch
	pages      *gocache.Cache
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options configures a Client. Zero-value fields get production defaults.
type Options struct {
	Key         string
	BaseURL     string
	NoticeURL   string
	Format      string
	Timeout     time.Duration
	Backoff     Backoff
	DetailDelay time.Duration
	PageTTL     time.Duration
	Clock       clockwork.Clock
}

// NewClient creates a MOLIT API client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.Format == "" {
		opts.Format = "json"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff.Attempts <= 0 {
		opts.Backoff = Backoff{Attempts: 2, Delay: 15 * time.Second}
	}
	if opts.DetailDelay <= 0 {
		opts.DetailDelay = 3 * time.Second
	}
	if opts.PageTTL <= 0 {
		opts.PageTTL = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Client{
		key:        opts.Key,
		baseURL:    opts.BaseURL,
		noticeURL:  opts.NoticeURL,
		format:     opts.Format,
		httpClient: &http.Client{Timeout: opts.Timeout},
		backoff:    opts.Backoff,
		clock:      opts.Clock,
		pacer:      rate.NewLimiter(rate.Every(opts.DetailDelay), 1),
		pages:      gocache.New(opts.PageTTL, 10*time.Minute),
		metrics:    metrics,
		logger:     logger,
	}
}

// ListIncidents fetches one page of the subsidence accident list for a date
// range. Pages are cached for the configured TTL so a refresh pass never
// refetches the same page. An empty slice means the page is past the end.
func (c *Client) ListIncidents(ctx context.Context, dateFrom, dateTo string, pageNo, pageSize int) ([]domain.IncidentRecord, error) {
	cacheKey := fmt.Sprintf("%s|%s|%d|%d", dateFrom, dateTo, pageNo, pageSize)
	if hit, ok := c.pages.Get(cacheKey); ok {
		c.metrics.PageCache.WithLabelValues("hit").Inc()
		return hit.([]domain.IncidentRecord), nil
	}
	c.metrics.PageCache.WithLabelValues("miss").Inc()

	params := url.Values{
		"pageNo":    {fmt.Sprint(pageNo)},
		"numOfRows": {fmt.Sprint(pageSize)},
		"type":      {c.format},
	}
	if dateFrom != "" {
		params.Set("sagoDateFrom", dateFrom)
	}
	if dateTo != "" {
		params.Set("sagoDateTo", dateTo)
	}

	records, err := c.fetch(ctx, listEndpoint, c.buildURL(c.baseURL, listEndpoint, params))
	if err != nil {
		return nil, err
	}
	c.pages.SetDefault(cacheKey, records)
	return records, nil
}

// GetIncident fetches the detail record for one incident identifier. The
// second return value is false when upstream has no record for the id.
func (c *Client) GetIncident(ctx context.Context, id string) (domain.IncidentRecord, bool, error) {
	params := url.Values{
		"sagoNo":    {id},
		"pageNo":    {"1"},
		"numOfRows": {"1"},
		"type":      {c.format},
	}
	records, err := c.fetch(ctx, infoEndpoint, c.buildURL(c.baseURL, infoEndpoint, params))
	if err != nil {
		return domain.IncidentRecord{}, false, err
	}
	if len(records) == 0 {
		return domain.IncidentRecord{}, false, nil
	}
	rec := records[0]
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, true, nil
}

// ListEvaluations fetches one page of official risk-evaluation records,
// optionally narrowed by district and neighborhood.
func (c *Client) ListEvaluations(ctx context.Context, district, dong string, pageNo, pageSize int) ([]domain.IncidentRecord, error) {
	params := url.Values{
		"pageNo":    {fmt.Sprint(pageNo)},
		"numOfRows": {fmt.Sprint(pageSize)},
		"type":      {c.format},
	}
	if district != "" {
		params.Set("siGunGu", district)
	}
	if dong != "" {
		params.Set("dong", dong)
	}
	return c.fetch(ctx, evaluationEndpoint, c.buildURL(c.baseURL, evaluationEndpoint, params))
}

// ListNotices fetches the flat safetydata.go.kr incident feed used for the
// notices endpoint. Returns an error when no notice URL is configured.
func (c *Client) ListNotices(ctx context.Context, pageNo, pageSize int) ([]domain.IncidentRecord, error) {
	if c.noticeURL == "" {
		return nil, fmt.Errorf("notice feed not configured")
	}
	params := url.Values{
		"pageNo":     {fmt.Sprint(pageNo)},
		"numOfRows":  {fmt.Sprint(pageSize)},
		"returnType": {c.format},
	}
	return c.fetch(ctx, "notices", c.buildURL(c.noticeURL, "", params))
}

// PaceDetail blocks until the next detail request may be sent. The limiter's
// burst of one lets the first request of a batch through immediately and
// spaces the rest, so no delay trails the final request.
func (c *Client) PaceDetail(ctx context.Context) error {
	return c.pacer.Wait(ctx)
}

// buildURL appends the service key raw, never re-encoded: data.go.kr issues
// pre-encoded keys and double-encoding them breaks auth. Everything else goes
// through url.Values encoding.
func (c *Client) buildURL(base, endpoint string, params url.Values) string {
	u := base
	if endpoint != "" {
		u += "/" + endpoint
	}
	u += "?serviceKey=" + c.key
	if qs := params.Encode(); qs != "" {
		u += "&" + qs
	}
	return u
}

// fetch performs the request with the rate-limit retry policy and parses the
// body into incident records.
func (c *Client) fetch(ctx context.Context, endpoint, fullURL string) ([]domain.IncidentRecord, error) {
	body, err := c.do(ctx, endpoint, fullURL)
	if err != nil {
		return nil, err
	}

	items, err := parseItems(body, c.format)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "malformed").Inc()
		return nil, err
	}

	records := make([]domain.IncidentRecord, 0, len(items))
	for _, it := range items {
		records = append(records, it.incident())
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := c.doOnce(ctx, endpoint, fullURL)
		if err == nil {
			return body, nil
		}
		if !IsRateLimited(err) || attempt >= c.backoff.Attempts {
			return nil, err
		}

		c.metrics.RateLimitRetries.Inc()
		c.logger.Warn("upstream rate limited, backing off",
			"endpoint", endpoint,
			"delay", c.backoff.Delay,
			"attempt", attempt,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.backoff.Delay):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/"+c.format)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("molit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, fmt.Sprint(resp.StatusCode)).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}

	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	return io.ReadAll(resp.Body)
}
