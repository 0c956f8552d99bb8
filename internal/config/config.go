package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// MOLIT underground-safety API.
	MolitAPIKey     string
	MolitBaseURL    string
	NoticeBaseURL   string
	ResponseType    string // "json" or "xml"
	UpstreamTimeout time.Duration
	RetryBackoff    time.Duration // sleep before the single 429 retry
	DetailDelay     time.Duration // spacing between detail requests in a batch

	// Aggregation.
	PageSize       int
	MaxPages       int
	LookbackMonths int
	DetailCap      int // hard cap on detail lookups per pass/query
	CacheTTL       time.Duration
	RefreshEvery   time.Duration

	// Optional Kafka publishing of refreshed city-wide results.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := parseDuration("UPSTREAM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	retryBackoff, err := parseDuration("RETRY_BACKOFF", "15s")
	if err != nil {
		return nil, err
	}
	detailDelay, err := parseDuration("DETAIL_DELAY", "3s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	refreshEvery, err := parseDuration("REFRESH_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}

	pageSize, err := parseInt("PAGE_SIZE", 500, 1, 1000)
	if err != nil {
		return nil, err
	}
	maxPages, err := parseInt("MAX_PAGES", 5, 1, 50)
	if err != nil {
		return nil, err
	}
	lookback, err := parseInt("LOOKBACK_MONTHS", 5, 1, 24)
	if err != nil {
		return nil, err
	}
	detailCap, err := parseInt("DETAIL_CAP", 80, 1, 1000)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := envOrDefault("KAFKA_ENABLED", "false") == "true"

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MolitAPIKey:     os.Getenv("MOLIT_API_KEY"),
		MolitBaseURL:    envOrDefault("MOLIT_BASE_URL", "https://apis.data.go.kr/1613000/undergroundsafetyinfo01"),
		NoticeBaseURL:   envOrDefault("NOTICE_BASE_URL", "https://www.safetydata.go.kr/V2/api/DSSP-IF-00754"),
		ResponseType:    envOrDefault("RESPONSE_TYPE", "json"),
		UpstreamTimeout: upstreamTimeout,
		RetryBackoff:    retryBackoff,
		DetailDelay:     detailDelay,

		PageSize:       pageSize,
		MaxPages:       maxPages,
		LookbackMonths: lookback,
		DetailCap:      detailCap,
		CacheTTL:       cacheTTL,
		RefreshEvery:   refreshEvery,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "neighborhood-risk-results"),
	}

	if cfg.MolitAPIKey == "" {
		return nil, fmt.Errorf("MOLIT_API_KEY is required")
	}
	if cfg.ResponseType != "json" && cfg.ResponseType != "xml" {
		return nil, fmt.Errorf("invalid RESPONSE_TYPE %q: must be json or xml", cfg.ResponseType)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, def, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d,%d]", key, min, max)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
