package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/groundwatch/sinkhole-risk-service/internal/adapter/httpapi"
	kafkaadapter "github.com/groundwatch/sinkhole-risk-service/internal/adapter/kafka"
	"github.com/groundwatch/sinkhole-risk-service/internal/adapter/molit"
	"github.com/groundwatch/sinkhole-risk-service/internal/aggregate"
	"github.com/groundwatch/sinkhole-risk-service/internal/config"
	"github.com/groundwatch/sinkhole-risk-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clk := clockwork.NewRealClock()

	gateway := molit.NewClient(molit.Options{
		Key:         cfg.MolitAPIKey,
		BaseURL:     cfg.MolitBaseURL,
		NoticeURL:   cfg.NoticeBaseURL,
		Format:      cfg.ResponseType,
		Timeout:     cfg.UpstreamTimeout,
		Backoff:     molit.Backoff{Attempts: 2, Delay: cfg.RetryBackoff},
		DetailDelay: cfg.DetailDelay,
		PageTTL:     cfg.CacheTTL,
		Clock:       clk,
	}, metrics, logger)

	refresher := aggregate.NewCityRefresher(gateway, aggregate.RefresherConfig{
		PageSize:       cfg.PageSize,
		MaxPages:       cfg.MaxPages,
		LookbackMonths: cfg.LookbackMonths,
		DetailCap:      cfg.DetailCap,
	}, clk, metrics, logger)

	// Result publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher aggregate.Publisher
	var kafkaPub *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPub
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	cache := aggregate.NewCityCache(refresher, publisher, cfg.RefreshEvery, clk, metrics, logger)

	lookup := aggregate.NewLookup(gateway, aggregate.LookupConfig{
		PageSize:  cfg.PageSize,
		MaxPages:  cfg.MaxPages,
		DetailCap: cfg.DetailCap,
		CacheTTL:  cfg.CacheTTL,
	}, clk, metrics, logger)

	srv := httpapi.NewServer(cfg.HTTPAddr, cache, lookup, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the city-wide refresh loop.
	go cache.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
