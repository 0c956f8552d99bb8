//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/groundwatch/sinkhole-risk-service/internal/adapter/kafka"
	"github.com/groundwatch/sinkhole-risk-service/internal/aggregate"
	"github.com/groundwatch/sinkhole-risk-service/internal/config"
	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
)

const testRiskTopic = "seoul-sinkhole-risk"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-broker Kafka container and returns its bootstrap
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.6.1",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestPublishResults verifies the publisher round-trips a refreshed snapshot
// through real Kafka: one message per district result, keyed by district,
// stamped with the snapshot's fetch time.
func TestPublishResults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRiskTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testRiskTopic,
	}

	fetched := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	snap := &aggregate.Snapshot{
		Results: []domain.RiskResult{
			{District: "강남구", Dong: "역삼동", Score: 10, Grade: domain.GradeE, Danger: 5, AccidentCount: 3},
			{District: "송파구", Dong: "잠실동", Score: 70, Grade: domain.GradeB, Danger: 2, AccidentCount: 1},
		},
		Meta: aggregate.Meta{FetchedAt: fetched, DistinctLocations: 2},
	}

	publisher := kafkaadapter.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	require.NoError(t, publisher.PublishResults(ctx, snap))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testRiskTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	byDistrict := make(map[string]domain.RiskResult, len(snap.Results))
	for range snap.Results {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from risk topic")

		var result domain.RiskResult
		require.NoError(t, json.Unmarshal(msg.Value, &result))
		assert.Equal(t, result.District, string(msg.Key), "messages keyed by district")

		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "fetched_at", msg.Headers[0].Key)
		assert.Equal(t, fetched.Format(time.RFC3339), string(msg.Headers[0].Value))

		byDistrict[result.District] = result
	}

	require.Len(t, byDistrict, 2)
	assert.Equal(t, domain.GradeE, byDistrict["강남구"].Grade)
	assert.Equal(t, 3, byDistrict["강남구"].AccidentCount)
	assert.Equal(t, domain.GradeB, byDistrict["송파구"].Grade)

	// An empty snapshot publishes nothing and does not error.
	require.NoError(t, publisher.PublishResults(ctx, &aggregate.Snapshot{}))
}
