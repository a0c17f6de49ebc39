//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/rainfall-trend-etl/internal/adapter/kafka"
	"github.com/couchcryptid/rainfall-trend-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/mockdata"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
	"github.com/couchcryptid/rainfall-trend-etl/internal/pipeline"
)

const testResultsTopic = "test-rainfall-trend-results"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("rainfall-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

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
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// published is one message read back from the results topic.
type published struct {
	Key     string
	Headers map[string]string
	Value   []byte
}

func readAll(ctx context.Context, t *testing.T, broker, topic string, n int) []published {
	t.Helper()
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]published, 0, n)
	for len(out) < n {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err, "read message %d of %d", len(out)+1, n)
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		out = append(out, published{Key: string(msg.Key), Headers: headers, Value: msg.Value})
	}
	return out
}

// TestPipelinePublishesResults runs the full pipeline on a generated dataset
// with the Kafka publisher and the SQLite archive as sinks, then reads the
// results back from both.
func TestPipelinePublishesResults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testResultsTopic)

	root := t.TempDir()
	ds, err := mockdata.New(mockdata.Options{
		Stations:  5,
		StartYear: 1995,
		EndYear:   2010,
		Seed:      11,
		MaxTrend:  0.02,
	}).Write(filepath.Join(root, "data"))
	require.NoError(t, err)

	analysis := config.DefaultAnalysis()
	analysis.StartYear, analysis.EndYear = 1995, 2010
	analysis.GridResolution = 20_000

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaResultsTopic: testResultsTopic,
	}
	metrics := observability.NewMetricsForTesting()
	publisher := kafka.NewPublisher(cfg, metrics, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	archive, err := sqlite.Open(filepath.Join(root, "archive.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	p := pipeline.New(pipeline.Options{
		StationMetaPath: ds.MetaPath,
		DailyPath:       ds.DailyDir,
		BoundaryPath:    ds.BoundaryPath,
		OutputDir:       filepath.Join(root, "output"),
		Analysis:        analysis,
	}, nil, []pipeline.Sink{publisher, archive}, nil, metrics, discardLogger())

	rep, err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Results, 5*(1+len(analysis.Seasons)))

	// Kafka: one message per result, then the run summary.
	msgs := readAll(ctx, t, broker, testResultsTopic, len(rep.Results)+1)
	for i, res := range rep.Results {
		m := msgs[i]
		assert.Equal(t, res.StationID+"|"+res.Level.String(), m.Key)
		assert.Equal(t, kafka.TypeResult, m.Headers["type"])
		assert.Equal(t, rep.Run.ID, m.Headers["run_id"])
		assert.Equal(t, res.Trend(), m.Headers["trend"])

		var payload struct {
			RunID  string             `json:"run_id"`
			Result domain.TrendResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(m.Value, &payload))
		assert.Equal(t, rep.Run.ID, payload.RunID)
		assert.Equal(t, res.StationID, payload.Result.StationID)
		assert.Equal(t, res.Level, payload.Result.Level)
		assert.InDelta(t, res.SenSlope, payload.Result.SenSlope, 1e-9)
	}
	summary := msgs[len(msgs)-1]
	assert.Equal(t, "run", summary.Key)
	assert.Equal(t, kafka.TypeRun, summary.Headers["type"])

	var run domain.Run
	require.NoError(t, json.Unmarshal(summary.Value, &run))
	assert.Equal(t, rep.Run.ID, run.ID)
	assert.Equal(t, len(rep.Results), run.Results)

	// Archive: the same run and results.
	latest, artifacts, err := archive.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, rep.Run.ID, latest.ID)
	assert.ElementsMatch(t, rep.Artifacts, artifacts)

	annual, err := archive.Results(ctx, latest.ID, domain.Annual)
	require.NoError(t, err)
	assert.Len(t, annual, 5)
	require.NoError(t, archive.CheckReadiness(ctx))
}
