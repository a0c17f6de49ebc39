package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/rainfall-trend-etl/internal/config"
	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
	"github.com/couchcryptid/rainfall-trend-etl/internal/observability"
)

// Message types, carried in the "type" header.
const (
	TypeResult = "trend_result"
	TypeRun    = "run"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces a run's trend results to a Kafka topic, one message per
// result followed by a run summary. It implements pipeline.Sink.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured results topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaResultsTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

func (p *Publisher) Name() string { return "kafka" }

// Deliver publishes every result of the report in a single WriteMessages call.
func (p *Publisher) Deliver(ctx context.Context, report *domain.Report) error {
	msgs := make([]kafkago.Message, 0, len(report.Results)+1)
	for i := range report.Results {
		msg, err := resultMessage(report.Run, report.Results[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	summary, err := runMessage(report.Run)
	if err != nil {
		return err
	}
	msgs = append(msgs, summary)

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d messages: %w", len(msgs), err)
	}
	p.metrics.ResultsPublished.Add(float64(len(report.Results)))
	p.logger.Info("results published", "run_id", report.Run.ID, "results", len(report.Results))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// resultPayload is the JSON value of a result message.
type resultPayload struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Result      domain.TrendResult `json:"result"`
}

// resultMessage marshals a TrendResult into a Kafka message keyed by station
// and level, so a compacted topic keeps the latest result of each pair.
func resultMessage(run domain.Run, res domain.TrendResult) (kafkago.Message, error) {
	data, err := json.Marshal(resultPayload{RunID: run.ID, GeneratedAt: run.GeneratedAt, Result: res})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize trend result %s/%s: %w", res.StationID, res.Level, err)
	}
	return kafkago.Message{
		Key:   []byte(res.StationID + "|" + res.Level.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(TypeResult)},
			{Key: "run_id", Value: []byte(run.ID)},
			{Key: "level", Value: []byte(res.Level.String())},
			{Key: "trend", Value: []byte(res.Trend())},
			{Key: "generated_at", Value: []byte(run.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

func runMessage(run domain.Run) (kafkago.Message, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run: %w", err)
	}
	return kafkago.Message{
		Key:   []byte("run"),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(TypeRun)},
			{Key: "run_id", Value: []byte(run.ID)},
			{Key: "generated_at", Value: []byte(run.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
