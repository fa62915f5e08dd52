package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/prepbufr-etl/internal/config"
	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

// maxMessageBytes caps the JSON value of one message. It stays under the
// broker's default message.max.bytes (1048588) with room for key, headers
// and record overhead. Topics configured for larger messages still get
// parts of this size.
const maxMessageBytes = 1_000_000

// ErrReportTooLarge is returned when a single report cannot fit in one
// message.
var ErrReportTooLarge = errors.New("report exceeds kafka message size")

// Writer publishes report batches to a Kafka topic as JSON. A batch whose
// encoding exceeds maxMessageBytes is split into consecutive parts that
// share the batch key. It implements pipeline.BatchLoader.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchBytes:   maxMessageBytes + 64<<10,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// LoadBatch serializes the batch and publishes it keyed by batch name so
// reruns of the same window land on the same partition.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReportBatch) error {
	if len(batch.Reports) == 0 {
		return nil
	}
	msgs, err := serializeToMessages(batch, maxMessageBytes)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish batch %s: %w", batch.Name, err)
	}
	w.metrics.BatchesWritten.WithLabelValues("kafka").Inc()
	w.logger.Info("batch published", "batch", batch.Name, "topic", w.writer.Topic, "reports", len(batch.Reports), "parts", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessages marshals a ReportBatch into as few messages as keep
// every value within limit bytes. Reports keep their order across parts.
func serializeToMessages(batch domain.ReportBatch, limit int) ([]kafkago.Message, error) {
	parts, err := splitReports(batch, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]kafkago.Message, len(parts))
	for i, part := range parts {
		msgs[i] = message(batch, part.reports, part.value)
		msgs[i].Headers = append(msgs[i].Headers,
			kafkago.Header{Key: "part", Value: []byte(strconv.Itoa(i + 1))},
			kafkago.Header{Key: "parts", Value: []byte(strconv.Itoa(len(parts)))},
		)
	}
	return msgs, nil
}

type encodedPart struct {
	reports int
	value   []byte
}

// splitReports halves the report list until each half encodes within limit.
func splitReports(batch domain.ReportBatch, limit int) ([]encodedPart, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("serialize report batch: %w", err)
	}
	if len(data) <= limit {
		return []encodedPart{{reports: len(batch.Reports), value: data}}, nil
	}
	if len(batch.Reports) <= 1 {
		return nil, fmt.Errorf("batch %s: %w: %d bytes, limit %d", batch.Name, ErrReportTooLarge, len(data), limit)
	}

	mid := len(batch.Reports) / 2
	head, tail := batch, batch
	head.Reports = batch.Reports[:mid]
	tail.Reports = batch.Reports[mid:]

	left, err := splitReports(head, limit)
	if err != nil {
		return nil, err
	}
	right, err := splitReports(tail, limit)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func message(batch domain.ReportBatch, reports int, data []byte) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(batch.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(batch.RunID)},
			{Key: "label", Value: []byte(batch.Label.UTC().Format(time.RFC3339))},
			{Key: "message_date", Value: []byte(strconv.Itoa(domain.CycleDate(batch.Label)))},
			{Key: "reports", Value: []byte(strconv.Itoa(reports))},
			{Key: "created_at", Value: []byte(batch.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}
}
