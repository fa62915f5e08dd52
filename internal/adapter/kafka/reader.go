package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/prepbufr-etl/internal/config"
	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

// Reader consumes raw observation records from a Kafka topic.
// It implements pipeline.Extractor and pipeline.Committer.
type Reader struct {
	reader    *kafkago.Reader
	batchSize int
	idle      time.Duration
	pending   []kafkago.Message
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Topic:       cfg.KafkaSourceTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{
		reader:    r,
		batchSize: cfg.BatchSize,
		idle:      cfg.BatchFlushInterval,
		metrics:   metrics,
		logger:    logger,
	}
}

// Extract drains the topic in rounds of up to batchSize messages until no
// message arrives for the idle interval. Offsets are held until Commit so
// a failed run re-reads the same records.
func (r *Reader) Extract(ctx context.Context) ([]domain.Observation, error) {
	var obs []domain.Observation
	for {
		msgs, err := r.fetchRound(ctx)
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			o, err := mapMessageToObservation(msg)
			if err != nil {
				r.metrics.ObservationsRejected.Inc()
				r.logger.Warn("skipping unreadable message",
					"error", err,
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
				)
				continue
			}
			obs = append(obs, o)
		}
		r.pending = append(r.pending, msgs...)

		if len(msgs) < r.batchSize {
			break
		}
	}

	obs = domain.Dedup(obs)
	r.logger.Info("observations consumed", "count", len(obs), "messages", len(r.pending))
	return obs, nil
}

// fetchRound reads up to batchSize messages, returning early once the
// topic has been idle for the flush interval.
func (r *Reader) fetchRound(ctx context.Context) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, 0, r.batchSize)
	for len(msgs) < r.batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, r.idle)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("fetch message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Commit acknowledges every message returned by Extract since the last commit.
func (r *Reader) Commit(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.reader.CommitMessages(ctx, r.pending...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	r.logger.Debug("offsets committed", "messages", len(r.pending))
	r.pending = r.pending[:0]
	return nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToObservation decodes a message value as one raw API record.
func mapMessageToObservation(msg kafkago.Message) (domain.Observation, error) {
	o, err := domain.ParseRawObservation(msg.Value)
	if err != nil {
		return domain.Observation{}, err
	}
	if o.ID == "" && len(msg.Key) > 0 {
		o.ID = string(msg.Key)
	}
	return o, nil
}
