package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// defaultBatchSize bounds the number of messages passed to one WriteMessages call.
const defaultBatchSize = 500

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes footprint records to a Kafka topic, one message per record
// keyed by event id so all cells of an event land on the same partition.
//
// A failed Write remembers how many records of the run were published, so a
// retry of the same run resumes at the first unpublished batch. Delivery is
// still at-least-once: a batch the broker accepted but did not acknowledge is
// sent again.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	progress publishProgress
}

// publishProgress is the number of records of a run already published.
type publishProgress struct {
	runID string
	sent  int
}

// NewWriter creates a Kafka producer for the footprint topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, batchSize: defaultBatchSize, logger: logger}
}

// Name identifies the sink in logs.
func (w *Writer) Name() string { return "kafka" }

// Write publishes every footprint record of the run in batches.
func (w *Writer) Write(ctx context.Context, out *domain.RunOutput) error {
	if len(out.Footprint) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	first := 0
	if w.progress.runID == out.Manifest.RunID {
		first = w.progress.sent
	}
	if first > 0 {
		w.logger.Info("resuming footprint publish", "run_id", out.Manifest.RunID, "published", first)
	}

	h := runHeaders(out.Manifest)
	for start := first; start < len(out.Footprint); start += w.batchSize {
		end := min(start+w.batchSize, len(out.Footprint))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, rec := range out.Footprint[start:end] {
			msg, err := serializeToMessage(rec, h)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish footprint records %d-%d: %w", start, end, err)
		}
		w.progress = publishProgress{runID: out.Manifest.RunID, sent: end}
	}
	w.logger.Info("footprint published", "records", len(out.Footprint), "run_id", out.Manifest.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func runHeaders(m domain.Manifest) []kafkago.Header {
	return []kafkago.Header{
		{Key: "run_id", Value: []byte(m.RunID)},
		{Key: "rmax_estimator", Value: []byte(m.RmaxEstimator)},
		{Key: "generated_at", Value: []byte(m.GeneratedAt.Format(time.RFC3339))},
	}
}

// serializeToMessage marshals a FootprintRecord into a Kafka message.
func serializeToMessage(rec domain.FootprintRecord, headers []kafkago.Header) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize footprint record: %w", err)
	}
	return kafkago.Message{
		Key:     []byte(strconv.Itoa(rec.EventID)),
		Value:   data,
		Headers: headers,
	}, nil
}
