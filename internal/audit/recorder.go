// Package audit publishes security events from the edge pipeline to Kafka.
//
// Recording is fire-and-forget: the request path never waits on, and never
// fails because of, the audit stream. Lost audit events are an observability
// gap, not a correctness problem.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event kinds emitted by the pipeline.
const (
	KindRateLimitRejected = "rate_limit.rejected"
	KindHTTPSRedirected   = "https.redirected"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultBatchTimeout   = 100 * time.Millisecond
)

// Event is a single security decision made by the pipeline.
type Event struct {
	Kind      string    `json:"kind"`
	ClientKey string    `json:"clientKey,omitempty"`
	Path      string    `json:"path"`
	Detail    string    `json:"detail,omitempty"`
	Mode      string    `json:"mode"`
	At        time.Time `json:"at"`
}

// Recorder accepts pipeline security events.
//
// Implementations must be safe for concurrent use and must never block the
// caller beyond a short publish timeout.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// messageWriter is the subset of kafka.Writer the recorder needs.
// Narrowed for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRecorder publishes audit events to a Kafka topic as JSON.
type KafkaRecorder struct {
	writer  messageWriter
	logger  *slog.Logger
	timeout time.Duration
}

// NewKafkaRecorder creates a recorder publishing to the given brokers and topic.
func NewKafkaRecorder(brokers []string, topic string, logger *slog.Logger) *KafkaRecorder {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           defaultBatchTimeout,
		AllowAutoTopicCreation: true,
	}

	return &KafkaRecorder{
		writer:  writer,
		logger:  logger,
		timeout: defaultPublishTimeout,
	}
}

// Record publishes one event. Marshal or publish failures are logged and
// swallowed; the caller's request must not be affected by the audit stream.
func (r *KafkaRecorder) Record(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to marshal audit event",
			slog.String("kind", event.Kind),
			slog.String("error", err.Error()),
		)

		return
	}

	// Detach from the request context so client disconnects don't cancel the
	// publish, but still bound how long we wait.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.Kind),
		Value: payload,
	}

	if err := r.writer.WriteMessages(publishCtx, msg); err != nil {
		r.logger.Warn("failed to publish audit event",
			slog.String("kind", event.Kind),
			slog.String("path", event.Path),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes and closes the underlying Kafka writer.
func (r *KafkaRecorder) Close() error {
	return r.writer.Close()
}
