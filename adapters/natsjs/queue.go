package natsjs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ipn/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultStream        = "IPN_JOBS"
	DefaultSubjectPrefix = "ipn.jobs"
	DefaultConsumer      = "ipn-worker"
	DefaultAckWait       = time.Minute
	DefaultFetchWait     = 500 * time.Millisecond
)

type Config struct {
	Stream        string
	SubjectPrefix string
	Consumer      string
	AckWait       time.Duration
	FetchWait     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Stream:        DefaultStream,
		SubjectPrefix: DefaultSubjectPrefix,
		Consumer:      DefaultConsumer,
		AckWait:       DefaultAckWait,
		FetchWait:     DefaultFetchWait,
	}
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Stream) == "" {
		c.Stream = defaults.Stream
	}
	c.SubjectPrefix = strings.TrimSuffix(strings.TrimSpace(c.SubjectPrefix), ".")
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaults.SubjectPrefix
	}
	if strings.TrimSpace(c.Consumer) == "" {
		c.Consumer = defaults.Consumer
	}
	if c.AckWait <= 0 {
		c.AckWait = defaults.AckWait
	}
	if c.FetchWait <= 0 {
		c.FetchWait = defaults.FetchWait
	}
	return c
}

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

type ackMessage interface {
	Data() []byte
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// Queue is a durable job queue on a JetStream work-queue stream. Messages are
// published immediately; a message that is not yet due is negatively
// acknowledged with the remaining delay by the worker.
type Queue struct {
	config    Config
	publisher publisher
	fetcher   fetcher
	conn      *nats.Conn
}

// Connect dials NATS and provisions the stream and durable consumer.
func Connect(ctx context.Context, url string, cfg Config) (*Queue, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("natsjs: connect: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsjs: jetstream context: %w", err)
	}
	queue, err := NewQueue(ctx, js, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	queue.conn = conn
	return queue, nil
}

// NewQueue provisions the stream and durable pull consumer on js.
func NewQueue(ctx context.Context, js jetstream.JetStream, cfg Config) (*Queue, error) {
	if js == nil {
		return nil, fmt.Errorf("natsjs: jetstream is required")
	}
	cfg = cfg.normalized()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Retention: jetstream.WorkQueuePolicy,
	}); err != nil {
		return nil, fmt.Errorf("natsjs: create stream: %w", err)
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		FilterSubject: cfg.SubjectPrefix + ".>",
	})
	if err != nil {
		return nil, fmt.Errorf("natsjs: create consumer: %w", err)
	}
	return newQueue(js, consumer, cfg), nil
}

func newQueue(pub publisher, fetch fetcher, cfg Config) *Queue {
	return &Queue{config: cfg.normalized(), publisher: pub, fetcher: fetch}
}

func (q *Queue) Close() error {
	if q != nil && q.conn != nil {
		q.conn.Close()
	}
	return nil
}

func (q *Queue) Subject(jobID string) string {
	return q.config.SubjectPrefix + "." + strings.TrimSpace(jobID)
}

func (q *Queue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if q == nil || q.publisher == nil {
		return core.NewError("natsjs: queue is not configured", goerrors.CategoryOperation, core.ErrorQueueUnavailable)
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return core.NewError("natsjs: job id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if _, err := q.publisher.Publish(ctx, q.Subject(msg.JobID), payload); err != nil {
		return core.WrapError(err, goerrors.CategoryOperation, core.ErrorQueueUnavailable, "natsjs: publish job failed")
	}
	return nil
}

// Dequeue fetches one message, waiting at most FetchWait.
func (q *Queue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil || q.fetcher == nil {
		return nil, core.NewError("natsjs: queue is not configured", goerrors.CategoryOperation, core.ErrorQueueUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := q.fetcher.Fetch(1, jetstream.FetchMaxWait(q.config.FetchWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, core.ErrNoJobAvailable
		}
		return nil, core.WrapError(err, goerrors.CategoryOperation, core.ErrorQueueUnavailable, "natsjs: fetch failed")
	}
	if raw, ok := <-batch.Messages(); ok && raw != nil {
		return newDelivery(raw)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return nil, core.WrapError(err, goerrors.CategoryOperation, core.ErrorQueueUnavailable, "natsjs: fetch failed")
	}
	return nil, core.ErrNoJobAvailable
}

type delivery struct {
	raw ackMessage
	msg *core.JobExecutionMessage
}

func newDelivery(raw ackMessage) (core.JobDelivery, error) {
	msg, err := decodeMessage(raw.Data())
	if err != nil {
		// Undecodable messages would be redelivered forever.
		_ = raw.Term()
		return nil, err
	}
	return &delivery{raw: raw, msg: msg}, nil
}

func (d *delivery) Message() *core.JobExecutionMessage {
	if d == nil {
		return nil
	}
	return d.msg
}

func (d *delivery) Ack(context.Context) error {
	return d.raw.Ack()
}

func (d *delivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	switch {
	case opts.DeadLetter:
		return d.raw.Term()
	case opts.Requeue && opts.Delay > 0:
		return d.raw.NakWithDelay(opts.Delay)
	case opts.Requeue:
		return d.raw.Nak()
	default:
		return d.raw.Term()
	}
}

type wireMessage struct {
	JobID          string         `json:"job_id"`
	ScriptPath     string         `json:"script_path,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	DedupPolicy    string         `json:"dedup_policy,omitempty"`
	AvailableAt    *time.Time     `json:"available_at,omitempty"`
}

func encodeMessage(msg *core.JobExecutionMessage) ([]byte, error) {
	wire := wireMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     msg.ScriptPath,
		Parameters:     msg.Parameters,
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    msg.DedupPolicy,
	}
	if !msg.AvailableAt.IsZero() {
		availableAt := msg.AvailableAt.UTC()
		wire.AvailableAt = &availableAt
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, core.ErrorInternal, "natsjs: encode job failed")
	}
	return payload, nil
}

func decodeMessage(payload []byte) (*core.JobExecutionMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryBadInput, core.ErrorJobDecodeFailed, "natsjs: decode job failed")
	}
	if strings.TrimSpace(wire.JobID) == "" {
		return nil, core.NewError("natsjs: job message has no job id", goerrors.CategoryBadInput, core.ErrorJobDecodeFailed)
	}
	msg := &core.JobExecutionMessage{
		JobID:          wire.JobID,
		ScriptPath:     wire.ScriptPath,
		Parameters:     wire.Parameters,
		IdempotencyKey: wire.IdempotencyKey,
		DedupPolicy:    wire.DedupPolicy,
	}
	if msg.Parameters == nil {
		msg.Parameters = map[string]any{}
	}
	if wire.AvailableAt != nil {
		msg.AvailableAt = *wire.AvailableAt
	}
	return msg, nil
}

var (
	_ core.JobEnqueuer = (*Queue)(nil)
	_ core.JobDequeuer = (*Queue)(nil)
	_ core.JobDelivery = (*delivery)(nil)
	_ ackMessage       = (jetstream.Msg)(nil)
)
