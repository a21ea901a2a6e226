package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// EventHandler reacts to one published event. Handlers run synchronously on
// the publishing goroutine.
type EventHandler func(ctx context.Context, event Event) error

// Subscription is the lease returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type EventSubscriber interface {
	Subscribe(kind EventKind, handler EventHandler) Subscription
}

// InvoiceSource resolves the current invoice state for an invoice id.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, invoiceID string) (InvoiceSnapshot, error)
}

// AuditSink is the append-only audit trail. Appends for one invoice must be
// stored in arrival order.
type AuditSink interface {
	AppendEvent(ctx context.Context, invoiceID string, event Event) error
}

type AuditRecord struct {
	ID        string
	InvoiceID string
	Sequence  int64
	Kind      EventKind
	Payload   map[string]any
	Error     string
	CreatedAt time.Time
}

type AuditReader interface {
	ListEvents(ctx context.Context, invoiceID string) ([]AuditRecord, error)
}

// DurableJobQueue schedules a delivery job for later execution. A scheduled
// job survives process restarts and is invoked at least once.
type DurableJobQueue interface {
	Schedule(ctx context.Context, job DeliveryJob, delay time.Duration) error
}

type DeliveryAttempt struct {
	JobIdentity JobIdentity
	InvoiceID   string
	TryCount    int
	Outcome     string
	StatusCode  int
	Error       string
	Duration    time.Duration
	AttemptedAt time.Time
}

// DeliveryAttemptLedger keeps a per-attempt history. It is observational and
// never consulted for retry decisions.
type DeliveryAttemptLedger interface {
	Record(ctx context.Context, attempt DeliveryAttempt) error
}

// ErrNoJobAvailable is returned by a JobDequeuer when nothing is due.
var ErrNoJobAvailable = errors.New("core: no job available")

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
	// AvailableAt is the earliest time the message may run. Zero means now.
	AvailableAt time.Time
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
