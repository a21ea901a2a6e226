package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ipn/core"
)

const maxDrainBytes = 64 << 10

type ExecutorOption func(*Executor)

func WithGuard(guard *ExecutionGuard) ExecutorOption {
	return func(e *Executor) {
		if guard != nil {
			e.guard = guard
		}
	}
}

func WithRetryPlanner(planner RetryPlanner) ExecutorOption {
	return func(e *Executor) {
		e.planner = planner
	}
}

func WithAttemptLedger(ledger core.DeliveryAttemptLedger) ExecutorOption {
	return func(e *Executor) {
		e.ledger = ledger
	}
}

func WithObserver(observer core.Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = observer
	}
}

func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithUserAgent(userAgent string) ExecutorOption {
	return func(e *Executor) {
		if ua := strings.TrimSpace(userAgent); ua != "" {
			e.userAgent = ua
		}
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor performs guarded delivery attempts and owns the retry loop for
// jobs coming back from the durable queue.
type Executor struct {
	client    *http.Client
	publisher core.EventPublisher
	queue     core.DurableJobQueue
	guard     *ExecutionGuard
	planner   RetryPlanner
	ledger    core.DeliveryAttemptLedger
	observer  core.Observer
	timeout   time.Duration
	userAgent string
	now       func() time.Time
}

// NewExecutor wires an executor around a shared HTTP client. A nil client
// falls back to a dedicated default client.
func NewExecutor(
	client *http.Client,
	publisher core.EventPublisher,
	queue core.DurableJobQueue,
	opts ...ExecutorOption,
) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	executor := &Executor{
		client:    client,
		publisher: publisher,
		queue:     queue,
		guard:     NewExecutionGuard(),
		planner:   DefaultRetryPlanner(),
		observer:  core.NewObserver(nil, nil),
		timeout:   core.DefaultDeliveryTimeout,
		userAgent: core.DefaultUserAgent,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(executor)
		}
	}
	return executor
}

func (e *Executor) Guard() *ExecutionGuard {
	if e == nil {
		return nil
	}
	return e.guard
}

// Attempt posts the notification once and classifies the result. It never
// returns an error: every failure is folded into the Outcome.
func (e *Executor) Attempt(ctx context.Context, job core.DeliveryJob) Outcome {
	if e == nil || e.client == nil {
		return transportOutcome(fmt.Errorf("webhooks: executor is not configured"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := e.now()

	body, err := BuildPayload(job.Invoice, job.Event())
	if err != nil {
		return e.finish(transportOutcome(err), startedAt)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, strings.TrimSpace(job.Invoice.NotificationURL), bytes.NewReader(body))
	if err != nil {
		return e.finish(transportOutcome(err), startedAt)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if isAttemptTimeout(ctx, attemptCtx, err) {
			return e.finish(timeoutOutcome(), startedAt)
		}
		return e.finish(transportOutcome(err), startedAt)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return e.finish(classifyStatus(resp.StatusCode), startedAt)
}

// Deliver runs one guarded attempt for job and publishes its outcome event.
// It reports false when another attempt for the same identity was already
// running; in that case nothing is published.
func (e *Executor) Deliver(ctx context.Context, job core.DeliveryJob) (Outcome, bool) {
	if e == nil {
		return Outcome{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	identity := job.Identity()
	fields := jobFields(job)

	if !e.guard.TryAcquire(identity) {
		e.observer.Debug(ctx, "Duplicate "+identity.String()+" dropped", fields)
		e.observer.Counter(ctx, core.MetricGuardDropped, 1, nil)
		return Outcome{}, false
	}

	outcome := e.guardedAttempt(ctx, job, identity, fields)
	e.record(ctx, job, outcome)
	return outcome, true
}

func (e *Executor) guardedAttempt(ctx context.Context, job core.DeliveryJob, identity core.JobIdentity, fields map[string]any) (outcome Outcome) {
	defer e.guard.Release(identity)
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = transportOutcome(fmt.Errorf("webhooks: delivery panicked: %v", recovered))
		}
	}()

	e.observer.Info(ctx, "Running "+identity.String(), fields)
	outcome = e.Attempt(ctx, job)
	e.logOutcome(ctx, identity, outcome, fields)
	e.publish(ctx, job, outcome)
	return outcome
}

// RunJob is the durable queue entry point. Delivery failures are handled by
// rescheduling and never surface as errors; only an undecodable payload does.
func (e *Executor) RunJob(ctx context.Context, payload []byte) error {
	if e == nil {
		return core.NewError("webhooks: executor is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	job, err := core.DecodeDeliveryJob(payload)
	if err != nil {
		e.observer.Error(ctx, "delivery job decode failed", map[string]any{"error": err.Error()})
		return err
	}
	if !job.Invoice.HasNotificationURL() {
		e.observer.Debug(ctx, "delivery job has no notification url", jobFields(job))
		return nil
	}

	outcome, ran := e.Deliver(ctx, job)
	if !ran {
		return nil
	}
	e.planRetry(ctx, job, outcome)
	return nil
}

func (e *Executor) planRetry(ctx context.Context, job core.DeliveryJob, outcome Outcome) {
	decision := e.planner.Plan(outcome, job.TryCount)
	identity := job.Identity()
	fields := jobFields(job)

	if decision.Exhausted {
		e.observer.Warn(ctx, "Job "+identity.String()+" exhausted its tries", fields)
		e.observer.Counter(ctx, core.MetricDeliveryExhausted, 1, nil)
		return
	}
	if !decision.Retry {
		return
	}

	next := job.Next()
	fields["remaining_try"] = decision.Remaining
	fields["delay_ms"] = decision.Delay.Milliseconds()
	e.observer.Info(ctx, fmt.Sprintf("Rescheduling %s in %s, remaining try %d", identity, decision.Delay, decision.Remaining), fields)

	if e.queue == nil {
		e.observer.Error(ctx, "Rescheduling "+identity.String()+" failed: durable queue is not configured", fields)
		e.observer.Counter(ctx, core.MetricScheduleFailed, 1, nil)
		return
	}
	// A cancelled attempt must not cancel the reschedule.
	if err := e.queue.Schedule(context.WithoutCancel(ctx), next, decision.Delay); err != nil {
		fields["error"] = err.Error()
		e.observer.Error(ctx, "Rescheduling "+identity.String()+" failed", fields)
		e.observer.Counter(ctx, core.MetricScheduleFailed, 1, nil)
		return
	}
	e.observer.Counter(ctx, core.MetricDeliveryRescheduled, 1, nil)
}

func (e *Executor) publish(ctx context.Context, job core.DeliveryJob, outcome Outcome) {
	if e.publisher == nil {
		return
	}
	event := core.DeliveryOutcomeEvent{
		InvoiceID:  job.Invoice.ID,
		EventName:  job.EventName,
		Error:      outcome.Message(),
		OccurredAt: e.now(),
	}
	if job.EventCode != nil {
		code := *job.EventCode
		event.EventCode = &code
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		fields := jobFields(job)
		fields["error"] = err.Error()
		e.observer.Error(ctx, "delivery outcome publish failed", fields)
	}
}

func (e *Executor) record(ctx context.Context, job core.DeliveryJob, outcome Outcome) {
	tags := map[string]string{"outcome": string(outcome.Kind)}
	e.observer.Counter(ctx, core.MetricDeliveryTotal, 1, tags)
	e.observer.Histogram(ctx, core.MetricDeliveryDurationMS, float64(outcome.Duration.Milliseconds()), tags)

	if e.ledger == nil {
		return
	}
	attempt := core.DeliveryAttempt{
		JobIdentity: job.Identity(),
		InvoiceID:   job.Invoice.ID,
		TryCount:    job.TryCount,
		Outcome:     string(outcome.Kind),
		StatusCode:  outcome.StatusCode,
		Error:       outcome.Message(),
		Duration:    outcome.Duration,
		AttemptedAt: e.now(),
	}
	if err := e.ledger.Record(context.WithoutCancel(ctx), attempt); err != nil {
		fields := jobFields(job)
		fields["error"] = err.Error()
		e.observer.Warn(ctx, "delivery attempt record failed", fields)
	}
}

func (e *Executor) logOutcome(ctx context.Context, identity core.JobIdentity, outcome Outcome, fields map[string]any) {
	fields = copyFields(fields)
	fields["outcome"] = string(outcome.Kind)
	fields["duration_ms"] = outcome.Duration.Milliseconds()
	switch outcome.Kind {
	case OutcomeTimeout:
		e.observer.Info(ctx, "Job "+identity.String()+" timed out", fields)
	case OutcomeTransportError:
		e.observer.Info(ctx, "Job "+identity.String()+" threw exception "+outcome.Cause, fields)
	default:
		fields["status_code"] = outcome.StatusCode
		e.observer.Info(ctx, fmt.Sprintf("Job %s returned %d", identity, outcome.StatusCode), fields)
	}
}

func (e *Executor) finish(outcome Outcome, startedAt time.Time) Outcome {
	outcome.Duration = e.now().Sub(startedAt)
	if outcome.Duration < 0 {
		outcome.Duration = 0
	}
	return outcome
}

// isAttemptTimeout is true only when the attempt's own deadline fired, not
// when the caller cancelled.
func isAttemptTimeout(parent context.Context, attemptCtx context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func jobFields(job core.DeliveryJob) map[string]any {
	fields := map[string]any{
		"job_id":     job.Identity().String(),
		"invoice_id": job.Invoice.ID,
		"try_count":  job.TryCount,
	}
	if job.Invoice.HasNotificationURL() {
		fields["notification_url"] = job.Invoice.NotificationURL
	}
	if job.EventCode != nil {
		fields["event_code"] = *job.EventCode
		fields["event_name"] = job.EventName
	}
	return fields
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+4)
	for key, value := range fields {
		out[key] = value
	}
	return out
}
