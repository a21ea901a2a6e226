package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// JobHandler executes one execution message. A returned error dead-letters
// the message.
type JobHandler func(ctx context.Context, msg *JobExecutionMessage) error

type JobWorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
}

func DefaultJobWorkerConfig() JobWorkerConfig {
	return JobWorkerConfig{
		Concurrency:  DefaultWorkerConcurrency,
		PollInterval: DefaultWorkerPollInterval,
	}
}

// JobWorker pulls execution messages from a JobDequeuer and routes them to
// handlers keyed by job id.
type JobWorker struct {
	dequeuer JobDequeuer
	config   JobWorkerConfig
	hook     JobWorkerHook
	observer Observer
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewJobWorker(dequeuer JobDequeuer, config JobWorkerConfig) (*JobWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("core: job dequeuer is required")
	}
	defaults := DefaultJobWorkerConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	return &JobWorker{
		dequeuer: dequeuer,
		config:   config,
		handlers: map[string]JobHandler{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (w *JobWorker) WithHook(hook JobWorkerHook) *JobWorker {
	if w != nil {
		w.hook = hook
	}
	return w
}

func (w *JobWorker) WithObserver(observer Observer) *JobWorker {
	if w != nil {
		w.observer = observer
	}
	return w
}

func (w *JobWorker) WithClock(now func() time.Time) *JobWorker {
	if w != nil && now != nil {
		w.now = now
	}
	return w
}

func (w *JobWorker) Handle(jobID string, handler JobHandler) error {
	if w == nil {
		return fmt.Errorf("core: job worker is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("core: job id is required")
	}
	if handler == nil {
		return fmt.Errorf("core: job handler is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.handlers[jobID]; exists {
		return fmt.Errorf("core: job handler %q already registered", jobID)
	}
	w.handlers[jobID] = handler
	return nil
}

// ProcessNext handles at most one message. It reports false when nothing was
// runnable.
func (w *JobWorker) ProcessNext(ctx context.Context) (bool, error) {
	if w == nil || w.dequeuer == nil {
		return false, fmt.Errorf("core: job worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if errors.Is(err, ErrNoJobAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	if msg == nil {
		nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
		return true, joinErrors(fmt.Errorf("core: delivery carried no execution message"), nackErr)
	}

	now := w.now()
	if !msg.AvailableAt.IsZero() && msg.AvailableAt.After(now) {
		return false, delivery.Nack(ctx, JobNackOptions{
			Delay:   msg.AvailableAt.Sub(now),
			Requeue: true,
			Reason:  "not due",
		})
	}

	event := JobWorkerEvent{
		Message:   msg,
		Attempt:   messageAttempt(msg),
		StartedAt: now,
	}

	handler := w.handler(msg.JobID)
	if handler == nil {
		event.Err = fmt.Errorf("core: no handler registered for job %q", msg.JobID)
		w.onFailure(ctx, event)
		nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: event.Err.Error()})
		return true, joinErrors(event.Err, nackErr)
	}

	w.onStart(ctx, event)
	runErr := w.run(ctx, handler, msg)
	event.Duration = w.now().Sub(event.StartedAt)
	tags := map[string]string{"job_id": msg.JobID, "status": "success"}

	if runErr != nil {
		event.Err = runErr
		tags["status"] = "failure"
		w.observer.Counter(ctx, MetricJobsProcessed, 1, tags)
		w.onFailure(ctx, event)
		nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: runErr.Error()})
		return true, joinErrors(runErr, nackErr)
	}

	w.observer.Counter(ctx, MetricJobsProcessed, 1, tags)
	if err := delivery.Ack(ctx); err != nil {
		event.Err = err
		w.onFailure(ctx, event)
		return true, err
	}
	w.onSuccess(ctx, event)
	return true, nil
}

// Run polls until ctx is cancelled, using Concurrency goroutines.
func (w *JobWorker) Run(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("core: job worker is not configured")
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.config.Concurrency; i++ {
		slot := i
		group.Go(func() error {
			return w.loop(groupCtx, slot)
		})
	}
	return group.Wait()
}

func (w *JobWorker) loop(ctx context.Context, slot int) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.observer.Error(ctx, "job processing failed", map[string]any{
				"slot":  slot,
				"error": err.Error(),
			})
		}
		if processed {
			continue
		}
		timer := time.NewTimer(w.config.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (w *JobWorker) run(ctx context.Context, handler JobHandler, msg *JobExecutionMessage) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: job %q panicked: %v", msg.JobID, recovered)
		}
	}()
	return handler(ctx, msg)
}

func (w *JobWorker) handler(jobID string) JobHandler {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handlers[strings.TrimSpace(jobID)]
}

func (w *JobWorker) onStart(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *JobWorker) onSuccess(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *JobWorker) onFailure(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func messageAttempt(msg *JobExecutionMessage) int {
	if msg == nil || len(msg.Parameters) == 0 {
		return 0
	}
	switch typed := msg.Parameters[JobParamTryCount].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}
