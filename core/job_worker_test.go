package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubDelivery struct {
	msg    *JobExecutionMessage
	acked  bool
	nacked []JobNackOptions
}

func (d *stubDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.nacked = append(d.nacked, opts)
	return nil
}

type stubDequeuer struct {
	mu         sync.Mutex
	deliveries []*stubDelivery
}

func (q *stubDequeuer) Dequeue(context.Context) (JobDelivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.deliveries) == 0 {
		return nil, ErrNoJobAvailable
	}
	next := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return next, nil
}

type recordingHook struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHook) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, name)
}

func (h *recordingHook) OnStart(context.Context, JobWorkerEvent)   { h.record("start") }
func (h *recordingHook) OnSuccess(context.Context, JobWorkerEvent) { h.record("success") }
func (h *recordingHook) OnFailure(context.Context, JobWorkerEvent) { h.record("failure") }
func (h *recordingHook) OnRetry(context.Context, JobWorkerEvent)   { h.record("retry") }

func TestJobWorker_ProcessNextAcksSuccessfulJob(t *testing.T) {
	delivery := &stubDelivery{msg: &JobExecutionMessage{JobID: JobIDNotifyHTTP, Parameters: map[string]any{JobParamTryCount: 3}}}
	hook := &recordingHook{}
	metrics := &captureMetricsRecorder{}
	worker, err := NewJobWorker(&stubDequeuer{deliveries: []*stubDelivery{delivery}}, JobWorkerConfig{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	worker.WithHook(hook).WithObserver(NewObserver(nil, metrics))

	var attempt int
	if err := worker.Handle(JobIDNotifyHTTP, func(_ context.Context, msg *JobExecutionMessage) error {
		attempt = messageAttempt(msg)
		return nil
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	processed, err := worker.ProcessNext(context.Background())
	if err != nil || !processed {
		t.Fatalf("expected processed message, got processed=%v err=%v", processed, err)
	}
	if !delivery.acked || len(delivery.nacked) != 0 {
		t.Fatalf("expected ack only, got acked=%v nacked=%v", delivery.acked, delivery.nacked)
	}
	if attempt != 3 {
		t.Fatalf("expected attempt 3, got %d", attempt)
	}
	if strings.Join(hook.events, ",") != "start,success" {
		t.Fatalf("unexpected hook sequence %v", hook.events)
	}
	if !hasCounter(metrics.counters, MetricJobsProcessed, "success") {
		t.Fatalf("expected processed counter")
	}
}

func TestJobWorker_ProcessNextDeadLettersFailures(t *testing.T) {
	failing := &stubDelivery{msg: &JobExecutionMessage{JobID: JobIDNotifyHTTP}}
	panicking := &stubDelivery{msg: &JobExecutionMessage{JobID: "panics"}}
	unknown := &stubDelivery{msg: &JobExecutionMessage{JobID: "unknown"}}
	worker, _ := NewJobWorker(&stubDequeuer{deliveries: []*stubDelivery{failing, panicking, unknown}}, JobWorkerConfig{})
	_ = worker.Handle(JobIDNotifyHTTP, func(context.Context, *JobExecutionMessage) error {
		return errors.New("payload corrupt")
	})
	_ = worker.Handle("panics", func(context.Context, *JobExecutionMessage) error {
		panic("boom")
	})

	for _, delivery := range []*stubDelivery{failing, panicking, unknown} {
		processed, err := worker.ProcessNext(context.Background())
		if !processed || err == nil {
			t.Fatalf("expected failure for %s, got processed=%v err=%v", delivery.msg.JobID, processed, err)
		}
		if delivery.acked {
			t.Fatalf("expected %s not to be acked", delivery.msg.JobID)
		}
		if len(delivery.nacked) != 1 || !delivery.nacked[0].DeadLetter {
			t.Fatalf("expected %s to be dead lettered, got %#v", delivery.msg.JobID, delivery.nacked)
		}
	}
}

func TestJobWorker_ProcessNextRequeuesMessagesNotYetDue(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	delivery := &stubDelivery{msg: &JobExecutionMessage{JobID: JobIDNotifyHTTP, AvailableAt: now.Add(time.Minute)}}
	worker, _ := NewJobWorker(&stubDequeuer{deliveries: []*stubDelivery{delivery}}, JobWorkerConfig{})
	worker.WithClock(func() time.Time { return now })
	ran := false
	_ = worker.Handle(JobIDNotifyHTTP, func(context.Context, *JobExecutionMessage) error {
		ran = true
		return nil
	})

	processed, err := worker.ProcessNext(context.Background())
	if err != nil || processed {
		t.Fatalf("expected no processing, got processed=%v err=%v", processed, err)
	}
	if ran {
		t.Fatalf("expected handler not to run early")
	}
	if len(delivery.nacked) != 1 || !delivery.nacked[0].Requeue || delivery.nacked[0].Delay != time.Minute {
		t.Fatalf("expected requeue with remaining delay, got %#v", delivery.nacked)
	}
}

func TestJobWorker_ProcessNextReportsEmptyQueue(t *testing.T) {
	worker, _ := NewJobWorker(&stubDequeuer{}, JobWorkerConfig{})
	processed, err := worker.ProcessNext(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle result, got processed=%v err=%v", processed, err)
	}
}

func TestJobWorker_HandleValidation(t *testing.T) {
	if _, err := NewJobWorker(nil, JobWorkerConfig{}); err == nil {
		t.Fatalf("expected nil dequeuer to fail")
	}
	worker, _ := NewJobWorker(&stubDequeuer{}, JobWorkerConfig{})
	noop := func(context.Context, *JobExecutionMessage) error { return nil }
	if err := worker.Handle(" ", noop); err == nil {
		t.Fatalf("expected blank job id to fail")
	}
	if err := worker.Handle(JobIDNotifyHTTP, nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
	if err := worker.Handle(JobIDNotifyHTTP, noop); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := worker.Handle(JobIDNotifyHTTP, noop); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJobWorker_RunDrainsQueueUntilCancelled(t *testing.T) {
	deliveries := make([]*stubDelivery, 0, 5)
	for range 5 {
		deliveries = append(deliveries, &stubDelivery{msg: &JobExecutionMessage{JobID: JobIDNotifyHTTP}})
	}
	worker, _ := NewJobWorker(&stubDequeuer{deliveries: deliveries}, JobWorkerConfig{Concurrency: 2, PollInterval: 5 * time.Millisecond})

	var mu sync.Mutex
	handled := 0
	done := make(chan struct{})
	_ = worker.Handle(JobIDNotifyHTTP, func(context.Context, *JobExecutionMessage) error {
		mu.Lock()
		defer mu.Unlock()
		handled++
		if handled == len(deliveries) {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- worker.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not drain queue")
	}
	cancel()
	if err := <-result; err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, delivery := range deliveries {
		if !delivery.acked {
			t.Fatalf("expected every delivery to be acked")
		}
	}
}
