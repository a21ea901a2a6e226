package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
)

const (
	JobIDNotifyHTTP = "ipn.notify_http"

	JobParamPayload  = "payload"
	JobParamTryCount = "try_count"
	JobParamInvoice  = "invoice_id"
)

// JobScheduler turns delivery jobs into execution messages for a JobEnqueuer.
type JobScheduler struct {
	enqueuer JobEnqueuer
	now      func() time.Time
}

func NewJobScheduler(enqueuer JobEnqueuer) (*JobScheduler, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("core: job enqueuer is required")
	}
	return &JobScheduler{
		enqueuer: enqueuer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *JobScheduler) WithClock(now func() time.Time) *JobScheduler {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *JobScheduler) Schedule(ctx context.Context, job DeliveryJob, delay time.Duration) error {
	if s == nil || s.enqueuer == nil {
		return NewError("core: job scheduler is not configured", goerrors.CategoryOperation, ErrorQueueUnavailable)
	}
	msg, err := NewDeliveryJobMessage(job, s.now().Add(nonNegative(delay)))
	if err != nil {
		return err
	}
	if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
		return WrapError(err, goerrors.CategoryOperation, ErrorQueueUnavailable, "core: enqueue delivery job failed")
	}
	return nil
}

// NewDeliveryJobMessage encodes job as an execution message that becomes
// runnable at availableAt.
func NewDeliveryJobMessage(job DeliveryJob, availableAt time.Time) (*JobExecutionMessage, error) {
	if strings.TrimSpace(job.Invoice.ID) == "" {
		return nil, NewError("core: delivery job invoice id is required", goerrors.CategoryBadInput, ErrorBadInput)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, WrapError(err, goerrors.CategoryInternal, ErrorInternal, "core: encode delivery job failed")
	}
	return &JobExecutionMessage{
		JobID:      JobIDNotifyHTTP,
		ScriptPath: JobIDNotifyHTTP,
		Parameters: map[string]any{
			JobParamPayload:  string(payload),
			JobParamTryCount: job.TryCount,
			JobParamInvoice:  job.Invoice.ID,
		},
		IdempotencyKey: fmt.Sprintf("%s#%d", job.Identity(), job.TryCount),
		AvailableAt:    availableAt,
	}, nil
}

// DeliveryJobPayload extracts the encoded job from an execution message.
func DeliveryJobPayload(msg *JobExecutionMessage) ([]byte, error) {
	if msg == nil {
		return nil, NewError("core: execution message is required", goerrors.CategoryBadInput, ErrorJobDecodeFailed)
	}
	switch typed := msg.Parameters[JobParamPayload].(type) {
	case string:
		return []byte(typed), nil
	case []byte:
		return typed, nil
	case nil:
		return nil, NewError("core: execution message has no payload", goerrors.CategoryBadInput, ErrorJobDecodeFailed)
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return nil, WrapError(err, goerrors.CategoryBadInput, ErrorJobDecodeFailed, "core: execution message payload is not encodable")
		}
		return raw, nil
	}
}

func DecodeDeliveryJob(payload []byte) (DeliveryJob, error) {
	var job DeliveryJob
	if len(payload) == 0 {
		return DeliveryJob{}, NewError("core: delivery job payload is empty", goerrors.CategoryBadInput, ErrorJobDecodeFailed)
	}
	if err := json.Unmarshal(payload, &job); err != nil {
		return DeliveryJob{}, WrapError(err, goerrors.CategoryBadInput, ErrorJobDecodeFailed, "core: decode delivery job failed")
	}
	return job, nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
