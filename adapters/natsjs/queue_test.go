package natsjs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-ipn/core"
	"github.com/nats-io/nats.go/jetstream"
)

type capturedPublish struct {
	subject string
	payload []byte
}

type stubPublisher struct {
	published []capturedPublish
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.published = append(p.published, capturedPublish{subject: subject, payload: payload})
	return &jetstream.PubAck{Stream: DefaultStream, Sequence: uint64(len(p.published))}, nil
}

type stubAckMessage struct {
	data   []byte
	calls  []string
	delays []time.Duration
}

func (m *stubAckMessage) Data() []byte { return m.data }
func (m *stubAckMessage) Ack() error   { m.calls = append(m.calls, "ack"); return nil }
func (m *stubAckMessage) Nak() error   { m.calls = append(m.calls, "nak"); return nil }
func (m *stubAckMessage) Term() error  { m.calls = append(m.calls, "term"); return nil }
func (m *stubAckMessage) NakWithDelay(delay time.Duration) error {
	m.calls = append(m.calls, "nak_delay")
	m.delays = append(m.delays, delay)
	return nil
}

func TestQueue_EnqueuePublishesOnJobSubject(t *testing.T) {
	pub := &stubPublisher{}
	queue := newQueue(pub, nil, Config{SubjectPrefix: "merchant.jobs."})
	availableAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	err := queue.Enqueue(context.Background(), &core.JobExecutionMessage{
		JobID:          core.JobIDNotifyHTTP,
		Parameters:     map[string]any{core.JobParamPayload: `{"tryCount":1}`, core.JobParamTryCount: 1},
		IdempotencyKey: "inv_1-paid-HTTP#1",
		AvailableAt:    availableAt,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.published))
	}
	if pub.published[0].subject != "merchant.jobs."+core.JobIDNotifyHTTP {
		t.Fatalf("unexpected subject %q", pub.published[0].subject)
	}

	decoded, err := decodeMessage(pub.published[0].payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.JobID != core.JobIDNotifyHTTP || decoded.IdempotencyKey != "inv_1-paid-HTTP#1" {
		t.Fatalf("unexpected decoded message %#v", decoded)
	}
	if !decoded.AvailableAt.Equal(availableAt) {
		t.Fatalf("expected available at to survive, got %s", decoded.AvailableAt)
	}
	payload, err := core.DeliveryJobPayload(decoded)
	if err != nil || string(payload) != `{"tryCount":1}` {
		t.Fatalf("expected payload to survive, got %q err=%v", payload, err)
	}
}

func TestQueue_EnqueueErrors(t *testing.T) {
	queue := newQueue(&stubPublisher{}, nil, Config{})
	if err := queue.Enqueue(context.Background(), &core.JobExecutionMessage{}); err == nil {
		t.Fatalf("expected missing job id to fail")
	}
	queue = newQueue(&stubPublisher{err: errors.New("no responders")}, nil, Config{})
	err := queue.Enqueue(context.Background(), &core.JobExecutionMessage{JobID: core.JobIDNotifyHTTP})
	if err == nil || !strings.Contains(err.Error(), "publish job failed") {
		t.Fatalf("expected publish failure, got %v", err)
	}
}

func TestDelivery_NackMapsOntoJetStreamAcks(t *testing.T) {
	payload, err := encodeMessage(&core.JobExecutionMessage{JobID: core.JobIDNotifyHTTP})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := []struct {
		name string
		opts core.JobNackOptions
		want string
	}{
		{name: "dead letter", opts: core.JobNackOptions{DeadLetter: true}, want: "term"},
		{name: "delayed requeue", opts: core.JobNackOptions{Requeue: true, Delay: time.Minute}, want: "nak_delay"},
		{name: "immediate requeue", opts: core.JobNackOptions{Requeue: true}, want: "nak"},
		{name: "drop", opts: core.JobNackOptions{}, want: "term"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := &stubAckMessage{data: payload}
			delivery, err := newDelivery(raw)
			if err != nil {
				t.Fatalf("new delivery: %v", err)
			}
			if delivery.Message().JobID != core.JobIDNotifyHTTP {
				t.Fatalf("unexpected message %#v", delivery.Message())
			}
			if err := delivery.Nack(context.Background(), tc.opts); err != nil {
				t.Fatalf("nack: %v", err)
			}
			if len(raw.calls) != 1 || raw.calls[0] != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, raw.calls)
			}
			if tc.want == "nak_delay" && raw.delays[0] != time.Minute {
				t.Fatalf("expected delay to be forwarded, got %v", raw.delays)
			}
		})
	}
}

func TestDelivery_UndecodableMessageIsTerminated(t *testing.T) {
	raw := &stubAckMessage{data: []byte("not json")}
	if _, err := newDelivery(raw); err == nil {
		t.Fatalf("expected decode failure")
	}
	if len(raw.calls) != 1 || raw.calls[0] != "term" {
		t.Fatalf("expected message to be terminated, got %v", raw.calls)
	}
}

func TestConfig_NormalizedFillsDefaults(t *testing.T) {
	cfg := Config{SubjectPrefix: " "}.normalized()
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
}
