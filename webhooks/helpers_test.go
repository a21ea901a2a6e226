package webhooks

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-ipn/core"
	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) outcomes() []core.DeliveryOutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.DeliveryOutcomeEvent, 0, len(p.events))
	for _, event := range p.events {
		if typed, ok := event.(core.DeliveryOutcomeEvent); ok {
			out = append(out, typed)
		}
	}
	return out
}

type scheduledJob struct {
	job   core.DeliveryJob
	delay time.Duration
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (q *recordingQueue) Schedule(_ context.Context, job core.DeliveryJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, scheduledJob{job: job, delay: delay})
	return nil
}

func (q *recordingQueue) scheduled() []scheduledJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]scheduledJob(nil), q.jobs...)
}

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *countingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *countingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *countingMetrics) count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type memoryLedger struct {
	mu       sync.Mutex
	attempts []core.DeliveryAttempt
}

func (l *memoryLedger) Record(_ context.Context, attempt core.DeliveryAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return nil
}

func mustDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func testInvoice(notificationURL string) core.InvoiceSnapshot {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return core.InvoiceSnapshot{
		ID:              "inv_1",
		Status:          core.InvoiceStatusConfirmed,
		Currency:        "USD",
		Price:           mustDecimal("20.00"),
		PosData:         "order-42",
		URL:             "https://pay.example.com/i/inv_1",
		InvoiceTime:     created,
		ExpirationTime:  created.Add(15 * time.Minute),
		CurrentTime:     created.Add(5 * time.Minute),
		NotificationURL: notificationURL,
	}
}

func btcInfo() core.CryptoInfo {
	return core.CryptoInfo{
		CryptoCode: "BTC",
		Rate:       mustDecimal("20000.00"),
		Due:        mustDecimal("0.001"),
		Paid:       mustDecimal("0.0"),
		Price:      mustDecimal("20.00"),
	}
}
