package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ipn/core"
	"github.com/goliatone/go-ipn/webhooks"
)

// Deliverer runs one guarded delivery attempt. The bool is false when the
// attempt was dropped as a duplicate.
type Deliverer interface {
	Deliver(ctx context.Context, job core.DeliveryJob) (webhooks.Outcome, bool)
}

type Option func(*Dispatcher)

func WithObserver(observer core.Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

type Dispatcher struct {
	bus       core.EventSubscriber
	invoices  core.InvoiceSource
	audit     core.AuditSink
	deliverer Deliverer
	queue     core.DurableJobQueue
	observer  core.Observer

	mu            sync.Mutex
	subscriptions []core.Subscription
}

func NewDispatcher(
	bus core.EventSubscriber,
	invoices core.InvoiceSource,
	audit core.AuditSink,
	deliverer Deliverer,
	queue core.DurableJobQueue,
	opts ...Option,
) (*Dispatcher, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("notifier: deliverer is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("notifier: durable job queue is required")
	}
	dispatcher := &Dispatcher{
		bus:       bus,
		invoices:  invoices,
		audit:     audit,
		deliverer: deliverer,
		queue:     queue,
		observer:  core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	return dispatcher, nil
}

// Start subscribes to every audited event kind. The leases are held until
// Stop.
func (d *Dispatcher) Start(context.Context) error {
	if d == nil || d.bus == nil {
		return fmt.Errorf("notifier: event bus is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.subscriptions) > 0 {
		return fmt.Errorf("notifier: dispatcher already started")
	}
	for _, kind := range core.AuditedKinds() {
		d.subscriptions = append(d.subscriptions, d.bus.Subscribe(kind, d.handle))
	}
	return nil
}

func (d *Dispatcher) Stop(context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	subscriptions := d.subscriptions
	d.subscriptions = nil
	d.mu.Unlock()

	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, event core.Event) error {
	d.OnDomainEvent(ctx, event)
	return nil
}

// OnDomainEvent audits event and, for state events, drives notifications.
// Failures are logged and never returned to the publisher.
func (d *Dispatcher) OnDomainEvent(ctx context.Context, event core.Event) {
	if d == nil || event == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.appendAudit(ctx, event)

	state, ok := asStateEvent(event)
	if !ok {
		return
	}
	invoice, err := d.resolveInvoice(ctx, state)
	if err != nil {
		d.observer.Error(ctx, "invoice lookup failed", map[string]any{
			"invoice_id": state.InvoiceID,
			"event_name": state.Name,
			"error":      err.Error(),
		})
		return
	}
	for _, intent := range Intents(state, invoice) {
		d.notify(ctx, intent)
	}
}

func (d *Dispatcher) notify(ctx context.Context, intent core.NotificationIntent) {
	if !intent.Invoice.HasNotificationURL() {
		return
	}
	job := core.NewDeliveryJob(intent)
	outcome, ran := d.deliverer.Deliver(ctx, job)
	if !ran || outcome.Succeeded() {
		return
	}

	// The synchronous attempt is always followed by a durable one.
	fallback := job
	fallback.TryCount = 0
	if err := d.queue.Schedule(context.WithoutCancel(ctx), fallback, 0); err != nil {
		d.observer.Error(ctx, "fallback enqueue failed", map[string]any{
			"job_id":     job.Identity().String(),
			"invoice_id": job.Invoice.ID,
			"error":      err.Error(),
		})
		d.observer.Counter(ctx, core.MetricScheduleFailed, 1, nil)
	}
}

func (d *Dispatcher) appendAudit(ctx context.Context, event core.Event) {
	if d.audit == nil {
		return
	}
	if err := d.audit.AppendEvent(ctx, event.Subject(), event); err != nil {
		d.observer.Error(ctx, "audit append failed", map[string]any{
			"invoice_id": event.Subject(),
			"kind":       string(event.Kind()),
			"error":      err.Error(),
		})
		d.observer.Counter(ctx, core.MetricAuditFailed, 1, map[string]string{"kind": string(event.Kind())})
	}
}

func (d *Dispatcher) resolveInvoice(ctx context.Context, event core.InvoiceStateEvent) (core.InvoiceSnapshot, error) {
	if event.Invoice != nil {
		return *event.Invoice, nil
	}
	if d.invoices == nil {
		return core.InvoiceSnapshot{}, core.NewError(
			fmt.Sprintf("notifier: invoice %q not found: no invoice source", event.InvoiceID),
			goerrors.CategoryNotFound,
			core.ErrorInvoiceNotFound,
		)
	}
	invoice, err := d.invoices.GetInvoice(ctx, strings.TrimSpace(event.InvoiceID))
	if err != nil {
		return core.InvoiceSnapshot{}, err
	}
	return invoice, nil
}

func asStateEvent(event core.Event) (core.InvoiceStateEvent, bool) {
	switch typed := event.(type) {
	case core.InvoiceStateEvent:
		return typed, true
	case *core.InvoiceStateEvent:
		if typed == nil {
			return core.InvoiceStateEvent{}, false
		}
		return *typed, true
	}
	return core.InvoiceStateEvent{}, false
}
