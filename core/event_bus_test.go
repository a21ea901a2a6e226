package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEventBus_PublishRunsHandlersInRegistrationOrder(t *testing.T) {
	bus := NewEventBus()
	var order []string
	bus.Subscribe(EventKindInvoiceState, func(context.Context, Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(EventKindInvoiceState, func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})
	bus.Subscribe(EventKindDeliveryOutcome, func(context.Context, Event) error {
		order = append(order, "other-kind")
		return nil
	})

	if err := bus.Publish(context.Background(), InvoiceStateEvent{InvoiceID: "inv_1", Name: EventNameInvoiceConfirmed}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Fatalf("unexpected handler order %v", order)
	}
}

func TestEventBus_FailingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus()
	called := false
	bus.Subscribe(EventKindInvoiceState, func(context.Context, Event) error {
		return errors.New("audit down")
	})
	bus.Subscribe(EventKindInvoiceState, func(context.Context, Event) error {
		called = true
		return nil
	})

	err := bus.Publish(context.Background(), InvoiceStateEvent{InvoiceID: "inv_1"})
	if err == nil || !strings.Contains(err.Error(), "audit down") {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if !called {
		t.Fatalf("expected second handler to run")
	}
}

func TestEventBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	sub := bus.Subscribe(EventKindInvoiceDataChanged, func(context.Context, Event) error {
		calls++
		return nil
	})
	keep := bus.Subscribe(EventKindInvoiceDataChanged, func(context.Context, Event) error { return nil })

	sub.Unsubscribe()
	sub.Unsubscribe()
	if got := bus.HandlerCount(EventKindInvoiceDataChanged); got != 1 {
		t.Fatalf("expected one remaining handler, got %d", got)
	}
	_ = bus.Publish(context.Background(), InvoiceDataChangedEvent{InvoiceID: "inv_1"})
	if calls != 0 {
		t.Fatalf("expected unsubscribed handler not to run")
	}
	keep.Unsubscribe()
	if got := bus.HandlerCount(EventKindInvoiceDataChanged); got != 0 {
		t.Fatalf("expected no handlers, got %d", got)
	}
}

func TestEventBus_HandlersMayPublishReentrantly(t *testing.T) {
	bus := NewEventBus()
	var outcomes int
	bus.Subscribe(EventKindDeliveryOutcome, func(context.Context, Event) error {
		outcomes++
		return nil
	})
	bus.Subscribe(EventKindInvoiceState, func(ctx context.Context, event Event) error {
		return bus.Publish(ctx, DeliveryOutcomeEvent{InvoiceID: event.Subject()})
	})

	if err := bus.Publish(context.Background(), InvoiceStateEvent{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if outcomes != 1 {
		t.Fatalf("expected nested publish to reach outcome handler, got %d", outcomes)
	}
}

func TestEventBus_RejectsNilEventAndHandler(t *testing.T) {
	bus := NewEventBus()
	if err := bus.Publish(context.Background(), nil); err == nil {
		t.Fatalf("expected nil event to fail")
	}
	bus.Subscribe(EventKindInvoiceState, nil).Unsubscribe()
	if got := bus.HandlerCount(EventKindInvoiceState); got != 0 {
		t.Fatalf("expected nil handler to be ignored, got %d", got)
	}
}
