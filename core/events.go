package core

import "time"

type EventKind string

const (
	EventKindInvoiceState       EventKind = "invoice_state"
	EventKindInvoiceDataChanged EventKind = "invoice_data_changed"
	EventKindInvoiceStopWatched EventKind = "invoice_stop_watched"
	EventKindDeliveryOutcome    EventKind = "invoice_ipn"
)

// Event is a domain event scoped to one invoice.
type Event interface {
	Kind() EventKind
	// Subject returns the invoice id the event belongs to.
	Subject() string
}

// InvoiceStateEvent reports an invoice lifecycle transition. Invoice is the
// snapshot captured when the transition happened; when nil the dispatcher
// loads the invoice through its InvoiceSource.
type InvoiceStateEvent struct {
	InvoiceID  string           `json:"invoiceId"`
	Name       string           `json:"name"`
	Code       int              `json:"code"`
	Invoice    *InvoiceSnapshot `json:"-"`
	OccurredAt time.Time        `json:"occurredAt,omitempty"`
}

func (InvoiceStateEvent) Kind() EventKind   { return EventKindInvoiceState }
func (e InvoiceStateEvent) Subject() string { return e.InvoiceID }

type InvoiceDataChangedEvent struct {
	InvoiceID  string    `json:"invoiceId"`
	OccurredAt time.Time `json:"occurredAt,omitempty"`
}

func (InvoiceDataChangedEvent) Kind() EventKind   { return EventKindInvoiceDataChanged }
func (e InvoiceDataChangedEvent) Subject() string { return e.InvoiceID }

type InvoiceStopWatchedEvent struct {
	InvoiceID  string    `json:"invoiceId"`
	OccurredAt time.Time `json:"occurredAt,omitempty"`
}

func (InvoiceStopWatchedEvent) Kind() EventKind   { return EventKindInvoiceStopWatched }
func (e InvoiceStopWatchedEvent) Subject() string { return e.InvoiceID }

// DeliveryOutcomeEvent records the result of one delivery attempt. Error is
// empty on success.
type DeliveryOutcomeEvent struct {
	InvoiceID  string    `json:"invoiceId"`
	EventCode  *int      `json:"eventCode,omitempty"`
	EventName  string    `json:"eventName,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt,omitempty"`
}

func (DeliveryOutcomeEvent) Kind() EventKind   { return EventKindDeliveryOutcome }
func (e DeliveryOutcomeEvent) Subject() string { return e.InvoiceID }

func (e DeliveryOutcomeEvent) Failed() bool {
	return e.Error != ""
}

// AuditedKinds lists the event kinds that are always written to the audit
// trail.
func AuditedKinds() []EventKind {
	return []EventKind{
		EventKindInvoiceState,
		EventKindInvoiceDataChanged,
		EventKindInvoiceStopWatched,
		EventKindDeliveryOutcome,
	}
}

var (
	_ Event = InvoiceStateEvent{}
	_ Event = InvoiceDataChangedEvent{}
	_ Event = InvoiceStopWatchedEvent{}
	_ Event = DeliveryOutcomeEvent{}
)
