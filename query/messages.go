package query

import "strings"

const (
	TypeListInvoiceEvents    = "ipn.query.invoice_events.list"
	TypeListDeliveryAttempts = "ipn.query.delivery_attempts.list"
)

type ListInvoiceEventsMessage struct {
	InvoiceID string
}

func (ListInvoiceEventsMessage) Type() string { return TypeListInvoiceEvents }

func (m ListInvoiceEventsMessage) Validate() error {
	if strings.TrimSpace(m.InvoiceID) == "" {
		return queryValidationError("invoice_id", "invoice id is required")
	}
	return nil
}

type ListDeliveryAttemptsMessage struct {
	InvoiceID string
}

func (ListDeliveryAttemptsMessage) Type() string { return TypeListDeliveryAttempts }

func (m ListDeliveryAttemptsMessage) Validate() error {
	if strings.TrimSpace(m.InvoiceID) == "" {
		return queryValidationError("invoice_id", "invoice id is required")
	}
	return nil
}
