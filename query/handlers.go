package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-ipn/core"
)

type DeliveryAttemptReader interface {
	ListAttempts(ctx context.Context, invoiceID string) ([]core.DeliveryAttempt, error)
}

type ListInvoiceEventsQuery struct {
	reader core.AuditReader
}

func NewListInvoiceEventsQuery(reader core.AuditReader) *ListInvoiceEventsQuery {
	return &ListInvoiceEventsQuery{reader: reader}
}

func (q *ListInvoiceEventsQuery) Query(ctx context.Context, msg ListInvoiceEventsMessage) ([]core.AuditRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: audit reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListEvents(ctx, strings.TrimSpace(msg.InvoiceID))
}

type ListDeliveryAttemptsQuery struct {
	reader DeliveryAttemptReader
}

func NewListDeliveryAttemptsQuery(reader DeliveryAttemptReader) *ListDeliveryAttemptsQuery {
	return &ListDeliveryAttemptsQuery{reader: reader}
}

func (q *ListDeliveryAttemptsQuery) Query(ctx context.Context, msg ListDeliveryAttemptsMessage) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery attempt reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListAttempts(ctx, strings.TrimSpace(msg.InvoiceID))
}
