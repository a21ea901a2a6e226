package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ipn/core"
)

var (
	_ gocmd.Querier[ListInvoiceEventsMessage, []core.AuditRecord]        = (*ListInvoiceEventsQuery)(nil)
	_ gocmd.Querier[ListDeliveryAttemptsMessage, []core.DeliveryAttempt] = (*ListDeliveryAttemptsQuery)(nil)
)
