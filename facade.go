package ipn

import (
	ipncommand "github.com/goliatone/go-ipn/command"
	"github.com/goliatone/go-ipn/core"
	ipnquery "github.com/goliatone/go-ipn/query"
)

type Commands struct {
	RunDeliveryJob      *ipncommand.RunDeliveryJobCommand
	PublishInvoiceEvent *ipncommand.PublishInvoiceEventCommand
}

type Queries struct {
	ListInvoiceEvents    *ipnquery.ListInvoiceEventsQuery
	ListDeliveryAttempts *ipnquery.ListDeliveryAttemptsQuery
}

// Facade exposes the manager as go-command commanders and queriers.
type Facade struct {
	commands Commands
	queries  Queries
}

func newFacade(
	runJob *ipncommand.RunDeliveryJobCommand,
	publish *ipncommand.PublishInvoiceEventCommand,
	auditReader core.AuditReader,
	attemptReader ipnquery.DeliveryAttemptReader,
) *Facade {
	return &Facade{
		commands: Commands{
			RunDeliveryJob:      runJob,
			PublishInvoiceEvent: publish,
		},
		queries: Queries{
			ListInvoiceEvents:    ipnquery.NewListInvoiceEventsQuery(auditReader),
			ListDeliveryAttempts: ipnquery.NewListDeliveryAttemptsQuery(attemptReader),
		},
	}
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}
