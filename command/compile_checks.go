package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ipn/core"
)

var (
	_ gocmd.Commander[RunDeliveryJobMessage]      = (*RunDeliveryJobCommand)(nil)
	_ gocmd.Commander[PublishInvoiceEventMessage] = (*PublishInvoiceEventCommand)(nil)

	_ core.JobHandler = (*RunDeliveryJobCommand)(nil).HandleMessage
)
