package command

import (
	"strings"

	"github.com/goliatone/go-ipn/core"
)

const (
	TypeRunDeliveryJob      = "ipn.command.delivery_job.run"
	TypePublishInvoiceEvent = "ipn.command.invoice_event.publish"
)

// RunDeliveryJobMessage carries one encoded delivery job pulled from the
// durable queue.
type RunDeliveryJobMessage struct {
	Payload []byte
}

func (RunDeliveryJobMessage) Type() string { return TypeRunDeliveryJob }

func (m RunDeliveryJobMessage) Validate() error {
	if len(m.Payload) == 0 {
		return commandValidationError("payload", "delivery job payload is required")
	}
	return nil
}

type PublishInvoiceEventMessage struct {
	Event core.Event
}

func (PublishInvoiceEventMessage) Type() string { return TypePublishInvoiceEvent }

func (m PublishInvoiceEventMessage) Validate() error {
	if m.Event == nil {
		return commandValidationError("event", "event is required")
	}
	if strings.TrimSpace(m.Event.Subject()) == "" {
		return commandValidationError("invoice_id", "invoice id is required")
	}
	return nil
}
