package notifier

import "github.com/goliatone/go-ipn/core"

var fullNotificationEvents = map[string]struct{}{
	core.EventNameInvoiceExpired:         {},
	core.EventNameInvoicePaidInFull:      {},
	core.EventNameInvoiceFailedToConfirm: {},
	core.EventNameInvoiceMarkedInvalid:   {},
	core.EventNameInvoiceCompleted:       {},
}

// Intents maps a state event onto the notifications it triggers. The plain
// rule and the extended rule are independent and may both fire.
func Intents(event core.InvoiceStateEvent, invoice core.InvoiceSnapshot) []core.NotificationIntent {
	intents := make([]core.NotificationIntent, 0, 2)

	_, fullEvent := fullNotificationEvents[event.Name]
	if (fullEvent && invoice.FullNotifications) || event.Name == core.EventNameInvoiceConfirmed {
		intents = append(intents, core.NotificationIntent{Invoice: invoice})
	}
	if invoice.ExtendedNotifications {
		intents = append(intents, core.NotificationIntent{
			Invoice: invoice,
			Event: &core.NotificationEvent{
				Code: event.Code,
				Name: event.Name,
			},
		})
	}
	return intents
}
