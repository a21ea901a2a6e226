package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusNew       InvoiceStatus = "new"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusConfirmed InvoiceStatus = "confirmed"
	InvoiceStatusComplete  InvoiceStatus = "complete"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusInvalid   InvoiceStatus = "invalid"
)

const (
	EventNameInvoiceExpired         = "invoice_expired"
	EventNameInvoicePaidInFull      = "invoice_paidInFull"
	EventNameInvoiceFailedToConfirm = "invoice_failedToConfirm"
	EventNameInvoiceMarkedInvalid   = "invoice_markedInvalid"
	EventNameInvoiceCompleted       = "invoice_completed"
	EventNameInvoiceConfirmed       = "invoice_confirmed"
)

// CryptoCodeBTC is the only crypto code whose amounts are mirrored into the
// legacy top-level notification fields.
const CryptoCodeBTC = "BTC"

// CryptoInfo is the per-currency payment breakdown of an invoice.
type CryptoInfo struct {
	CryptoCode string          `json:"cryptoCode"`
	Rate       decimal.Decimal `json:"rate"`
	Due        decimal.Decimal `json:"due"`
	Paid       decimal.Decimal `json:"paid"`
	Price      decimal.Decimal `json:"price"`
}

// InvoiceSnapshot is an immutable copy of the invoice taken when a domain
// event is handled. Nothing in this module mutates a snapshot.
type InvoiceSnapshot struct {
	ID                    string          `json:"id"`
	Status                InvoiceStatus   `json:"status"`
	ExceptionStatus       string          `json:"exceptionStatus,omitempty"`
	Currency              string          `json:"currency"`
	Price                 decimal.Decimal `json:"price"`
	PosData               string          `json:"posData,omitempty"`
	URL                   string          `json:"url,omitempty"`
	InvoiceTime           time.Time       `json:"invoiceTime"`
	ExpirationTime        time.Time       `json:"expirationTime"`
	CurrentTime           time.Time       `json:"currentTime"`
	NotificationURL       string          `json:"notificationURL,omitempty"`
	RefundEmail           string          `json:"refundEmail,omitempty"`
	FullNotifications     bool            `json:"fullNotifications,omitempty"`
	ExtendedNotifications bool            `json:"extendedNotifications,omitempty"`
	CryptoInfo            []CryptoInfo    `json:"cryptoInfo,omitempty"`
}

func (i InvoiceSnapshot) Crypto(code string) (CryptoInfo, bool) {
	code = strings.TrimSpace(code)
	for _, info := range i.CryptoInfo {
		if strings.EqualFold(strings.TrimSpace(info.CryptoCode), code) {
			return info, true
		}
	}
	return CryptoInfo{}, false
}

// HasNotificationURL reports whether deliveries can be attempted at all.
func (i InvoiceSnapshot) HasNotificationURL() bool {
	return strings.TrimSpace(i.NotificationURL) != ""
}

// NotificationEvent is the optional event envelope carried by extended
// notifications.
type NotificationEvent struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// NotificationIntent is one notification to deliver for one triggering event.
type NotificationIntent struct {
	Invoice InvoiceSnapshot
	Event   *NotificationEvent
}

// JobIdentity is the dedup key for a delivery lineage.
type JobIdentity string

func NewJobIdentity(invoiceID string, status InvoiceStatus) JobIdentity {
	return JobIdentity(fmt.Sprintf("%s-%s-HTTP", strings.TrimSpace(invoiceID), strings.TrimSpace(string(status))))
}

func (id JobIdentity) String() string {
	return string(id)
}

// DeliveryJob is the durable record handed to the job queue on retry.
type DeliveryJob struct {
	TryCount  int             `json:"tryCount"`
	Invoice   InvoiceSnapshot `json:"invoice"`
	EventCode *int            `json:"eventCode,omitempty"`
	EventName string          `json:"eventName,omitempty"`
}

func NewDeliveryJob(intent NotificationIntent) DeliveryJob {
	job := DeliveryJob{Invoice: intent.Invoice}
	if intent.Event != nil {
		code := intent.Event.Code
		job.EventCode = &code
		job.EventName = intent.Event.Name
	}
	return job
}

func (j DeliveryJob) Identity() JobIdentity {
	return NewJobIdentity(j.Invoice.ID, j.Invoice.Status)
}

// Event returns the notification envelope, or nil when the job carries no
// event code.
func (j DeliveryJob) Event() *NotificationEvent {
	if j.EventCode == nil {
		return nil
	}
	return &NotificationEvent{Code: *j.EventCode, Name: j.EventName}
}

// Next returns a copy of the job with the try counter advanced.
func (j DeliveryJob) Next() DeliveryJob {
	next := j
	next.TryCount = j.TryCount + 1
	if j.EventCode != nil {
		code := *j.EventCode
		next.EventCode = &code
	}
	return next
}
