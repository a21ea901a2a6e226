package webhooks

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-ipn/core"
	"github.com/shopspring/decimal"
)

// notificationData mirrors the legacy BitPay IPN document. Field order is
// part of the wire format.
type notificationData struct {
	ID              string         `json:"id"`
	URL             *string        `json:"url,omitempty"`
	PosData         string         `json:"posData"`
	Status          string         `json:"status"`
	BTCPrice        *decimalNumber `json:"btcPrice,omitempty"`
	Price           decimalNumber  `json:"price"`
	Currency        string         `json:"currency"`
	InvoiceTime     int64          `json:"invoiceTime"`
	ExpirationTime  int64          `json:"expirationTime"`
	CurrentTime     int64          `json:"currentTime"`
	BTCPaid         *decimalNumber `json:"btcPaid,omitempty"`
	BTCDue          *decimalNumber `json:"btcDue,omitempty"`
	Rate            *decimalNumber `json:"rate,omitempty"`
	ExceptionStatus any            `json:"exceptionStatus"`
	BuyerFields     *buyerFields   `json:"buyerFields,omitempty"`
}

type buyerFields struct {
	BuyerEmail string `json:"buyerEmail"`
}

type eventEnvelope struct {
	Event core.NotificationEvent `json:"event"`
	Data  notificationData       `json:"data"`
}

// decimalNumber encodes a decimal as a bare JSON number keeping its scale,
// so 20000.00 stays 20000.00.
type decimalNumber decimal.Decimal

func (d decimalNumber) MarshalJSON() ([]byte, error) {
	value := decimal.Decimal(d)
	if exp := value.Exponent(); exp < 0 {
		return []byte(value.StringFixed(-exp)), nil
	}
	return []byte(value.String()), nil
}

func newDecimalNumber(value decimal.Decimal) *decimalNumber {
	number := decimalNumber(value)
	return &number
}

// BuildPayload renders the notification document for invoice. When event is
// non-nil the document is wrapped as {"event":...,"data":...}. The output is
// UTF-8 without a byte-order mark and is byte-identical for identical input.
func BuildPayload(invoice core.InvoiceSnapshot, event *core.NotificationEvent) ([]byte, error) {
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, fmt.Errorf("webhooks: invoice id is required")
	}
	data := buildNotificationData(invoice)

	var (
		out []byte
		err error
	)
	if event != nil {
		out, err = json.MarshalNoEscape(eventEnvelope{Event: *event, Data: data})
	} else {
		out, err = json.MarshalNoEscape(data)
	}
	if err != nil {
		return nil, fmt.Errorf("webhooks: encode notification payload: %w", err)
	}
	return out, nil
}

func buildNotificationData(invoice core.InvoiceSnapshot) notificationData {
	data := notificationData{
		ID:              invoice.ID,
		PosData:         invoice.PosData,
		Status:          string(invoice.Status),
		Price:           decimalNumber(invoice.Price),
		Currency:        invoice.Currency,
		InvoiceTime:     unixMillis(invoice.InvoiceTime),
		ExpirationTime:  unixMillis(invoice.ExpirationTime),
		CurrentTime:     unixMillis(invoice.CurrentTime),
		ExceptionStatus: exceptionStatus(invoice.ExceptionStatus),
	}
	if email := strings.TrimSpace(invoice.RefundEmail); email != "" {
		data.BuyerFields = &buyerFields{BuyerEmail: email}
	}

	// Legacy top-level amounts are only ever filled from the BTC entry.
	if btc, ok := invoice.Crypto(core.CryptoCodeBTC); ok {
		url := invoice.URL
		data.URL = &url
		data.Rate = newDecimalNumber(btc.Rate)
		data.BTCDue = newDecimalNumber(btc.Due)
		data.BTCPaid = newDecimalNumber(btc.Paid)
		data.BTCPrice = newDecimalNumber(btc.Price)
	}
	return data
}

func exceptionStatus(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	return value
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
