package core

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// exactDecimal encodes a decimal with its scale intact. decimal.Decimal's own
// encoding trims trailing zeros, which would turn 20000.00 into 20000 once a
// snapshot has been through the job queue. Decoding goes through
// decimal.Decimal, which keeps the exponent it parsed.
type exactDecimal decimal.Decimal

func (d exactDecimal) MarshalJSON() ([]byte, error) {
	value := decimal.Decimal(d)
	text := value.String()
	if exp := value.Exponent(); exp < 0 {
		text = value.StringFixed(-exp)
	}
	return json.Marshal(text)
}

type cryptoInfoJSON struct {
	CryptoCode string       `json:"cryptoCode"`
	Rate       exactDecimal `json:"rate"`
	Due        exactDecimal `json:"due"`
	Paid       exactDecimal `json:"paid"`
	Price      exactDecimal `json:"price"`
}

func (c CryptoInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(cryptoInfoJSON{
		CryptoCode: c.CryptoCode,
		Rate:       exactDecimal(c.Rate),
		Due:        exactDecimal(c.Due),
		Paid:       exactDecimal(c.Paid),
		Price:      exactDecimal(c.Price),
	})
}

type invoiceSnapshotJSON struct {
	ID                    string        `json:"id"`
	Status                InvoiceStatus `json:"status"`
	ExceptionStatus       string        `json:"exceptionStatus,omitempty"`
	Currency              string        `json:"currency"`
	Price                 exactDecimal  `json:"price"`
	PosData               string        `json:"posData,omitempty"`
	URL                   string        `json:"url,omitempty"`
	InvoiceTime           time.Time     `json:"invoiceTime"`
	ExpirationTime        time.Time     `json:"expirationTime"`
	CurrentTime           time.Time     `json:"currentTime"`
	NotificationURL       string        `json:"notificationURL,omitempty"`
	RefundEmail           string        `json:"refundEmail,omitempty"`
	FullNotifications     bool          `json:"fullNotifications,omitempty"`
	ExtendedNotifications bool          `json:"extendedNotifications,omitempty"`
	CryptoInfo            []CryptoInfo  `json:"cryptoInfo,omitempty"`
}

func (i InvoiceSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(invoiceSnapshotJSON{
		ID:                    i.ID,
		Status:                i.Status,
		ExceptionStatus:       i.ExceptionStatus,
		Currency:              i.Currency,
		Price:                 exactDecimal(i.Price),
		PosData:               i.PosData,
		URL:                   i.URL,
		InvoiceTime:           i.InvoiceTime,
		ExpirationTime:        i.ExpirationTime,
		CurrentTime:           i.CurrentTime,
		NotificationURL:       i.NotificationURL,
		RefundEmail:           i.RefundEmail,
		FullNotifications:     i.FullNotifications,
		ExtendedNotifications: i.ExtendedNotifications,
		CryptoInfo:            i.CryptoInfo,
	})
}
