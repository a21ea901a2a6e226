package ipn

import (
	"github.com/goliatone/go-ipn/core"
	"github.com/goliatone/go-ipn/webhooks"
)

type Config = core.Config

type DeliveryConfig = core.DeliveryConfig

type WorkerConfig = core.WorkerConfig

type Event = core.Event

type InvoiceSnapshot = core.InvoiceSnapshot

type CryptoInfo = core.CryptoInfo

type InvoiceStateEvent = core.InvoiceStateEvent

type InvoiceDataChangedEvent = core.InvoiceDataChangedEvent

type InvoiceStopWatchedEvent = core.InvoiceStopWatchedEvent

type DeliveryOutcomeEvent = core.DeliveryOutcomeEvent

type DeliveryJob = core.DeliveryJob

type JobIdentity = core.JobIdentity

type AuditRecord = core.AuditRecord

type DeliveryAttempt = core.DeliveryAttempt

type Outcome = webhooks.Outcome

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func Setup(cfg Config, opts ...Option) (*Manager, error) {
	return NewManager(cfg, opts...)
}
