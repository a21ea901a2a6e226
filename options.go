package ipn

import (
	"net/http"

	"github.com/goliatone/go-ipn/core"
	"github.com/goliatone/go-ipn/query"
	sqlstore "github.com/goliatone/go-ipn/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Option func(*managerBuilder)

type managerBuilder struct {
	runtimeConfig     Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metricsRecorder   core.MetricsRecorder
	errorMapper       core.ErrorMapper
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	httpClient        *http.Client
	bus               *core.EventBus
	invoices          core.InvoiceSource
	audit             core.AuditSink
	auditReader       core.AuditReader
	auditCache        repositorycache.CacheService
	attemptLedger     core.DeliveryAttemptLedger
	attemptReader     query.DeliveryAttemptReader
	enqueuer          core.JobEnqueuer
	dequeuer          core.JobDequeuer
	workerHook        core.JobWorkerHook
	persistenceClient *persistence.Client
	repositoryFactory *sqlstore.RepositoryFactory
}

func WithLogger(logger core.Logger) Option {
	return func(b *managerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *managerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *managerBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(b *managerBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *managerBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *managerBuilder) {
		b.optionsResolver = resolver
	}
}

// WithHTTPClient sets the transport shared by every delivery attempt.
func WithHTTPClient(client *http.Client) Option {
	return func(b *managerBuilder) {
		b.httpClient = client
	}
}

func WithEventBus(bus *core.EventBus) Option {
	return func(b *managerBuilder) {
		b.bus = bus
	}
}

func WithInvoiceSource(source core.InvoiceSource) Option {
	return func(b *managerBuilder) {
		b.invoices = source
	}
}

func WithAuditSink(sink core.AuditSink) Option {
	return func(b *managerBuilder) {
		b.audit = sink
	}
}

func WithAuditReader(reader core.AuditReader) Option {
	return func(b *managerBuilder) {
		b.auditReader = reader
	}
}

// WithAuditCache caches audit trail reads when the audit sink can also list
// events.
func WithAuditCache(cacheService repositorycache.CacheService) Option {
	return func(b *managerBuilder) {
		b.auditCache = cacheService
	}
}

func WithAttemptLedger(ledger core.DeliveryAttemptLedger) Option {
	return func(b *managerBuilder) {
		b.attemptLedger = ledger
	}
}

func WithAttemptReader(reader query.DeliveryAttemptReader) Option {
	return func(b *managerBuilder) {
		b.attemptReader = reader
	}
}

func WithJobEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(b *managerBuilder) {
		b.enqueuer = enqueuer
	}
}

// WithJobQueue uses one backend, such as a JetStream queue, for both
// scheduling and consuming delivery jobs.
func WithJobQueue(queue interface {
	core.JobEnqueuer
	core.JobDequeuer
}) Option {
	return func(b *managerBuilder) {
		b.enqueuer = queue
		b.dequeuer = queue
	}
}

// WithJobDequeuer enables the in-process worker. Without a dequeuer the
// queue is expected to be drained by another process.
func WithJobDequeuer(dequeuer core.JobDequeuer) Option {
	return func(b *managerBuilder) {
		b.dequeuer = dequeuer
	}
}

func WithWorkerHook(hook core.JobWorkerHook) Option {
	return func(b *managerBuilder) {
		b.workerHook = hook
	}
}

func WithPersistenceClient(client *persistence.Client) Option {
	return func(b *managerBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory supplies SQL stores for every collaborator that was
// not set explicitly.
func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) Option {
	return func(b *managerBuilder) {
		b.repositoryFactory = factory
	}
}
