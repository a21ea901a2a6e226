package ipn

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	ipncommand "github.com/goliatone/go-ipn/command"
	"github.com/goliatone/go-ipn/core"
	"github.com/goliatone/go-ipn/notifier"
	sqlstore "github.com/goliatone/go-ipn/store/sql"
	"github.com/goliatone/go-ipn/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "ipn"

// Manager owns the delivery pipeline: the event bus, the dispatcher that
// reacts to invoice events, the executor and the durable queue worker.
type Manager struct {
	config         Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	observer       core.Observer
	errorMapper    core.ErrorMapper

	bus        *core.EventBus
	scheduler  *core.JobScheduler
	executor   *webhooks.Executor
	dispatcher *notifier.Dispatcher
	worker     *core.JobWorker
	facade     *Facade

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	builder := managerBuilder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(loggerName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(loggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = core.NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = core.MapError
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.configProvider, builder.optionsResolver, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := builder.applyRepositoryFactory(finalConfig); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if err := builder.applyAuditCache(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.audit == nil {
		return nil, mapBuildError(builder.errorMapper, core.NewError("ipn: audit sink is required", goerrors.CategoryBadInput, core.ErrorBadInput))
	}
	if builder.enqueuer == nil {
		return nil, mapBuildError(builder.errorMapper, core.NewError("ipn: durable job queue is required", goerrors.CategoryBadInput, core.ErrorBadInput))
	}
	if builder.auditReader == nil {
		if reader, ok := builder.audit.(core.AuditReader); ok {
			builder.auditReader = reader
		}
	}
	if builder.httpClient == nil {
		builder.httpClient = &http.Client{}
	}
	if builder.bus == nil {
		builder.bus = core.NewEventBus()
	}

	observer := core.NewObserver(logger, builder.metricsRecorder)

	scheduler, err := core.NewJobScheduler(builder.enqueuer)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	executorOpts := []webhooks.ExecutorOption{
		webhooks.WithObserver(observer),
		webhooks.WithTimeout(finalConfig.Delivery.Timeout),
		webhooks.WithUserAgent(finalConfig.Delivery.UserAgent),
		webhooks.WithRetryPlanner(webhooks.RetryPlanner{
			MaxTry: finalConfig.Delivery.MaxTry,
			Delay:  finalConfig.Delivery.RetryDelay,
		}),
	}
	if builder.attemptLedger != nil {
		executorOpts = append(executorOpts, webhooks.WithAttemptLedger(builder.attemptLedger))
	}
	executor := webhooks.NewExecutor(builder.httpClient, builder.bus, scheduler, executorOpts...)

	dispatcher, err := notifier.NewDispatcher(
		builder.bus,
		builder.invoices,
		builder.audit,
		executor,
		scheduler,
		notifier.WithObserver(observer),
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	runJob := ipncommand.NewRunDeliveryJobCommand(executor)

	var worker *core.JobWorker
	if builder.dequeuer != nil {
		worker, err = core.NewJobWorker(builder.dequeuer, core.JobWorkerConfig{
			Concurrency:  finalConfig.Worker.Concurrency,
			PollInterval: finalConfig.Worker.PollInterval,
		})
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		worker.WithObserver(observer)
		if builder.workerHook != nil {
			worker.WithHook(builder.workerHook)
		}
		if err := worker.Handle(core.JobIDNotifyHTTP, runJob.HandleMessage); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	manager := &Manager{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		observer:       observer,
		errorMapper:    builder.errorMapper,
		bus:            builder.bus,
		scheduler:      scheduler,
		executor:       executor,
		dispatcher:     dispatcher,
		worker:         worker,
	}
	manager.facade = newFacade(
		runJob,
		ipncommand.NewPublishInvoiceEventCommand(builder.bus),
		builder.auditReader,
		builder.attemptReader,
	)
	return manager, nil
}

// Start subscribes the dispatcher and, when a dequeuer is configured, runs
// the queue worker until Stop. The worker outlives ctx.
func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("ipn: manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return m.mapError(core.NewError("ipn: manager already started", goerrors.CategoryConflict, core.ErrorBadInput))
	}
	if err := m.dispatcher.Start(ctx); err != nil {
		return m.mapError(err)
	}
	m.started = true

	if m.worker == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	go func() {
		defer close(done)
		if err := m.worker.Run(runCtx); err != nil {
			m.observer.Error(runCtx, "job worker stopped", map[string]any{"error": err.Error()})
		}
	}()
	m.observer.Info(ctx, "ipn manager started", map[string]any{
		"concurrency":   m.config.Worker.Concurrency,
		"poll_interval": m.config.Worker.PollInterval.String(),
	})
	return nil
}

// Stop releases every event subscription and waits for the worker to exit or
// ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	err := m.dispatcher.Stop(ctx)
	if cancel == nil {
		return m.mapError(err)
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return m.mapError(ctx.Err())
	}
	return m.mapError(err)
}

// Publish delivers event to the subscribed handlers synchronously.
func (m *Manager) Publish(ctx context.Context, event core.Event) error {
	if m == nil || m.bus == nil {
		return fmt.Errorf("ipn: manager is not configured")
	}
	return m.mapError(m.bus.Publish(ctx, event))
}

func (m *Manager) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

func (m *Manager) Bus() *core.EventBus {
	if m == nil {
		return nil
	}
	return m.bus
}

func (m *Manager) Executor() *webhooks.Executor {
	if m == nil {
		return nil
	}
	return m.executor
}

func (m *Manager) Dispatcher() *notifier.Dispatcher {
	if m == nil {
		return nil
	}
	return m.dispatcher
}

// Worker is nil when no dequeuer was configured.
func (m *Manager) Worker() *core.JobWorker {
	if m == nil {
		return nil
	}
	return m.worker
}

func (m *Manager) Facade() *Facade {
	if m == nil {
		return nil
	}
	return m.facade
}

func (m *Manager) mapError(err error) error {
	if err == nil {
		return nil
	}
	return mapBuildError(m.errorMapper, err)
}

func mapBuildError(mapper core.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (b *managerBuilder) applyRepositoryFactory(cfg Config) error {
	if b.repositoryFactory == nil && b.persistenceClient != nil {
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(b.persistenceClient)
		if err != nil {
			return err
		}
		b.repositoryFactory = factory
	}
	factory := b.repositoryFactory
	if factory == nil {
		return nil
	}
	if auditStore := factory.AuditStore(); auditStore != nil {
		if b.audit == nil {
			b.audit = auditStore
		}
		if b.auditReader == nil {
			b.auditReader = auditStore
		}
	}
	if attempts := factory.DeliveryAttemptStore(); attempts != nil {
		if b.attemptLedger == nil {
			b.attemptLedger = attempts
		}
		if b.attemptReader == nil {
			b.attemptReader = attempts
		}
	}
	if jobs := factory.JobQueueStore(); jobs != nil {
		jobs.WithLease(cfg.Worker.Lease)
		if b.enqueuer == nil {
			b.enqueuer = jobs
		}
		if b.dequeuer == nil {
			b.dequeuer = jobs
		}
	}
	return nil
}

func (b *managerBuilder) applyAuditCache() error {
	if b.auditCache == nil || b.audit == nil {
		return nil
	}
	trail, ok := b.audit.(sqlstore.AuditTrail)
	if !ok {
		return nil
	}
	cached, err := sqlstore.NewCachedAuditTrail(trail, b.auditCache)
	if err != nil {
		return err
	}
	b.audit = cached
	if b.auditReader == nil || b.auditReader == core.AuditReader(trail) {
		b.auditReader = cached
	}
	return nil
}
