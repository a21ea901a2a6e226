package ipn_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ipn "github.com/goliatone/go-ipn"
	ipncommand "github.com/goliatone/go-ipn/command"
	"github.com/goliatone/go-ipn/core"
	ipnmigrations "github.com/goliatone/go-ipn/migrations"
	ipnquery "github.com/goliatone/go-ipn/query"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestNewManager_RequiresAuditAndQueue(t *testing.T) {
	if _, err := ipn.NewManager(ipn.DefaultConfig(), ipn.WithJobEnqueuer(&memoryEnqueuer{})); err == nil {
		t.Fatalf("expected missing audit sink to fail")
	}
	if _, err := ipn.NewManager(ipn.DefaultConfig(), ipn.WithAuditSink(&memoryAudit{})); err == nil {
		t.Fatalf("expected missing job queue to fail")
	}
}

func TestNewManager_ResolvesLayeredConfig(t *testing.T) {
	provider := core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: map[string]any{
		"delivery": map[string]any{"max_try": 3},
	}})
	runtime := ipn.Config{Delivery: ipn.DeliveryConfig{UserAgent: "merchant-tests"}}

	manager, err := ipn.NewManager(runtime,
		ipn.WithConfigProvider(provider),
		ipn.WithAuditSink(&memoryAudit{}),
		ipn.WithJobEnqueuer(&memoryEnqueuer{}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	cfg := manager.Config()
	if cfg.Delivery.MaxTry != 3 {
		t.Fatalf("expected loaded max_try 3, got %d", cfg.Delivery.MaxTry)
	}
	if cfg.Delivery.UserAgent != "merchant-tests" {
		t.Fatalf("expected runtime user agent override, got %q", cfg.Delivery.UserAgent)
	}
	if cfg.Delivery.Timeout != core.DefaultDeliveryTimeout || cfg.Delivery.RetryDelay != core.DefaultRetryDelay {
		t.Fatalf("expected default timings, got %#v", cfg.Delivery)
	}
	if manager.Worker() != nil {
		t.Fatalf("expected no worker without a dequeuer")
	}
}

func TestManager_StartStopLifecycle(t *testing.T) {
	manager, err := ipn.NewManager(ipn.DefaultConfig(),
		ipn.WithAuditSink(&memoryAudit{}),
		ipn.WithJobEnqueuer(&memoryEnqueuer{}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := manager.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if got := manager.Bus().HandlerCount(core.EventKindInvoiceState); got != 1 {
		t.Fatalf("expected one state handler, got %d", got)
	}
	if err := manager.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := manager.Bus().HandlerCount(core.EventKindInvoiceState); got != 0 {
		t.Fatalf("expected handlers released on stop, got %d", got)
	}
	if err := manager.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestManager_PublishCommandAuditsWithoutNotifying(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	audit := &memoryAudit{}
	manager, err := ipn.NewManager(ipn.DefaultConfig(),
		ipn.WithAuditSink(audit),
		ipn.WithJobEnqueuer(&memoryEnqueuer{}),
		ipn.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = manager.Stop(ctx) }()

	invoice := testInvoice("inv_expired", core.InvoiceStatusExpired, server.URL)
	err = manager.Facade().Commands().PublishInvoiceEvent.Execute(ctx, ipncommand.PublishInvoiceEventMessage{
		Event: core.InvoiceStateEvent{
			InvoiceID: invoice.ID,
			Name:      core.EventNameInvoiceExpired,
			Code:      1004,
			Invoice:   &invoice,
		},
	})
	if err != nil {
		t.Fatalf("publish command: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no delivery for expired invoice without full notifications")
	}
	if kinds := audit.kinds(invoice.ID); len(kinds) != 1 || kinds[0] != core.EventKindInvoiceState {
		t.Fatalf("expected state event to be audited, got %v", kinds)
	}

	records, err := manager.Facade().Queries().ListInvoiceEvents.Query(ctx, ipnquery.ListInvoiceEventsMessage{InvoiceID: invoice.ID})
	if err != nil {
		t.Fatalf("list invoice events: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected audit reader to be resolved from the sink, got %d records", len(records))
	}
}

func TestManager_FailedFirstAttemptIsRetriedByDurableQueue(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cfg := ipn.DefaultConfig()
	cfg.Worker.PollInterval = 10 * time.Millisecond
	cfg.Worker.Concurrency = 2

	manager, err := ipn.NewManager(cfg,
		ipn.WithPersistenceClient(client),
		ipn.WithAuditCache(newTestCacheService(t)),
		ipn.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if manager.Worker() == nil {
		t.Fatalf("expected worker wired from the sql job queue")
	}

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = manager.Stop(ctx) }()

	invoice := testInvoice("inv_retry", core.InvoiceStatusConfirmed, server.URL)
	if err := manager.Publish(ctx, core.InvoiceStateEvent{
		InvoiceID: invoice.ID,
		Name:      core.EventNameInvoiceConfirmed,
		Code:      1005,
		Invoice:   &invoice,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	queries := manager.Facade().Queries()
	var records []core.AuditRecord
	waitFor(t, 5*time.Second, func() bool {
		records, err = queries.ListInvoiceEvents.Query(ctx, ipnquery.ListInvoiceEventsMessage{InvoiceID: invoice.ID})
		return err == nil && len(records) >= 3
	})

	if hits.Load() != 2 {
		t.Fatalf("expected synchronous attempt plus one queued attempt, got %d", hits.Load())
	}
	if records[0].Kind != core.EventKindInvoiceState {
		t.Fatalf("expected state event first, got %s", records[0].Kind)
	}
	if records[1].Kind != core.EventKindDeliveryOutcome || records[1].Error != "Unexpected return code: 503" {
		t.Fatalf("expected failed outcome second, got %#v", records[1])
	}
	if records[2].Kind != core.EventKindDeliveryOutcome || records[2].Error != "" {
		t.Fatalf("expected delivered outcome third, got %#v", records[2])
	}

	var attempts []core.DeliveryAttempt
	waitFor(t, 5*time.Second, func() bool {
		attempts, err = queries.ListDeliveryAttempts.Query(ctx, ipnquery.ListDeliveryAttemptsMessage{InvoiceID: invoice.ID})
		return err == nil && len(attempts) == 2
	})
	for _, attempt := range attempts {
		if attempt.TryCount != 0 {
			t.Fatalf("expected both attempts at try count 0, got %d", attempt.TryCount)
		}
		if attempt.JobIdentity != core.NewJobIdentity(invoice.ID, invoice.Status) {
			t.Fatalf("unexpected job identity %q", attempt.JobIdentity)
		}
	}
}

func testInvoice(id string, status core.InvoiceStatus, url string) core.InvoiceSnapshot {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return core.InvoiceSnapshot{
		ID:              id,
		Status:          status,
		Currency:        "USD",
		InvoiceTime:     now,
		ExpirationTime:  now.Add(15 * time.Minute),
		CurrentTime:     now,
		NotificationURL: url,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type memoryAudit struct {
	mu      sync.Mutex
	records []core.AuditRecord
}

func (a *memoryAudit) AppendEvent(_ context.Context, invoiceID string, event core.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, core.AuditRecord{
		InvoiceID: invoiceID,
		Sequence:  int64(len(a.records) + 1),
		Kind:      event.Kind(),
	})
	return nil
}

func (a *memoryAudit) ListEvents(_ context.Context, invoiceID string) ([]core.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []core.AuditRecord
	for _, record := range a.records {
		if record.InvoiceID == invoiceID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (a *memoryAudit) kinds(invoiceID string) []core.EventKind {
	records, _ := a.ListEvents(context.Background(), invoiceID)
	out := make([]core.EventKind, 0, len(records))
	for _, record := range records {
		out = append(out, record.Kind)
	}
	return out
}

type memoryEnqueuer struct {
	mu       sync.Mutex
	messages []*core.JobExecutionMessage
}

func (q *memoryEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool                { return false }
func (c testPersistenceConfig) GetDriver() string             { return c.driver }
func (c testPersistenceConfig) GetServer() string             { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string     { return "go-ipn-tests" }

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:ipn-manager-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ipnmigrations.Register(ctx, ipnmigrations.DialectSQLite, func(_ context.Context, source ipnmigrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	})
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}
