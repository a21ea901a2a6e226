package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ipn/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusDead       = "dead"

	defaultJobLease = time.Minute
)

// JobQueueStore is a durable delayed job queue on top of a SQL table. A
// claimed job is leased; if the lease expires before Ack or Nack the job is
// handed out again.
type JobQueueStore struct {
	db    *bun.DB
	repo  repository.Repository[*jobRecord]
	lease time.Duration
	now   func() time.Time
}

func NewJobQueueStore(db *bun.DB) (*JobQueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobQueueStore{
		db:    db,
		repo:  repo,
		lease: defaultJobLease,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *JobQueueStore) WithLease(lease time.Duration) *JobQueueStore {
	if s != nil && lease > 0 {
		s.lease = lease
	}
	return s
}

func (s *JobQueueStore) WithClock(now func() time.Time) *JobQueueStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *JobQueueStore) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: job queue store is not configured")
	}
	if msg == nil {
		return fmt.Errorf("sqlstore: execution message is required")
	}
	jobID := strings.TrimSpace(msg.JobID)
	if jobID == "" {
		return fmt.Errorf("sqlstore: job id is required")
	}
	now := s.now()
	availableAt := msg.AvailableAt.UTC()
	if msg.AvailableAt.IsZero() {
		availableAt = now
	}
	record := &jobRecord{
		ID:             uuid.NewString(),
		JobID:          jobID,
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(msg.DedupPolicy),
		Parameters:     copyAnyMap(msg.Parameters),
		Status:         JobStatusPending,
		AvailableAt:    availableAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// Dequeue claims the oldest due job, or a job whose lease has expired. It
// returns core.ErrNoJobAvailable when nothing is runnable.
func (s *JobQueueStore) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job queue store is not configured")
	}
	now := s.now()
	leaseUntil := now.Add(s.lease)
	var records []jobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := claimJobQuery(s.db.Dialect().Name())
		return tx.NewRaw(
			query,
			JobStatusPending,
			now,
			JobStatusProcessing,
			now,
			JobStatusProcessing,
			leaseUntil,
			now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrNoJobAvailable
	}
	record := records[0]
	return &jobDelivery{store: s, record: record}, nil
}

// claimJobQuery selects one runnable job and leases it. On postgres the
// candidate row is locked with SKIP LOCKED, so a row held by another worker
// is passed over.
func claimJobQuery(name dialect.Name) string {
	lock := ""
	if name == dialect.PG {
		lock = "\n\tFOR UPDATE SKIP LOCKED"
	}
	return `
WITH claimed AS (
	SELECT id
	FROM ipn_jobs
	WHERE (status = ? AND available_at <= ?)
	   OR (status = ? AND lease_until IS NOT NULL AND lease_until <= ?)
	ORDER BY available_at ASC
	LIMIT 1` + lock + `
)
UPDATE ipn_jobs
SET status = ?, lease_until = ?, attempts = attempts + 1, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
RETURNING
	id,
	job_id,
	script_path,
	idempotency_key,
	dedup_policy,
	parameters,
	status,
	attempts,
	available_at,
	lease_until,
	last_error,
	created_at,
	updated_at
`
}

// CountByStatus is used by operators and tests to inspect queue depth.
func (s *JobQueueStore) CountByStatus(ctx context.Context, status string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job queue store is not configured")
	}
	return s.db.NewSelect().
		Model((*jobRecord)(nil)).
		Where("?TableAlias.status = ?", strings.TrimSpace(status)).
		Count(ctx)
}

func (s *JobQueueStore) complete(ctx context.Context, id string) error {
	_, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", JobStatusDone).
		Set("lease_until = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("status = ?", JobStatusProcessing).
		Exec(ctx)
	return err
}

func (s *JobQueueStore) release(ctx context.Context, id string, opts core.JobNackOptions) error {
	now := s.now()
	status := JobStatusPending
	if opts.DeadLetter {
		status = JobStatusDead
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}
	_, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", status).
		Set("available_at = ?", now.Add(delay)).
		Set("lease_until = NULL").
		Set("last_error = ?", strings.TrimSpace(opts.Reason)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", JobStatusProcessing).
		Exec(ctx)
	return err
}

type jobDelivery struct {
	store  *JobQueueStore
	record jobRecord
}

func (d *jobDelivery) Message() *core.JobExecutionMessage {
	if d == nil {
		return nil
	}
	// The row's available_at is already due, so the message is runnable now.
	return &core.JobExecutionMessage{
		JobID:          d.record.JobID,
		ScriptPath:     d.record.ScriptPath,
		Parameters:     copyAnyMap(d.record.Parameters),
		IdempotencyKey: d.record.IdempotencyKey,
		DedupPolicy:    d.record.DedupPolicy,
	}
}

func (d *jobDelivery) Ack(ctx context.Context) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("sqlstore: job delivery is not configured")
	}
	return d.store.complete(ctx, d.record.ID)
}

func (d *jobDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("sqlstore: job delivery is not configured")
	}
	return d.store.release(ctx, d.record.ID, opts)
}

var (
	_ core.JobEnqueuer = (*JobQueueStore)(nil)
	_ core.JobDequeuer = (*JobQueueStore)(nil)
	_ core.JobDelivery = (*jobDelivery)(nil)
)
