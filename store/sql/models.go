package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type invoiceEventRecord struct {
	bun.BaseModel `bun:"table:ipn_invoice_events,alias:iie"`

	ID           string         `bun:"id,pk"`
	InvoiceID    string         `bun:"invoice_id,notnull"`
	Sequence     int64          `bun:"sequence,notnull"`
	Kind         string         `bun:"kind,notnull"`
	Payload      map[string]any `bun:"payload,type:jsonb,notnull"`
	ErrorMessage string         `bun:"error_message,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type jobRecord struct {
	bun.BaseModel `bun:"table:ipn_jobs,alias:ij"`

	ID             string         `bun:"id,pk"`
	JobID          string         `bun:"job_id,notnull"`
	ScriptPath     string         `bun:"script_path,notnull"`
	IdempotencyKey string         `bun:"idempotency_key,notnull"`
	DedupPolicy    string         `bun:"dedup_policy,notnull"`
	Parameters     map[string]any `bun:"parameters,type:jsonb,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	AvailableAt    time.Time      `bun:"available_at,notnull"`
	LeaseUntil     *time.Time     `bun:"lease_until,nullzero"`
	LastError      string         `bun:"last_error,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:ipn_delivery_attempts,alias:ida"`

	ID           string    `bun:"id,pk"`
	JobIdentity  string    `bun:"job_identity,notnull"`
	InvoiceID    string    `bun:"invoice_id,notnull"`
	TryCount     int       `bun:"try_count,notnull"`
	Outcome      string    `bun:"outcome,notnull"`
	StatusCode   int       `bun:"status_code,notnull"`
	ErrorMessage string    `bun:"error_message,notnull"`
	DurationMS   int64     `bun:"duration_ms,notnull"`
	AttemptedAt  time.Time `bun:"attempted_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
