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
)

type DeliveryAttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewDeliveryAttemptStore(db *bun.DB) (*DeliveryAttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, deliveryAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery attempt repository wiring: %w", err)
		}
	}
	return &DeliveryAttemptStore{db: db, repo: repo}, nil
}

func (s *DeliveryAttemptStore) Record(ctx context.Context, attempt core.DeliveryAttempt) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	invoiceID := strings.TrimSpace(attempt.InvoiceID)
	if invoiceID == "" {
		return fmt.Errorf("sqlstore: delivery attempt invoice id is required")
	}
	attemptedAt := attempt.AttemptedAt.UTC()
	if attempt.AttemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}
	record := &deliveryAttemptRecord{
		ID:           uuid.NewString(),
		JobIdentity:  strings.TrimSpace(attempt.JobIdentity.String()),
		InvoiceID:    invoiceID,
		TryCount:     attempt.TryCount,
		Outcome:      strings.TrimSpace(attempt.Outcome),
		StatusCode:   attempt.StatusCode,
		ErrorMessage: attempt.Error,
		DurationMS:   attempt.Duration.Milliseconds(),
		AttemptedAt:  attemptedAt,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *DeliveryAttemptStore) ListAttempts(ctx context.Context, invoiceID string) ([]core.DeliveryAttempt, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: delivery attempt store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("invoice_id", "=", strings.TrimSpace(invoiceID)),
		repository.OrderBy("attempted_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (r *deliveryAttemptRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		JobIdentity: core.JobIdentity(r.JobIdentity),
		InvoiceID:   r.InvoiceID,
		TryCount:    r.TryCount,
		Outcome:     r.Outcome,
		StatusCode:  r.StatusCode,
		Error:       r.ErrorMessage,
		Duration:    time.Duration(r.DurationMS) * time.Millisecond,
		AttemptedAt: r.AttemptedAt.UTC(),
	}
}

var _ core.DeliveryAttemptLedger = (*DeliveryAttemptStore)(nil)
