package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ipn/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const maxSequenceRetries = 3

// AuditStore is the append-only invoice event trail. Each invoice has its
// own gapless sequence, assigned inside the insert transaction.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*invoiceEventRecord]
	now  func() time.Time
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*invoiceEventRecord](db, invoiceEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid invoice event repository wiring: %w", err)
		}
	}
	return &AuditStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *AuditStore) AppendEvent(ctx context.Context, invoiceID string, event core.Event) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return core.NewError("sqlstore: audit invoice id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if event == nil {
		return core.NewError("sqlstore: audit event is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	payload, err := eventPayload(event)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		lastErr = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			sequence, seqErr := s.nextSequence(ctx, tx, invoiceID)
			if seqErr != nil {
				return seqErr
			}
			record := &invoiceEventRecord{
				ID:           uuid.NewString(),
				InvoiceID:    invoiceID,
				Sequence:     sequence,
				Kind:         string(event.Kind()),
				Payload:      payload,
				ErrorMessage: eventError(event),
				CreatedAt:    s.now(),
			}
			_, createErr := s.repo.CreateTx(ctx, tx, record)
			return createErr
		})
		if lastErr == nil || !isUniqueViolation(lastErr) {
			break
		}
	}
	if lastErr != nil {
		return core.WrapError(lastErr, goerrors.CategoryOperation, core.ErrorAuditFailed, "sqlstore: audit append failed")
	}
	return nil
}

func (s *AuditStore) ListEvents(ctx context.Context, invoiceID string) ([]core.AuditRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("invoice_id", "=", strings.TrimSpace(invoiceID)),
		repository.OrderBy("sequence ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuditRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AuditStore) nextSequence(ctx context.Context, tx bun.Tx, invoiceID string) (int64, error) {
	var maxSequence int64
	if err := tx.NewSelect().
		Model((*invoiceEventRecord)(nil)).
		ColumnExpr("COALESCE(MAX(sequence), 0)").
		Where("?TableAlias.invoice_id = ?", invoiceID).
		Scan(ctx, &maxSequence); err != nil {
		return 0, err
	}
	return maxSequence + 1, nil
}

func (r *invoiceEventRecord) toDomain() core.AuditRecord {
	if r == nil {
		return core.AuditRecord{}
	}
	return core.AuditRecord{
		ID:        r.ID,
		InvoiceID: r.InvoiceID,
		Sequence:  r.Sequence,
		Kind:      core.EventKind(r.Kind),
		Payload:   copyAnyMap(r.Payload),
		Error:     r.ErrorMessage,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func eventPayload(event core.Event) (map[string]any, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, core.ErrorAuditFailed, "sqlstore: encode audit event failed")
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, core.ErrorAuditFailed, "sqlstore: audit event is not an object")
	}
	return payload, nil
}

func eventError(event core.Event) string {
	switch typed := event.(type) {
	case core.DeliveryOutcomeEvent:
		return typed.Error
	case *core.DeliveryOutcomeEvent:
		if typed != nil {
			return typed.Error
		}
	}
	return ""
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}

var (
	_ core.AuditSink   = (*AuditStore)(nil)
	_ core.AuditReader = (*AuditStore)(nil)
)
