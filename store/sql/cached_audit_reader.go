package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-ipn/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const invoiceEventsCacheKeyPrefix = "go-ipn::invoice_events::v1"

// AuditTrail is a store that both appends and lists invoice events.
type AuditTrail interface {
	core.AuditSink
	core.AuditReader
}

// CachedAuditTrail serves audit reads from a cache and drops the cached
// entry for an invoice whenever an event is appended to it.
type CachedAuditTrail struct {
	base  AuditTrail
	cache repositorycache.CacheService
}

func NewCachedAuditTrail(base AuditTrail, cacheService repositorycache.CacheService) (*CachedAuditTrail, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base audit trail is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: audit cache service is required")
	}
	return &CachedAuditTrail{base: base, cache: cacheService}, nil
}

// InvoiceEventsCacheKey returns go-ipn::invoice_events::v1::<invoice_id> with
// the id URL-path escaped.
func InvoiceEventsCacheKey(invoiceID string) (string, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return "", fmt.Errorf("sqlstore: invoice id is required")
	}
	return invoiceEventsCacheKeyPrefix + "::" + url.PathEscape(invoiceID), nil
}

func (s *CachedAuditTrail) ListEvents(ctx context.Context, invoiceID string) ([]core.AuditRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached audit trail is not configured")
	}
	cacheKey, err := InvoiceEventsCacheKey(invoiceID)
	if err != nil {
		return nil, err
	}
	records, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.AuditRecord, error) {
		fetched, fetchErr := s.base.ListEvents(ctx, strings.TrimSpace(invoiceID))
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneAuditRecords(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneAuditRecords(records), nil
}

func (s *CachedAuditTrail) AppendEvent(ctx context.Context, invoiceID string, event core.Event) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached audit trail is not configured")
	}
	if err := s.base.AppendEvent(ctx, invoiceID, event); err != nil {
		return err
	}
	cacheKey, err := InvoiceEventsCacheKey(invoiceID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneAuditRecords(records []core.AuditRecord) []core.AuditRecord {
	if records == nil {
		return nil
	}
	out := make([]core.AuditRecord, len(records))
	for i, record := range records {
		out[i] = record
		out[i].Payload = copyAnyMap(record.Payload)
	}
	return out
}

var _ AuditTrail = (*CachedAuditTrail)(nil)
