package sqlstore

import "github.com/goliatone/go-ipn/core"

var (
	_ core.AuditSink             = (*CachedAuditTrail)(nil)
	_ core.AuditReader           = (*CachedAuditTrail)(nil)
	_ core.DeliveryAttemptLedger = (*DeliveryAttemptStore)(nil)
	_ core.JobEnqueuer           = (*JobQueueStore)(nil)
	_ core.JobDequeuer           = (*JobQueueStore)(nil)
)
