package core

import "context"

const (
	MetricDeliveryTotal       = "ipn.delivery.total"
	MetricDeliveryDurationMS  = "ipn.delivery.duration_ms"
	MetricDeliveryRescheduled = "ipn.delivery.rescheduled"
	MetricDeliveryExhausted   = "ipn.delivery.exhausted"
	MetricGuardDropped        = "ipn.guard.dropped"
	MetricScheduleFailed      = "ipn.delivery.schedule_failed"
	MetricAuditFailed         = "ipn.audit.failed"
	MetricJobsProcessed       = "ipn.jobs.processed"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
