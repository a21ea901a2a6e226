// Package webhooks delivers invoice notifications to merchant endpoints.
//
// A delivery lineage moves through:
// guarded attempt -> outcome event -> retry plan -> durable reschedule.
// Only one attempt per job identity runs at a time inside a process; the
// durable queue is responsible for surviving restarts.
package webhooks
