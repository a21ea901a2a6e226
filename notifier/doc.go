// Package notifier turns invoice domain events into merchant notifications.
// Every subscribed event is written to the audit trail first; state events
// may then produce one or two notification intents which are attempted
// synchronously and handed to the durable queue when that attempt fails.
package notifier
