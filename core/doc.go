// Package core holds the invoice notification domain model, collaborator
// contracts, and the in-process plumbing shared by the delivery packages:
// the event bus, the durable job scheduler, and the job worker. Adapters and
// stores depend on core; core depends on none of them.
package core
