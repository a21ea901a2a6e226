package webhooks

import (
	"strings"
	"sync"

	"github.com/goliatone/go-ipn/core"
)

// ExecutionGuard admits at most one in-flight delivery per job identity. The
// lock is only held for the insert or remove, never across an attempt.
type ExecutionGuard struct {
	mu      sync.Mutex
	entries map[core.JobIdentity]struct{}
}

func NewExecutionGuard() *ExecutionGuard {
	return &ExecutionGuard{entries: map[core.JobIdentity]struct{}{}}
}

// TryAcquire registers identity and reports whether the caller won.
func (g *ExecutionGuard) TryAcquire(identity core.JobIdentity) bool {
	if g == nil {
		return true
	}
	identity = core.JobIdentity(strings.TrimSpace(identity.String()))
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entries == nil {
		g.entries = map[core.JobIdentity]struct{}{}
	}
	if _, held := g.entries[identity]; held {
		return false
	}
	g.entries[identity] = struct{}{}
	return true
}

func (g *ExecutionGuard) Release(identity core.JobIdentity) {
	if g == nil {
		return
	}
	identity = core.JobIdentity(strings.TrimSpace(identity.String()))
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, identity)
}

func (g *ExecutionGuard) Held(identity core.JobIdentity) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.entries[core.JobIdentity(strings.TrimSpace(identity.String()))]
	return held
}

func (g *ExecutionGuard) Len() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
