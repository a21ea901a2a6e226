package webhooks

import (
	"time"

	"github.com/goliatone/go-ipn/core"
)

type RetryDecision struct {
	Retry        bool
	Delay        time.Duration
	NextTryCount int
	// Remaining is the number of queued tries left after the rescheduled one.
	Remaining int
	// Exhausted is set when a failed attempt had no tries left.
	Exhausted bool
}

// RetryPlanner uses a fixed delay. A failed attempt at tryCount is
// rescheduled while tryCount < MaxTry, so the counter never exceeds MaxTry.
type RetryPlanner struct {
	MaxTry int
	Delay  time.Duration
}

func DefaultRetryPlanner() RetryPlanner {
	return RetryPlanner{
		MaxTry: core.DefaultMaxTry,
		Delay:  core.DefaultRetryDelay,
	}
}

func (p RetryPlanner) Plan(outcome Outcome, tryCount int) RetryDecision {
	if outcome.Succeeded() {
		return RetryDecision{}
	}
	if tryCount < 0 {
		tryCount = 0
	}
	if tryCount >= p.MaxTry {
		return RetryDecision{Exhausted: true}
	}
	next := tryCount + 1
	delay := p.Delay
	if delay < 0 {
		delay = 0
	}
	return RetryDecision{
		Retry:        true,
		Delay:        delay,
		NextTryCount: next,
		Remaining:    p.MaxTry - next,
	}
}
