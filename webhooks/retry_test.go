package webhooks

import (
	"testing"
	"time"
)

func TestRetryPlanner_BoundsTryCount(t *testing.T) {
	planner := DefaultRetryPlanner()
	failed := classifyStatus(500)

	decision := planner.Plan(failed, 5)
	if !decision.Retry || decision.NextTryCount != 6 {
		t.Fatalf("expected try 5 to reschedule with 6, got %#v", decision)
	}
	if decision.Delay != 10*time.Minute {
		t.Fatalf("expected fixed 10 minute delay, got %s", decision.Delay)
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected no remaining tries, got %d", decision.Remaining)
	}

	decision = planner.Plan(failed, 6)
	if decision.Retry || !decision.Exhausted {
		t.Fatalf("expected try 6 to stop, got %#v", decision)
	}
}

func TestRetryPlanner_DeliveredNeverRetries(t *testing.T) {
	decision := DefaultRetryPlanner().Plan(classifyStatus(200), 0)
	if decision.Retry || decision.Exhausted {
		t.Fatalf("expected no retry after delivery, got %#v", decision)
	}
}

func TestRetryPlanner_FirstQueuedFailure(t *testing.T) {
	decision := DefaultRetryPlanner().Plan(timeoutOutcome(), 0)
	if !decision.Retry || decision.NextTryCount != 1 || decision.Remaining != 5 {
		t.Fatalf("unexpected decision %#v", decision)
	}
}
