package webhooks

import (
	"errors"
	"fmt"
	"testing"
)

func TestOutcomeMessages(t *testing.T) {
	cases := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{name: "delivered", outcome: classifyStatus(200), want: ""},
		{name: "accepted is not delivered", outcome: classifyStatus(202), want: "Unexpected return code: 202"},
		{name: "server error", outcome: classifyStatus(503), want: "Unexpected return code: 503"},
		{name: "timeout", outcome: timeoutOutcome(), want: "Timeout"},
		{name: "transport", outcome: transportOutcome(errors.New("connection refused")), want: "Unexpected error: connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.outcome.Message(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestErrorChain_JoinsCausesOutermostFirst(t *testing.T) {
	root := errors.New("connection refused")
	mid := fmt.Errorf("dial tcp 127.0.0.1:9: %w", root)
	top := fmt.Errorf("post notification: %w", mid)

	got := ErrorChain(top)
	want := "post notification,dial tcp 127.0.0.1:9,connection refused"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestErrorChain_KeepsMessagesThatDoNotEmbedCause(t *testing.T) {
	root := errors.New("reset by peer")
	top := &wrapped{msg: "read failed", err: root}
	if got := ErrorChain(top); got != "read failed,reset by peer" {
		t.Fatalf("unexpected chain %q", got)
	}
}

type wrapped struct {
	msg string
	err error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.err }
