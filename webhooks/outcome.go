package webhooks

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type OutcomeKind string

const (
	OutcomeDelivered      OutcomeKind = "delivered"
	OutcomeNonOkResponse  OutcomeKind = "non_ok_response"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeTransportError OutcomeKind = "transport_error"
)

// Outcome is the classified result of one delivery attempt.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	// Cause is the comma-joined causal chain for transport errors.
	Cause    string
	Duration time.Duration
}

func deliveredOutcome(statusCode int) Outcome {
	return Outcome{Kind: OutcomeDelivered, StatusCode: statusCode}
}

func nonOkOutcome(statusCode int) Outcome {
	return Outcome{Kind: OutcomeNonOkResponse, StatusCode: statusCode}
}

func timeoutOutcome() Outcome {
	return Outcome{Kind: OutcomeTimeout}
}

func transportOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, Cause: ErrorChain(err)}
}

// classifyStatus treats exactly 200 as delivered.
func classifyStatus(statusCode int) Outcome {
	if statusCode == http.StatusOK {
		return deliveredOutcome(statusCode)
	}
	return nonOkOutcome(statusCode)
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeDelivered
}

// Message is the error text published with the outcome event. It is empty
// for delivered attempts.
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeDelivered:
		return ""
	case OutcomeNonOkResponse:
		return fmt.Sprintf("Unexpected return code: %d", o.StatusCode)
	case OutcomeTimeout:
		return "Timeout"
	default:
		return "Unexpected error: " + o.Cause
	}
}

func (o Outcome) String() string {
	if o.Succeeded() {
		return string(o.Kind)
	}
	return string(o.Kind) + ": " + o.Message()
}

// ErrorChain lists the messages of err and every wrapped cause, outermost
// first, joined by commas. Each level drops the suffix contributed by the
// cause it wraps.
func ErrorChain(err error) string {
	if err == nil {
		return ""
	}
	messages := make([]string, 0, 4)
	for current := err; current != nil; {
		next := errors.Unwrap(current)
		message := current.Error()
		if next != nil {
			inner := next.Error()
			if trimmed := strings.TrimSuffix(message, inner); trimmed != message {
				message = strings.TrimRight(strings.TrimSpace(trimmed), ":")
			}
		}
		if message = strings.TrimSpace(message); message != "" {
			messages = append(messages, message)
		}
		current = next
	}
	return strings.Join(messages, ",")
}
