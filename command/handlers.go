package command

import (
	"context"

	"github.com/goliatone/go-ipn/core"
)

type JobRunner interface {
	RunJob(ctx context.Context, payload []byte) error
}

type RunDeliveryJobCommand struct {
	runner JobRunner
}

func NewRunDeliveryJobCommand(runner JobRunner) *RunDeliveryJobCommand {
	return &RunDeliveryJobCommand{runner: runner}
}

func (c *RunDeliveryJobCommand) Execute(ctx context.Context, msg RunDeliveryJobMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: delivery job runner is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.runner.RunJob(ctx, msg.Payload)
}

// HandleMessage adapts the command to a job worker handler.
func (c *RunDeliveryJobCommand) HandleMessage(ctx context.Context, msg *core.JobExecutionMessage) error {
	payload, err := core.DeliveryJobPayload(msg)
	if err != nil {
		return err
	}
	return c.Execute(ctx, RunDeliveryJobMessage{Payload: payload})
}

type PublishInvoiceEventCommand struct {
	publisher core.EventPublisher
}

func NewPublishInvoiceEventCommand(publisher core.EventPublisher) *PublishInvoiceEventCommand {
	return &PublishInvoiceEventCommand{publisher: publisher}
}

func (c *PublishInvoiceEventCommand) Execute(ctx context.Context, msg PublishInvoiceEventMessage) error {
	if c == nil || c.publisher == nil {
		return commandDependencyError("command: event publisher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.publisher.Publish(ctx, msg.Event)
}
