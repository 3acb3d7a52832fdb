package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/savaki/account-assembler/internal/errors"
)

// WorkflowDetailType is the DetailType shared by every stage-completion
// event; subscribers filter by Source
const WorkflowDetailType = "account-assemble event"

// StageStatus is the terminal status a stage reports on the bus
type StageStatus string

const (
	StageSucceeded StageStatus = "SUCCEEDED"
	StageFailed    StageStatus = "FAILED"
)

// WorkflowEvent is the Detail payload of a stage-completion event
type WorkflowEvent struct {
	Metadata StageMetadata `json:"metadata"`
}

// StageMetadata identifies the completed stage and its outcome
type StageMetadata struct {
	Service string      `json:"service"`
	Status  StageStatus `json:"status"`
}

// EventBridgeAPI is the subset of the EventBridge client used by the
// publisher
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventPublisher emits workflow-stage-completion events onto the bus
type EventPublisher struct {
	client  EventBridgeAPI
	busName string
}

// NewEventPublisher creates a publisher. An empty busName targets the
// default event bus.
func NewEventPublisher(client EventBridgeAPI, busName string) *EventPublisher {
	return &EventPublisher{
		client:  client,
		busName: busName,
	}
}

// PublishStageEvent emits a completion event for the named stage
func (p *EventPublisher) PublishStageEvent(ctx context.Context, service string, status StageStatus) error {
	detail, err := json.Marshal(WorkflowEvent{
		Metadata: StageMetadata{
			Service: service,
			Status:  status,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow event: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		Source:     aws.String(service),
		DetailType: aws.String(WorkflowDetailType),
		Detail:     aws.String(string(detail)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", service, err)
	}

	if result.FailedEntryCount > 0 {
		return fmt.Errorf("%w: %d failed", errors.ErrEventPublishFailed, result.FailedEntryCount)
	}
	return nil
}
