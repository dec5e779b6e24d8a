// Package events defines the event types published over the bus for
// campaign execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/casthq/caster/pkg/models"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "caster.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionQueuedEvent    EventType = "execution.queued"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionProgressEvent  EventType = "execution.progress"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
}

// ExecutionQueued is the fire-and-forget handoff from the API to a
// worker: the request handler persists the queued record, publishes this
// and returns immediately.
type ExecutionQueued struct {
	BaseEvent

	OrganizationID string `json:"organization_id"`
}

func (e ExecutionQueued) GetType() EventType { return ExecutionQueuedEvent }

type ExecutionStarted struct {
	BaseEvent
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

// ExecutionProgress relays a progress snapshot so external transports
// (websocket gateways, dashboards) can mirror the in-process broadcaster.
type ExecutionProgress struct {
	BaseEvent

	Snapshot models.ProgressSnapshot `json:"snapshot"`
}

func (e ExecutionProgress) GetType() EventType { return ExecutionProgressEvent }

type ExecutionCompleted struct {
	BaseEvent

	Snapshot models.ProgressSnapshot `json:"snapshot"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCancelled struct {
	BaseEvent

	Snapshot models.ProgressSnapshot `json:"snapshot"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }
