package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type JobEventType string

const (
	JobEventCreated           JobEventType = "created"
	JobEventClaimed           JobEventType = "claimed"
	JobEventIteration         JobEventType = "iteration"
	JobEventApprovalRequested JobEventType = "approval_requested"
	JobEventApproved          JobEventType = "approved"
	JobEventRejected          JobEventType = "rejected"
	JobEventRetryScheduled    JobEventType = "retry_scheduled"
	JobEventPaused            JobEventType = "paused"
	JobEventResumed           JobEventType = "resumed"
	JobEventCompleted         JobEventType = "completed"
	JobEventFailed            JobEventType = "failed"
	JobEventNote              JobEventType = "note"
)

// JobEvent is one write-once timeline entry. ULID ids sort in creation order,
// which is what makes the event list an audit trail.
type JobEvent struct {
	ID        string
	JobID     string
	Stage     Stage
	Type      JobEventType
	Message   string
	Meta      map[string]interface{} // serialized as JSONB
	CreatedAt time.Time
}

func NewJobEvent(jobID string, stage Stage, typ JobEventType, message string) *JobEvent {
	return &JobEvent{
		ID:        ulid.Make().String(),
		JobID:     jobID,
		Stage:     stage,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// WithMeta attaches structured metadata and returns the event for chaining.
func (e *JobEvent) WithMeta(meta map[string]interface{}) *JobEvent {
	e.Meta = meta
	return e
}
