// Package events defines the notifications the workflow engine emits for the
// notification collaborator and the fire-and-forget dispatcher that delivers
// them. The engine never waits on delivery.
package events

import (
	"context"
	"fmt"
	"time"
)

// EventType represents the type of notification emitted by the workflow engine.
type EventType string

const (
	// EventTypeAssignmentCreated indicates an assignment was created for a user
	EventTypeAssignmentCreated EventType = "AssignmentCreated"
	// EventTypeAssignmentSubmittedForReview indicates completed work entered review
	EventTypeAssignmentSubmittedForReview EventType = "AssignmentSubmittedForReview"
	// EventTypeAssignmentApproved indicates a reviewer approved the work
	EventTypeAssignmentApproved EventType = "AssignmentApproved"
	// EventTypeAssignmentRejected indicates a reviewer rejected the work
	EventTypeAssignmentRejected EventType = "AssignmentRejected"
	// EventTypeAssignmentReassigned indicates the work moved to another user
	EventTypeAssignmentReassigned EventType = "AssignmentReassigned"
	// EventTypeAssignmentCompleted indicates work completed without review
	EventTypeAssignmentCompleted EventType = "AssignmentCompleted"
)

// IsValid checks if the event type value is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeAssignmentCreated, EventTypeAssignmentSubmittedForReview,
		EventTypeAssignmentApproved, EventTypeAssignmentRejected,
		EventTypeAssignmentReassigned, EventTypeAssignmentCompleted:
		return true
	}
	return false
}

// Notification is a fire-and-forget message for the notification collaborator.
type Notification struct {
	// ID is the unique identifier for this notification
	ID string `json:"id"`
	// Type is the type of notification
	Type EventType `json:"type"`
	// Timestamp is when the underlying change committed
	Timestamp time.Time `json:"timestamp"`
	// AssignmentID is the assignment the change applies to
	AssignmentID string `json:"assignment_id"`
	// EvaluationID is the parent evaluation
	EvaluationID string `json:"evaluation_id"`
	// ActorID is the user who performed the change
	ActorID string `json:"actor_id"`
	// TargetUserID is the user who should be notified
	TargetUserID string `json:"target_user_id"`
	// Message is a human-readable description
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// Validate checks that the notification carries every routing field.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("invalid event type: %s", n.Type)
	}
	if n.AssignmentID == "" {
		return fmt.Errorf("assignment_id is required")
	}
	if n.EvaluationID == "" {
		return fmt.Errorf("evaluation_id is required")
	}
	if n.ActorID == "" {
		return fmt.Errorf("actor_id is required")
	}
	if n.TargetUserID == "" {
		return fmt.Errorf("target_user_id is required")
	}
	return nil
}

// ReviewData contains structured data for approval and rejection notifications.
type ReviewData struct {
	// Comments are the reviewer's comments (required on rejection)
	Comments string `json:"comments,omitempty"`
	// ReviewedAt is when the decision was recorded
	ReviewedAt time.Time `json:"reviewed_at"`
}

// ReassignData contains structured data for reassignment notifications.
type ReassignData struct {
	// PreviousAssigneeID is the user who held the work before
	PreviousAssigneeID string `json:"previous_assignee_id"`
	// Reason is the optional motivo given by the actor
	Reason string `json:"reason,omitempty"`
}

// Publisher accepts notifications without blocking the caller.
type Publisher interface {
	Publish(n *Notification)
}

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// NopPublisher discards every notification.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(*Notification) {}
