package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evalflow/evalflow/internal/types"
)

func newNotification(eventType EventType, a *types.Assignment, actorID, targetUserID, message string) *Notification {
	return &Notification{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now(),
		AssignmentID: a.ID,
		EvaluationID: a.EvaluationID,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		Message:      message,
	}
}

// NewAssignmentCreated notifies the assignee that work was assigned to them.
func NewAssignmentCreated(a *types.Assignment, actorID string) *Notification {
	return newNotification(EventTypeAssignmentCreated, a, actorID, a.AssigneeID,
		fmt.Sprintf("assignment %s created with deadline %s", a.ID, a.Deadline.Format(time.RFC3339)))
}

// NewAssignmentSubmittedForReview notifies the assigning admin that work awaits review.
func NewAssignmentSubmittedForReview(a *types.Assignment, actorID string) *Notification {
	return newNotification(EventTypeAssignmentSubmittedForReview, a, actorID, a.AssignedBy,
		fmt.Sprintf("assignment %s submitted for review", a.ID))
}

// NewAssignmentCompleted notifies the assigning admin that unreviewed work completed.
func NewAssignmentCompleted(a *types.Assignment, actorID string) *Notification {
	return newNotification(EventTypeAssignmentCompleted, a, actorID, a.AssignedBy,
		fmt.Sprintf("assignment %s completed", a.ID))
}

// NewAssignmentApproved notifies the assignee that the reviewer approved their work.
func NewAssignmentApproved(a *types.Assignment, reviewerID string, data ReviewData) (*Notification, error) {
	n := newNotification(EventTypeAssignmentApproved, a, reviewerID, a.AssigneeID,
		fmt.Sprintf("assignment %s approved", a.ID))
	if err := n.SetReviewData(data); err != nil {
		return nil, err
	}
	return n, nil
}

// NewAssignmentRejected notifies the assignee that the reviewer rejected their work.
func NewAssignmentRejected(a *types.Assignment, reviewerID string, data ReviewData) (*Notification, error) {
	n := newNotification(EventTypeAssignmentRejected, a, reviewerID, a.AssigneeID,
		fmt.Sprintf("assignment %s rejected: %s", a.ID, data.Comments))
	if err := n.SetReviewData(data); err != nil {
		return nil, err
	}
	return n, nil
}

// NewAssignmentReassigned notifies the new assignee that work moved to them.
func NewAssignmentReassigned(a *types.Assignment, actorID string, data ReassignData) (*Notification, error) {
	n := newNotification(EventTypeAssignmentReassigned, a, actorID, a.AssigneeID,
		fmt.Sprintf("assignment %s reassigned from %s", a.ID, data.PreviousAssigneeID))
	if err := n.SetReassignData(data); err != nil {
		return nil, err
	}
	return n, nil
}
