package workflow

import (
	"context"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

// Assignment returns one assignment to its assignee or a company administrator.
func (s *Service) Assignment(ctx context.Context, actor, assignmentID string) (*types.Assignment, error) {
	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAssigneeOrAdmin(ctx, actor, a, ev); err != nil {
		return nil, err
	}
	return a, nil
}

// EvaluationAssignments lists the active assignments of an evaluation.
func (s *Service) EvaluationAssignments(ctx context.Context, actor, evaluationID string) ([]*types.Assignment, error) {
	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}
	return s.store.ListAssignments(ctx, types.AssignmentFilter{EvaluationID: &ev.ID})
}

// UserAssignments lists a user's active assignments. Users see their own;
// superadmins see anyone's.
func (s *Service) UserAssignments(ctx context.Context, actor, userID string) ([]*types.Assignment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor != userID {
		role, err := s.directory.Role(ctx, actor)
		if err != nil && !evalerrors.HasCode(err, evalerrors.CodeNotFound) {
			return nil, err
		}
		if role != types.RoleSuperAdmin {
			return nil, evalerrors.Newf(evalerrors.CodePermissionDenied, "actor %s may not list assignments of %s", actor, userID)
		}
	}
	return s.store.ListAssignments(ctx, types.AssignmentFilter{AssigneeID: &userID})
}

// History returns the audit trail of an assignment, oldest first. A positive
// limit keeps the most recent entries.
func (s *Service) History(ctx context.Context, actor, assignmentID string, limit int) ([]*types.AssignmentEvent, error) {
	if _, err := s.Assignment(ctx, actor, assignmentID); err != nil {
		return nil, err
	}
	return s.store.GetAssignmentEvents(ctx, assignmentID, limit)
}

// Answers returns the answers recorded under an assignment.
func (s *Service) Answers(ctx context.Context, actor, assignmentID string) ([]*types.Answer, error) {
	if _, err := s.Assignment(ctx, actor, assignmentID); err != nil {
		return nil, err
	}
	return s.store.ListAnswers(ctx, assignmentID)
}
