package workflow

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/events"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/types"
)

// EditAnswer saves the answer to one question of an assignment.
//
// The assignee edits in answering mode: the answered count is re-read and the
// state re-derived, which also reopens rejected work. An administrator edits
// in review mode, only while the work is pending review, and the state does
// not change.
func (s *Service) EditAnswer(ctx context.Context, actor, assignmentID, questionID, value string) (*types.Assignment, error) {
	if strings.TrimSpace(value) == "" {
		return nil, evalerrors.Validation("answer value is required")
	}
	return s.changeAnswer(ctx, "EditAnswer", actor, assignmentID, questionID, func(ctx context.Context, editor AnswerEditor) error {
		return editor.SaveAnswer(ctx, &types.Answer{
			AssignmentID: assignmentID,
			QuestionID:   questionID,
			Value:        value,
			AnsweredBy:   actor,
			UpdatedAt:    s.now(),
		})
	})
}

// RetractAnswer removes the answer to one question. Only the assignee can
// retract answers.
func (s *Service) RetractAnswer(ctx context.Context, actor, assignmentID, questionID string) (*types.Assignment, error) {
	return s.changeAnswer(ctx, "RetractAnswer", actor, assignmentID, questionID, func(ctx context.Context, editor AnswerEditor) error {
		removed, err := editor.RetractAnswer(ctx, assignmentID, questionID)
		if err != nil {
			return err
		}
		if !removed {
			return evalerrors.NotFound("answer", questionID)
		}
		return nil
	})
}

func (s *Service) changeAnswer(ctx context.Context, op, actor, assignmentID, questionID string, apply func(context.Context, AnswerEditor) error) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, op,
		attribute.String("assignment.id", assignmentID),
		attribute.String("question.id", questionID),
		attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, op, err) }()

	if questionID == "" {
		return nil, evalerrors.Validation("question id is required")
	}
	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAssigneeOrAdmin(ctx, actor, a, ev); err != nil {
		return nil, err
	}
	reviewMode := actor != a.AssigneeID
	if reviewMode && op == "RetractAnswer" {
		return nil, evalerrors.New(evalerrors.CodePermissionDenied, "only the assignee can retract answers")
	}

	var notes []*events.Notification
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		var ev *types.Evaluation
		var err error
		a, ev, err = tx.LockAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if err := requireOpen(a, ev); err != nil {
			return err
		}
		if err := checkQuestion(ctx, tx, a, ev, questionID); err != nil {
			return err
		}

		if reviewMode {
			if a.State != types.StatePendingReview {
				return evalerrors.InvalidState("reviewers can only edit answers of work pending review, assignment %s is %s",
					a.ID, a.State)
			}
			if err := apply(ctx, tx); err != nil {
				return err
			}
			return tx.AddEvent(ctx, s.event(a, types.EventAnswerEdited, actor, "", questionID, "review edit"))
		}

		switch {
		case a.State == types.StatePendingReview:
			return evalerrors.InvalidState("assignment %s is pending review and cannot be edited", a.ID)
		case a.State == types.StateCompleted && a.RequiresReview:
			return evalerrors.InvalidState("assignment %s was approved and cannot be edited", a.ID)
		}
		if err := apply(ctx, tx); err != nil {
			return err
		}
		eventType := types.EventAnswerEdited
		if op == "RetractAnswer" {
			eventType = types.EventAnswerRemoved
		}
		if err := tx.AddEvent(ctx, s.event(a, eventType, actor, "", questionID, "")); err != nil {
			return err
		}
		notes, err = s.applyRecount(ctx, tx, a, actor)
		if err != nil {
			return err
		}
		_, _, err = s.recompute(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(notes)
	s.logger.InfoContext(ctx, "answer changed",
		"op", op, "assignment_id", a.ID, "evaluation_id", a.EvaluationID,
		"question_id", questionID, "actor", actor, "review_mode", reviewMode, "state", a.State)
	return a, nil
}

// checkQuestion verifies that the question is covered by the assignment.
func checkQuestion(ctx context.Context, tx storage.Tx, a *types.Assignment, ev *types.Evaluation, questionID string) error {
	q, err := tx.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if a.DimensionID != nil {
		if q.DimensionID != *a.DimensionID {
			return evalerrors.Validation("question %s does not belong to dimension %s", questionID, *a.DimensionID)
		}
		return nil
	}
	dims, err := tx.ListDimensions(ctx, ev.SurveyID)
	if err != nil {
		return err
	}
	for _, d := range dims {
		if d.ID == q.DimensionID {
			return nil
		}
	}
	return evalerrors.Validation("question %s does not belong to survey %s", questionID, ev.SurveyID)
}
