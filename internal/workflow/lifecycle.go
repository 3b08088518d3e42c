package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/events"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/types"
)

func validateCreate(req types.CreateAssignmentRequest) error {
	if req.EvaluationID == "" {
		return evalerrors.Validation("evaluacion_id is required")
	}
	if req.DimensionID != nil && *req.DimensionID == "" {
		return evalerrors.Validation("dimension_id cannot be empty when set")
	}
	if req.AssigneeID == "" {
		return evalerrors.Validation("usuario_id is required")
	}
	if req.Deadline.IsZero() {
		return evalerrors.Validation("fecha_limite is required")
	}
	return nil
}

// Create assigns one dimension, or the whole survey when DimensionID is nil,
// to a member of the evaluation's company.
//
// A dimension held by a rejected assignment is taken over: the rejected
// assignment is deactivated in the same transaction.
func (s *Service) Create(ctx context.Context, actor string, req types.CreateAssignmentRequest) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "Create",
		attribute.String("evaluation.id", req.EvaluationID),
		attribute.String("dimension.id", derefOr(req.DimensionID, "")),
		attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Create", err) }()

	if err := validateCreate(req); err != nil {
		return nil, err
	}
	ev, err := s.store.GetEvaluation(ctx, req.EvaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}
	if err := requireOpen(nil, ev); err != nil {
		return nil, err
	}
	now := s.now()
	if !req.Deadline.After(now) {
		return nil, evalerrors.Validation("fecha_limite %s is in the past", req.Deadline.Format("2006-01-02T15:04:05Z07:00"))
	}
	member, err := s.directory.IsCompanyMember(ctx, req.AssigneeID, ev.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return nil, evalerrors.Validation("user %s is not a member of company %s", req.AssigneeID, ev.CompanyID)
	}

	a := &types.Assignment{
		EvaluationID:   req.EvaluationID,
		DimensionID:    req.DimensionID,
		AssigneeID:     req.AssigneeID,
		AssignedBy:     actor,
		Deadline:       req.Deadline,
		RequiresReview: req.RequiresReview,
		Notes:          req.Notes,
		State:          types.StatePending,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var notes []*events.Notification
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := tx.LockEvaluation(ctx, req.EvaluationID)
		if err != nil {
			return err
		}
		if err := requireOpen(nil, ev); err != nil {
			return err
		}

		total, err := questionTotal(ctx, tx, ev, req.DimensionID)
		if err != nil {
			return err
		}
		if total == 0 {
			if a.DimensionID != nil {
				return evalerrors.Validation("dimension %s has no questions to answer", *a.DimensionID)
			}
			return evalerrors.Validation("survey %s has no questions to answer", ev.SurveyID)
		}
		a.TotalQuestions = total
		a.ApplyCounts(0)

		if err := s.releaseRejectedHolder(ctx, tx, a, actor); err != nil {
			return err
		}
		if err := tx.CreateAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(a, types.EventCreated, actor, "", string(a.State), a.Notes)); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, ev); err != nil {
			return err
		}
		notes = append(notes, events.NewAssignmentCreated(a, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notes)
	s.logger.InfoContext(ctx, "assignment created",
		"assignment_id", a.ID, "evaluation_id", a.EvaluationID,
		"dimension_id", a.DimensionKey(), "assignee", a.AssigneeID, "actor", actor)
	return a, nil
}

// questionTotal validates the dimension against the survey and returns the
// number of questions the assignment covers.
func questionTotal(ctx context.Context, counter QuestionCounter, ev *types.Evaluation, dimensionID *string) (int, error) {
	dims, err := counter.ListDimensions(ctx, ev.SurveyID)
	if err != nil {
		return 0, err
	}
	if len(dims) == 0 {
		return 0, evalerrors.Newf(evalerrors.CodeEmptySurvey, "survey %s has no dimensions", ev.SurveyID)
	}
	if dimensionID == nil {
		return counter.CountSurveyQuestions(ctx, ev.SurveyID)
	}
	for _, d := range dims {
		if d.ID == *dimensionID {
			return counter.CountQuestions(ctx, d.ID)
		}
	}
	return 0, evalerrors.Validation("dimension %s does not belong to survey %s", *dimensionID, ev.SurveyID)
}

// releaseRejectedHolder finds the active assignment holding the claim a is
// about to make. A rejected holder is deactivated; any other holder is a
// conflict.
func (s *Service) releaseRejectedHolder(ctx context.Context, tx storage.Tx, a *types.Assignment, actor string) error {
	active, err := tx.ListAssignments(ctx, types.AssignmentFilter{EvaluationID: &a.EvaluationID})
	if err != nil {
		return err
	}
	for _, holder := range active {
		if !sameClaim(holder, a) {
			continue
		}
		if holder.State != types.StateRejected {
			return evalerrors.DimensionAlreadyAssigned(a.EvaluationID, claimLabel(a), nil)
		}
		holder.Active = false
		if err := tx.UpdateAssignment(ctx, holder); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(holder, types.EventSuperseded, actor, "", "", "superseded by a new assignment")); err != nil {
			return err
		}
	}
	return nil
}

func sameClaim(holder, a *types.Assignment) bool {
	if holder.DimensionID == nil || a.DimensionID == nil {
		return holder.DimensionID == nil && a.DimensionID == nil && holder.AssigneeID == a.AssigneeID
	}
	return *holder.DimensionID == *a.DimensionID
}

func claimLabel(a *types.Assignment) string {
	if a.DimensionID == nil {
		return "survey:" + a.AssigneeID
	}
	return *a.DimensionID
}

// RecordAnswer re-reads the authoritative answered count after the
// question/answer store recorded a response, and re-derives the assignment's
// state. questionID is optional; when given it must belong to the assignment.
func (s *Service) RecordAnswer(ctx context.Context, actor, assignmentID, questionID string) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "RecordAnswer",
		attribute.String("assignment.id", assignmentID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "RecordAnswer", err) }()

	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAssigneeOrAdmin(ctx, actor, a, ev); err != nil {
		return nil, err
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
		if questionID != "" {
			if err := checkQuestion(ctx, tx, a, ev, questionID); err != nil {
				return err
			}
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
	s.logger.InfoContext(ctx, "answers recounted",
		"assignment_id", a.ID, "evaluation_id", a.EvaluationID, "actor", actor,
		"answered", a.AnsweredQuestions, "total", a.TotalQuestions, "state", a.State)
	return a, nil
}

// applyRecount re-reads the answered count of a, re-derives its state, and
// records what changed. It returns the notifications the change produced.
func (s *Service) applyRecount(ctx context.Context, tx storage.Tx, a *types.Assignment, actor string) ([]*events.Notification, error) {
	answered, err := countAnswered(ctx, tx, a)
	if err != nil {
		return nil, err
	}

	oldCount, oldPhase := a.AnsweredQuestions, a.ReviewPhase
	var prev types.AssignmentState
	if actor == a.AssigneeID {
		prev = a.ApplyCounts(answered)
	} else {
		// Only the assignee's own edit reopens rejected work.
		prev = a.RefreshCounts(answered)
	}
	if err := checkTransition(a, prev); err != nil {
		return nil, err
	}
	if oldCount == a.AnsweredQuestions && prev == a.State && oldPhase == a.ReviewPhase {
		return nil, nil
	}

	var notes []*events.Notification
	submitted := prev != a.State && a.State == types.StatePendingReview
	if submitted {
		now := s.now()
		a.SubmittedForReviewAt = &now
		notes = append(notes, events.NewAssignmentSubmittedForReview(a, actor))
	}
	if prev != a.State && a.State == types.StateCompleted {
		notes = append(notes, events.NewAssignmentCompleted(a, actor))
	}

	if err := tx.UpdateAssignment(ctx, a); err != nil {
		return nil, err
	}
	if oldCount != a.AnsweredQuestions {
		err := tx.AddEvent(ctx, s.event(a, types.EventRecounted, actor,
			strconv.Itoa(oldCount), strconv.Itoa(a.AnsweredQuestions), ""))
		if err != nil {
			return nil, err
		}
	}
	if prev != a.State {
		if err := tx.AddEvent(ctx, s.event(a, types.EventStateChanged, actor, string(prev), string(a.State), "")); err != nil {
			return nil, err
		}
	}
	if submitted {
		if err := tx.AddEvent(ctx, s.event(a, types.EventSubmitted, actor, "", "", "")); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

// checkTransition rejects a derived state the state machine does not allow.
func checkTransition(a *types.Assignment, prev types.AssignmentState) error {
	if err := prev.CheckTransition(a.State); err != nil {
		return evalerrors.InvalidState("assignment %s: %v", a.ID, err)
	}
	return nil
}

func countAnswered(ctx context.Context, counter QuestionCounter, a *types.Assignment) (int, error) {
	n, err := counter.CountAnswered(ctx, a.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count answers of %s: %w", a.ID, err)
	}
	return n, nil
}

// Review approves or rejects work that is pending review. The decision is
// validated before anything else, so a blank rejection fails with a
// validation error regardless of the assignment's state.
func (s *Service) Review(ctx context.Context, actor, assignmentID string, decision types.ReviewDecision) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "Review",
		attribute.String("assignment.id", assignmentID),
		attribute.String("action", string(decision.Action)),
		attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Review", err) }()

	if err := decision.Validate(); err != nil {
		return nil, evalerrors.Validation("%v", err)
	}
	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
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
		if a.State != types.StatePendingReview {
			return evalerrors.InvalidState("assignment %s is %s, only %s can be reviewed",
				a.ID, a.State, types.StatePendingReview)
		}

		now := s.now()
		prev := a.State
		reviewer := actor
		a.ReviewedBy = &reviewer
		a.ReviewedAt = &now
		a.ReviewComments = optional(strings.TrimSpace(decision.Comments))
		eventType := types.EventApproved
		if decision.Action == types.ActionApprove {
			a.ReviewPhase = types.PhaseApproved
		} else {
			a.ReviewPhase = types.PhaseRejected
			eventType = types.EventRejected
		}
		a.State = types.DeriveState(a.AnsweredQuestions, a.TotalQuestions, a.RequiresReview, a.ReviewPhase)
		if err := checkTransition(a, prev); err != nil {
			return err
		}

		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(a, eventType, actor, string(prev), string(a.State), decision.Comments)); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, ev); err != nil {
			return err
		}

		data := events.ReviewData{Comments: decision.Comments, ReviewedAt: now}
		var n *events.Notification
		if decision.Action == types.ActionApprove {
			n, err = events.NewAssignmentApproved(a, actor, data)
		} else {
			n, err = events.NewAssignmentRejected(a, actor, data)
		}
		if err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notes)
	s.logger.InfoContext(ctx, "assignment reviewed",
		"assignment_id", a.ID, "evaluation_id", a.EvaluationID, "actor", actor,
		"action", decision.Action, "state", a.State)
	return a, nil
}

// SubmitForReview sends reopened work back to review once every question is
// answered again.
func (s *Service) SubmitForReview(ctx context.Context, actor, assignmentID string) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "SubmitForReview",
		attribute.String("assignment.id", assignmentID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "SubmitForReview", err) }()

	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAssigneeOrAdmin(ctx, actor, a, ev); err != nil {
		return nil, err
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
		if !a.RequiresReview {
			return evalerrors.InvalidState("assignment %s does not require review", a.ID)
		}
		if a.State == types.StateRejected {
			return evalerrors.InvalidState("assignment %s is %s, edit an answer to reopen it before resubmitting",
				a.ID, a.State)
		}
		if a.State != types.StateInProgress || a.ReviewPhase != types.PhaseReopened {
			return evalerrors.InvalidState("assignment %s is %s and cannot be resubmitted", a.ID, a.State)
		}

		answered, err := countAnswered(ctx, tx, a)
		if err != nil {
			return err
		}
		if a.TotalQuestions == 0 || answered < a.TotalQuestions {
			return evalerrors.InvalidState("assignment %s has %d of %d questions answered",
				a.ID, answered, a.TotalQuestions)
		}

		now := s.now()
		prev := a.State
		a.ApplyCounts(answered)
		a.ReviewPhase = types.PhaseSubmitted
		a.State = types.DeriveState(a.AnsweredQuestions, a.TotalQuestions, a.RequiresReview, a.ReviewPhase)
		a.SubmittedForReviewAt = &now
		if err := checkTransition(a, prev); err != nil {
			return err
		}

		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(a, types.EventStateChanged, actor, string(prev), string(a.State), "")); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(a, types.EventSubmitted, actor, "", "", "")); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, ev); err != nil {
			return err
		}
		notes = append(notes, events.NewAssignmentSubmittedForReview(a, actor))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notes)
	s.logger.InfoContext(ctx, "assignment resubmitted",
		"assignment_id", a.ID, "evaluation_id", a.EvaluationID, "actor", actor)
	return a, nil
}

// Reassign moves pending or rejected work to another member of the company.
// Answers, counters and state are kept.
func (s *Service) Reassign(ctx context.Context, actor, assignmentID string, req types.ReassignRequest) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "Reassign",
		attribute.String("assignment.id", assignmentID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Reassign", err) }()

	if req.NewAssigneeID == "" {
		return nil, evalerrors.Validation("nuevo_usuario_id is required")
	}
	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}
	if req.NewDeadline != nil && !req.NewDeadline.After(s.now()) {
		return nil, evalerrors.Validation("nueva_fecha_limite is in the past")
	}
	member, err := s.directory.IsCompanyMember(ctx, req.NewAssigneeID, ev.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return nil, evalerrors.Validation("user %s is not a member of company %s", req.NewAssigneeID, ev.CompanyID)
	}

	var previous string
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
		if a.State != types.StatePending && a.State != types.StateRejected {
			return evalerrors.InvalidState("assignment %s is %s, only %s or %s can be reassigned",
				a.ID, a.State, types.StatePending, types.StateRejected)
		}
		if a.AssigneeID == req.NewAssigneeID {
			return evalerrors.Validation("assignment %s is already assigned to %s", a.ID, req.NewAssigneeID)
		}

		previous = a.AssigneeID
		a.AssigneeID = req.NewAssigneeID
		if req.NewDeadline != nil {
			a.Deadline = *req.NewDeadline
		}
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(a, types.EventReassigned, actor, previous, a.AssigneeID, req.Reason)); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, ev); err != nil {
			return err
		}
		n, err := events.NewAssignmentReassigned(a, actor, events.ReassignData{PreviousAssigneeID: previous, Reason: req.Reason})
		if err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(notes)
	s.logger.InfoContext(ctx, "assignment reassigned",
		"assignment_id", a.ID, "evaluation_id", a.EvaluationID, "actor", actor,
		"from", previous, "to", a.AssigneeID)
	return a, nil
}

// Deactivate soft-deletes an assignment, freeing its dimension.
func (s *Service) Deactivate(ctx context.Context, actor, assignmentID, reason string) (_ *types.Assignment, err error) {
	ctx, span := s.startSpan(ctx, "Deactivate",
		attribute.String("assignment.id", assignmentID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Deactivate", err) }()

	a, ev, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}

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
		a.Active = false
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if err := tx.AddEvent(ctx, s.event(a, types.EventDeactivated, actor, "", "", reason)); err != nil {
			return err
		}
		_, _, err = s.recompute(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "assignment deactivated",
		"assignment_id", a.ID, "evaluation_id", a.EvaluationID, "actor", actor)
	return a, nil
}

// CancelEvaluation deactivates an evaluation. Its state becomes cancelada and
// stays there; assignments are left as they are.
func (s *Service) CancelEvaluation(ctx context.Context, actor, evaluationID string) (_ *types.Evaluation, err error) {
	ctx, span := s.startSpan(ctx, "CancelEvaluation",
		attribute.String("evaluation.id", evaluationID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "CancelEvaluation", err) }()

	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockEvaluation(ctx, evaluationID)
		if err != nil {
			return err
		}
		if locked.State == types.EvaluationCancelled && !locked.Active {
			ev = locked
			return nil
		}
		locked.Active = false
		locked.State = types.EvaluationCancelled
		if err := tx.UpdateEvaluation(ctx, locked); err != nil {
			return err
		}
		ev, _, err = s.recompute(ctx, tx, locked)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "evaluation cancelled", "evaluation_id", ev.ID, "actor", actor)
	return ev, nil
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
