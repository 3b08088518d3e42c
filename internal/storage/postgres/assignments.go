package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

const assignmentColumns = `id, evaluation_id, dimension_id, assignee_id, assigned_by, deadline,
	total_questions, answered_questions, progress, requires_review, state, review_phase,
	submitted_for_review_at, reviewed_by, reviewed_at, review_comments, notes, active,
	created_at, updated_at`

// GetAssignment retrieves an assignment by ID
func (r reader) GetAssignment(ctx context.Context, id string) (*types.Assignment, error) {
	a, err := scanAssignment(r.q.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, evalerrors.NotFound("assignment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListAssignments returns assignments matching the filter, oldest first.
func (r reader) ListAssignments(ctx context.Context, filter types.AssignmentFilter) ([]*types.Assignment, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE TRUE`
	if filter.EvaluationID != nil {
		query += ` AND evaluation_id = ` + arg(*filter.EvaluationID)
	}
	if filter.AssigneeID != nil {
		query += ` AND assignee_id = ` + arg(*filter.AssigneeID)
	}
	if filter.State != nil {
		query += ` AND state = ` + arg(string(*filter.State))
	}
	if !filter.IncludeInactive {
		query += ` AND active`
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []*types.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LockAssignment locks the parent evaluation row first, then reads the
// assignment, so every writer on one evaluation queues on the same row.
func (t *pgTx) LockAssignment(ctx context.Context, id string) (*types.Assignment, *types.Evaluation, error) {
	var evaluationID string
	err := t.tx.QueryRow(ctx, `SELECT evaluation_id FROM assignments WHERE id = $1`, id).Scan(&evaluationID)
	if isNoRows(err) {
		return nil, nil, evalerrors.NotFound("assignment", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	e, err := t.LockEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, nil, err
	}
	a, err := t.GetAssignment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return a, e, nil
}

// CreateAssignment implements storage.Tx.
func (t *pgTx) CreateAssignment(ctx context.Context, a *types.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if err := a.Validate(); err != nil {
		return evalerrors.Validation("invalid assignment: %v", err)
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, a.ID, a.EvaluationID, a.DimensionID, a.AssigneeID, a.AssignedBy, a.Deadline,
		a.TotalQuestions, a.AnsweredQuestions, a.Progress, a.RequiresReview, string(a.State),
		string(a.ReviewPhase), a.SubmittedForReviewAt, a.ReviewedBy, a.ReviewedAt, a.ReviewComments,
		a.Notes, a.Active, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return evalerrors.DimensionAlreadyAssigned(a.EvaluationID, claimKey(a), err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// UpdateAssignment writes every mutable field of an assignment.
func (t *pgTx) UpdateAssignment(ctx context.Context, a *types.Assignment) error {
	if err := a.Validate(); err != nil {
		return evalerrors.Validation("invalid assignment: %v", err)
	}
	a.UpdatedAt = time.Now()
	tag, err := t.tx.Exec(ctx, `
		UPDATE assignments
		SET assignee_id = $1, deadline = $2, total_questions = $3, answered_questions = $4,
		    progress = $5, state = $6, review_phase = $7, submitted_for_review_at = $8,
		    reviewed_by = $9, reviewed_at = $10, review_comments = $11, notes = $12, active = $13,
		    updated_at = $14
		WHERE id = $15
	`, a.AssigneeID, a.Deadline, a.TotalQuestions, a.AnsweredQuestions,
		a.Progress, string(a.State), string(a.ReviewPhase), a.SubmittedForReviewAt,
		a.ReviewedBy, a.ReviewedAt, a.ReviewComments, a.Notes, a.Active,
		a.UpdatedAt, a.ID)
	if isUniqueViolation(err) {
		return evalerrors.DimensionAlreadyAssigned(a.EvaluationID, claimKey(a), err)
	}
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return evalerrors.NotFound("assignment", a.ID)
	}
	return nil
}

// AddEvent appends an audit trail entry.
func (t *pgTx) AddEvent(ctx context.Context, event *types.AssignmentEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO assignment_events (assignment_id, evaluation_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, event.AssignmentID, event.EvaluationID, string(event.EventType), event.Actor,
		event.OldValue, event.NewValue, event.Comment, event.CreatedAt).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetAssignmentEvents returns the audit trail of an assignment, oldest first.
// A positive limit keeps only the most recent entries.
func (s *PostgresStorage) GetAssignmentEvents(ctx context.Context, assignmentID string, limit int) ([]*types.AssignmentEvent, error) {
	query := `
		SELECT id, assignment_id, evaluation_id, event_type, actor, old_value, new_value, comment, created_at
		FROM (
			SELECT * FROM assignment_events WHERE assignment_id = $1 ORDER BY id DESC`
	args := []any{assignmentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	query += `) recent ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment events: %w", err)
	}
	defer rows.Close()

	var out []*types.AssignmentEvent
	for rows.Next() {
		var e types.AssignmentEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.EvaluationID, &eventType, &e.Actor,
			&e.OldValue, &e.NewValue, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventType = types.EventType(eventType)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// claimKey names what an assignment claims, for conflict errors.
func claimKey(a *types.Assignment) string {
	if a.DimensionID == nil {
		return "survey:" + a.AssigneeID
	}
	return *a.DimensionID
}

func scanAssignment(row scanner) (*types.Assignment, error) {
	var a types.Assignment
	var state, phase string
	err := row.Scan(&a.ID, &a.EvaluationID, &a.DimensionID, &a.AssigneeID, &a.AssignedBy, &a.Deadline,
		&a.TotalQuestions, &a.AnsweredQuestions, &a.Progress, &a.RequiresReview, &state, &phase,
		&a.SubmittedForReviewAt, &a.ReviewedBy, &a.ReviewedAt, &a.ReviewComments, &a.Notes, &a.Active,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.State = types.AssignmentState(state)
	a.ReviewPhase = types.ReviewPhase(phase)
	return &a, nil
}
