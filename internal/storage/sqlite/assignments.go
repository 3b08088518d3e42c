package sqlite

import (
	"context"
	"database/sql"
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
	a, err := scanAssignment(r.q.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, evalerrors.NotFound("assignment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListAssignments returns assignments matching the filter, oldest first.
func (r reader) ListAssignments(ctx context.Context, filter types.AssignmentFilter) ([]*types.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE 1 = 1`
	var args []any
	if filter.EvaluationID != nil {
		query += ` AND evaluation_id = ?`
		args = append(args, *filter.EvaluationID)
	}
	if filter.AssigneeID != nil {
		query += ` AND assignee_id = ?`
		args = append(args, *filter.AssigneeID)
	}
	if filter.State != nil {
		query += ` AND state = ?`
		args = append(args, string(*filter.State))
	}
	if !filter.IncludeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
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

// LockAssignment implements storage.Tx.
func (t *sqliteTx) LockAssignment(ctx context.Context, id string) (*types.Assignment, *types.Evaluation, error) {
	a, err := t.GetAssignment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	e, err := t.GetEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return nil, nil, err
	}
	return a, e, nil
}

// CreateAssignment implements storage.Tx.
func (t *sqliteTx) CreateAssignment(ctx context.Context, a *types.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if err := a.Validate(); err != nil {
		return evalerrors.Validation("invalid assignment: %v", err)
	}

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, assignmentArgs(a)...)
	if isUniqueConstraintError(err) {
		return evalerrors.DimensionAlreadyAssigned(a.EvaluationID, claimKey(a), err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// UpdateAssignment writes every mutable field of an assignment.
func (t *sqliteTx) UpdateAssignment(ctx context.Context, a *types.Assignment) error {
	if err := a.Validate(); err != nil {
		return evalerrors.Validation("invalid assignment: %v", err)
	}
	a.UpdatedAt = time.Now()
	res, err := t.conn.ExecContext(ctx, `
		UPDATE assignments
		SET assignee_id = ?, deadline = ?, total_questions = ?, answered_questions = ?,
		    progress = ?, state = ?, review_phase = ?, submitted_for_review_at = ?,
		    reviewed_by = ?, reviewed_at = ?, review_comments = ?, notes = ?, active = ?,
		    updated_at = ?
		WHERE id = ?
	`, a.AssigneeID, formatTime(a.Deadline), a.TotalQuestions, a.AnsweredQuestions,
		a.Progress, string(a.State), string(a.ReviewPhase), nullTime(a.SubmittedForReviewAt),
		nullString(a.ReviewedBy), nullTime(a.ReviewedAt), nullString(a.ReviewComments), a.Notes,
		boolInt(a.Active), formatTime(a.UpdatedAt), a.ID)
	if isUniqueConstraintError(err) {
		return evalerrors.DimensionAlreadyAssigned(a.EvaluationID, claimKey(a), err)
	}
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evalerrors.NotFound("assignment", a.ID)
	}
	return nil
}

// AddEvent appends an audit trail entry.
func (t *sqliteTx) AddEvent(ctx context.Context, event *types.AssignmentEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO assignment_events (assignment_id, evaluation_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.AssignmentID, event.EvaluationID, string(event.EventType), event.Actor,
		nullString(event.OldValue), nullString(event.NewValue), nullString(event.Comment),
		formatTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetAssignmentEvents returns the audit trail of an assignment, oldest first.
// A positive limit keeps only the most recent entries.
func (s *SQLiteStorage) GetAssignmentEvents(ctx context.Context, assignmentID string, limit int) ([]*types.AssignmentEvent, error) {
	query := `
		SELECT id, assignment_id, evaluation_id, event_type, actor, old_value, new_value, comment, created_at
		FROM (
			SELECT * FROM assignment_events WHERE assignment_id = ? ORDER BY id DESC`
	args := []any{assignmentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment events: %w", err)
	}
	defer rows.Close()

	var out []*types.AssignmentEvent
	for rows.Next() {
		var e types.AssignmentEvent
		var eventType, createdAt string
		var oldValue, newValue, comment sql.NullString
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.EvaluationID, &eventType, &e.Actor,
			&oldValue, &newValue, &comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EventType = types.EventType(eventType)
		e.OldValue = stringPtr(oldValue)
		e.NewValue = stringPtr(newValue)
		e.Comment = stringPtr(comment)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
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

func assignmentArgs(a *types.Assignment) []any {
	return []any{
		a.ID, a.EvaluationID, nullString(a.DimensionID), a.AssigneeID, a.AssignedBy, formatTime(a.Deadline),
		a.TotalQuestions, a.AnsweredQuestions, a.Progress, boolInt(a.RequiresReview), string(a.State),
		string(a.ReviewPhase), nullTime(a.SubmittedForReviewAt), nullString(a.ReviewedBy),
		nullTime(a.ReviewedAt), nullString(a.ReviewComments), a.Notes, boolInt(a.Active),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	}
}

func scanAssignment(row scanner) (*types.Assignment, error) {
	var a types.Assignment
	var dimensionID, reviewedBy, reviewComments, submittedAt, reviewedAt sql.NullString
	var deadline, state, phase, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.EvaluationID, &dimensionID, &a.AssigneeID, &a.AssignedBy, &deadline,
		&a.TotalQuestions, &a.AnsweredQuestions, &a.Progress, &a.RequiresReview, &state, &phase,
		&submittedAt, &reviewedBy, &reviewedAt, &reviewComments, &a.Notes, &a.Active,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.DimensionID = stringPtr(dimensionID)
	a.ReviewedBy = stringPtr(reviewedBy)
	a.ReviewComments = stringPtr(reviewComments)
	a.State = types.AssignmentState(state)
	a.ReviewPhase = types.ReviewPhase(phase)
	if a.Deadline, err = parseTime(deadline); err != nil {
		return nil, err
	}
	if a.SubmittedForReviewAt, err = parseNullTime(submittedAt); err != nil {
		return nil, err
	}
	if a.ReviewedAt, err = parseNullTime(reviewedAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
