package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

// GetQuestion retrieves a question by ID
func (r reader) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	var q types.Question
	err := r.q.QueryRowContext(ctx, `
		SELECT id, dimension_id, text, position FROM questions WHERE id = ?
	`, id).Scan(&q.ID, &q.DimensionID, &q.Text, &q.Position)
	if err == sql.ErrNoRows {
		return nil, evalerrors.NotFound("question", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &q, nil
}

// ListDimensions returns the survey's dimensions in order, each with its
// current question count.
func (r reader) ListDimensions(ctx context.Context, surveyID string) ([]*types.Dimension, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT d.id, d.survey_id, d.name, d.position,
		       (SELECT COUNT(*) FROM questions q WHERE q.dimension_id = d.id)
		FROM dimensions d
		WHERE d.survey_id = ?
		ORDER BY d.position, d.id
	`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dimensions: %w", err)
	}
	defer rows.Close()

	var dims []*types.Dimension
	for rows.Next() {
		var d types.Dimension
		if err := rows.Scan(&d.ID, &d.SurveyID, &d.Name, &d.Position, &d.TotalQuestions); err != nil {
			return nil, fmt.Errorf("failed to scan dimension: %w", err)
		}
		dims = append(dims, &d)
	}
	return dims, rows.Err()
}

// CountAnswered returns the authoritative answered count of an assignment.
func (r reader) CountAnswered(ctx context.Context, assignmentID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE assignment_id = ?`, assignmentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count answers: %w", err)
	}
	return n, nil
}

// CountQuestions returns the number of questions in a dimension.
func (r reader) CountQuestions(ctx context.Context, dimensionID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE dimension_id = ?`, dimensionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}

// CountSurveyQuestions returns the number of questions across a survey.
func (r reader) CountSurveyQuestions(ctx context.Context, surveyID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM questions q
		JOIN dimensions d ON d.id = q.dimension_id
		WHERE d.survey_id = ?
	`, surveyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count survey questions: %w", err)
	}
	return n, nil
}

// ListAnswers returns the answers recorded under an assignment.
func (s *SQLiteStorage) ListAnswers(ctx context.Context, assignmentID string) ([]*types.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.assignment_id, a.question_id, a.value, a.answered_by, a.updated_at
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.assignment_id = ?
		ORDER BY q.position, q.id
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var out []*types.Answer
	for rows.Next() {
		var a types.Answer
		var updatedAt string
		if err := rows.Scan(&a.AssignmentID, &a.QuestionID, &a.Value, &a.AnsweredBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveAnswer inserts or replaces the answer to one question.
func (t *sqliteTx) SaveAnswer(ctx context.Context, answer *types.Answer) error {
	if answer.UpdatedAt.IsZero() {
		answer.UpdatedAt = time.Now()
	}
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO answers (assignment_id, question_id, value, answered_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (assignment_id, question_id) DO UPDATE SET
			value = excluded.value,
			answered_by = excluded.answered_by,
			updated_at = excluded.updated_at
	`, answer.AssignmentID, answer.QuestionID, answer.Value, answer.AnsweredBy, formatTime(answer.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

// RetractAnswer deletes an answer and reports whether one existed.
func (t *sqliteTx) RetractAnswer(ctx context.Context, assignmentID, questionID string) (bool, error) {
	res, err := t.conn.ExecContext(ctx,
		`DELETE FROM answers WHERE assignment_id = ? AND question_id = ?`, assignmentID, questionID)
	if err != nil {
		return false, fmt.Errorf("failed to retract answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to retract answer: %w", err)
	}
	return n > 0, nil
}
