package postgres

import (
	"context"
	"fmt"
	"time"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

// GetQuestion retrieves a question by ID
func (r reader) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	var q types.Question
	err := r.q.QueryRow(ctx, `
		SELECT id, dimension_id, text, position FROM questions WHERE id = $1
	`, id).Scan(&q.ID, &q.DimensionID, &q.Text, &q.Position)
	if isNoRows(err) {
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
	rows, err := r.q.Query(ctx, `
		SELECT d.id, d.survey_id, d.name, d.position,
		       (SELECT COUNT(*) FROM questions q WHERE q.dimension_id = d.id)::int
		FROM dimensions d
		WHERE d.survey_id = $1
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
	return r.count(ctx, `SELECT COUNT(*) FROM answers WHERE assignment_id = $1`, assignmentID)
}

// CountQuestions returns the number of questions in a dimension.
func (r reader) CountQuestions(ctx context.Context, dimensionID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM questions WHERE dimension_id = $1`, dimensionID)
}

// CountSurveyQuestions returns the number of questions across a survey.
func (r reader) CountSurveyQuestions(ctx context.Context, surveyID string) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM questions q
		JOIN dimensions d ON d.id = q.dimension_id
		WHERE d.survey_id = $1
	`, surveyID)
}

func (r reader) count(ctx context.Context, query, id string) (int, error) {
	var n int64
	if err := r.q.QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return int(n), nil
}

// ListAnswers returns the answers recorded under an assignment.
func (s *PostgresStorage) ListAnswers(ctx context.Context, assignmentID string) ([]*types.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.assignment_id, a.question_id, a.value, a.answered_by, a.updated_at
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.assignment_id = $1
		ORDER BY q.position, q.id
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var out []*types.Answer
	for rows.Next() {
		var a types.Answer
		if err := rows.Scan(&a.AssignmentID, &a.QuestionID, &a.Value, &a.AnsweredBy, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveAnswer inserts or replaces the answer to one question.
func (t *pgTx) SaveAnswer(ctx context.Context, answer *types.Answer) error {
	if answer.UpdatedAt.IsZero() {
		answer.UpdatedAt = time.Now()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO answers (assignment_id, question_id, value, answered_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (assignment_id, question_id) DO UPDATE SET
			value = EXCLUDED.value,
			answered_by = EXCLUDED.answered_by,
			updated_at = EXCLUDED.updated_at
	`, answer.AssignmentID, answer.QuestionID, answer.Value, answer.AnsweredBy, answer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

// RetractAnswer deletes an answer and reports whether one existed.
func (t *pgTx) RetractAnswer(ctx context.Context, assignmentID, questionID string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM answers WHERE assignment_id = $1 AND question_id = $2`, assignmentID, questionID)
	if err != nil {
		return false, fmt.Errorf("failed to retract answer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
