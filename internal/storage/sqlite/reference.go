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

// CreateSurvey inserts a survey template. An empty ID is generated.
func (s *SQLiteStorage) CreateSurvey(ctx context.Context, survey *types.Survey) error {
	if survey.ID == "" {
		survey.ID = uuid.NewString()
	}
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surveys (id, name, description, created_at) VALUES (?, ?, ?, ?)
	`, survey.ID, survey.Name, survey.Description, formatTime(survey.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}
	return nil
}

// CreateDimension inserts a dimension into an existing survey.
func (s *SQLiteStorage) CreateDimension(ctx context.Context, dim *types.Dimension) error {
	if dim.ID == "" {
		dim.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dimensions (id, survey_id, name, position) VALUES (?, ?, ?, ?)
	`, dim.ID, dim.SurveyID, dim.Name, dim.Position)
	if err != nil {
		return fmt.Errorf("failed to insert dimension: %w", err)
	}
	return nil
}

// CreateQuestion inserts a question into an existing dimension.
func (s *SQLiteStorage) CreateQuestion(ctx context.Context, q *types.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, dimension_id, text, position) VALUES (?, ?, ?, ?)
	`, q.ID, q.DimensionID, q.Text, q.Position)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// CreateCompany inserts a company.
func (s *SQLiteStorage) CreateCompany(ctx context.Context, company *types.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO companies (id, name) VALUES (?, ?)`, company.ID, company.Name)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// CreateUser validates and inserts a user.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return evalerrors.Validation("invalid user: %v", err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role) VALUES (?, ?, ?, ?)
	`, user.ID, user.Name, user.Email, string(user.Role))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AddCompanyMember links a user to a company. Adding twice is a no-op.
func (s *SQLiteStorage) AddCompanyMember(ctx context.Context, companyID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_members (company_id, user_id) VALUES (?, ?)
		ON CONFLICT (company_id, user_id) DO NOTHING
	`, companyID, userID)
	if err != nil {
		return fmt.Errorf("failed to add company member: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	var user types.User
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Name, &user.Email, &role)
	if err == sql.ErrNoRows {
		return nil, evalerrors.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Role = types.Role(role)
	return &user, nil
}

// IsCompanyMember reports whether the user belongs to the company.
func (s *SQLiteStorage) IsCompanyMember(ctx context.Context, userID, companyID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM company_members WHERE company_id = ? AND user_id = ?)
	`, companyID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check company membership: %w", err)
	}
	return member, nil
}

// Role returns the user's role.
func (s *SQLiteStorage) Role(ctx context.Context, userID string) (types.Role, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// DisplayName returns the user's name, or the id for unknown users.
func (s *SQLiteStorage) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if evalerrors.HasCode(err, evalerrors.CodeNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

const evaluationColumns = `id, survey_id, company_id, owner_id, deadline, state,
	total_dimensions, assigned_dimensions, completed_dimensions, progress, active,
	created_at, updated_at`

// CreateEvaluation inserts an evaluation. Counters start at zero apart from
// TotalDimensions, which the caller snapshots from the survey.
func (s *SQLiteStorage) CreateEvaluation(ctx context.Context, e *types.Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.State == "" {
		e.State = types.EvaluationActive
	}
	e.Active = true
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if err := e.Validate(); err != nil {
		return evalerrors.Validation("invalid evaluation: %v", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (`+evaluationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SurveyID, e.CompanyID, e.OwnerID, formatTime(e.Deadline), string(e.State),
		e.TotalDimensions, e.AssignedDimensions, e.CompletedDimensions, e.Progress, boolInt(e.Active),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// GetEvaluation retrieves an evaluation by ID
func (r reader) GetEvaluation(ctx context.Context, id string) (*types.Evaluation, error) {
	e, err := scanEvaluation(r.q.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, evalerrors.NotFound("evaluation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return e, nil
}

// ListEvaluations returns evaluations matching the filter, oldest first.
func (s *SQLiteStorage) ListEvaluations(ctx context.Context, filter types.EvaluationFilter) ([]*types.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE 1 = 1`
	var args []any
	if filter.CompanyID != nil {
		query += ` AND company_id = ?`
		args = append(args, *filter.CompanyID)
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

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*types.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LockEvaluation implements storage.Tx.
func (t *sqliteTx) LockEvaluation(ctx context.Context, id string) (*types.Evaluation, error) {
	return t.GetEvaluation(ctx, id)
}

// UpdateEvaluation writes the aggregator-owned fields of an evaluation.
func (t *sqliteTx) UpdateEvaluation(ctx context.Context, e *types.Evaluation) error {
	if err := e.CheckCounters(); err != nil {
		return fmt.Errorf("refusing to store evaluation %s: %w", e.ID, err)
	}
	e.UpdatedAt = time.Now()
	res, err := t.conn.ExecContext(ctx, `
		UPDATE evaluations
		SET state = ?, total_dimensions = ?, assigned_dimensions = ?, completed_dimensions = ?,
		    progress = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, string(e.State), e.TotalDimensions, e.AssignedDimensions, e.CompletedDimensions,
		e.Progress, boolInt(e.Active), formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evalerrors.NotFound("evaluation", e.ID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row scanner) (*types.Evaluation, error) {
	var e types.Evaluation
	var deadline, state, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.SurveyID, &e.CompanyID, &e.OwnerID, &deadline, &state,
		&e.TotalDimensions, &e.AssignedDimensions, &e.CompletedDimensions, &e.Progress, &e.Active,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.State = types.EvaluationState(state)
	if e.Deadline, err = parseTime(deadline); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
