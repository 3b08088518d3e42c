package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

// CreateSurvey inserts a survey template. An empty ID is generated.
func (s *PostgresStorage) CreateSurvey(ctx context.Context, survey *types.Survey) error {
	if survey.ID == "" {
		survey.ID = uuid.NewString()
	}
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO surveys (id, name, description, created_at) VALUES ($1, $2, $3, $4)
	`, survey.ID, survey.Name, survey.Description, survey.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}
	return nil
}

// CreateDimension inserts a dimension into an existing survey.
func (s *PostgresStorage) CreateDimension(ctx context.Context, dim *types.Dimension) error {
	if dim.ID == "" {
		dim.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dimensions (id, survey_id, name, position) VALUES ($1, $2, $3, $4)
	`, dim.ID, dim.SurveyID, dim.Name, dim.Position)
	if err != nil {
		return fmt.Errorf("failed to insert dimension: %w", err)
	}
	return nil
}

// CreateQuestion inserts a question into an existing dimension.
func (s *PostgresStorage) CreateQuestion(ctx context.Context, q *types.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO questions (id, dimension_id, text, position) VALUES ($1, $2, $3, $4)
	`, q.ID, q.DimensionID, q.Text, q.Position)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// CreateCompany inserts a company.
func (s *PostgresStorage) CreateCompany(ctx context.Context, company *types.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO companies (id, name) VALUES ($1, $2)`, company.ID, company.Name)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// CreateUser validates and inserts a user.
func (s *PostgresStorage) CreateUser(ctx context.Context, user *types.User) error {
	if err := user.Validate(); err != nil {
		return evalerrors.Validation("invalid user: %v", err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)
	`, user.ID, user.Name, user.Email, string(user.Role))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// AddCompanyMember links a user to a company. Adding twice is a no-op.
func (s *PostgresStorage) AddCompanyMember(ctx context.Context, companyID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_members (company_id, user_id) VALUES ($1, $2)
		ON CONFLICT (company_id, user_id) DO NOTHING
	`, companyID, userID)
	if err != nil {
		return fmt.Errorf("failed to add company member: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	var user types.User
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &role)
	if isNoRows(err) {
		return nil, evalerrors.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Role = types.Role(role)
	return &user, nil
}

// IsCompanyMember reports whether the user belongs to the company.
func (s *PostgresStorage) IsCompanyMember(ctx context.Context, userID, companyID string) (bool, error) {
	var member bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM company_members WHERE company_id = $1 AND user_id = $2)
	`, companyID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check company membership: %w", err)
	}
	return member, nil
}

// Role returns the user's role.
func (s *PostgresStorage) Role(ctx context.Context, userID string) (types.Role, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// DisplayName returns the user's name, or the id for unknown users.
func (s *PostgresStorage) DisplayName(ctx context.Context, userID string) (string, error) {
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

// CreateEvaluation inserts an evaluation.
func (s *PostgresStorage) CreateEvaluation(ctx context.Context, e *types.Evaluation) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluations (`+evaluationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.SurveyID, e.CompanyID, e.OwnerID, e.Deadline, string(e.State),
		e.TotalDimensions, e.AssignedDimensions, e.CompletedDimensions, e.Progress, e.Active,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// GetEvaluation retrieves an evaluation by ID
func (r reader) GetEvaluation(ctx context.Context, id string) (*types.Evaluation, error) {
	return r.getEvaluation(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id)
}

func (r reader) getEvaluation(ctx context.Context, query, id string) (*types.Evaluation, error) {
	e, err := scanEvaluation(r.q.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, evalerrors.NotFound("evaluation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return e, nil
}

// ListEvaluations returns evaluations matching the filter, oldest first.
func (s *PostgresStorage) ListEvaluations(ctx context.Context, filter types.EvaluationFilter) ([]*types.Evaluation, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE TRUE`
	if filter.CompanyID != nil {
		query += ` AND company_id = ` + arg(*filter.CompanyID)
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

	rows, err := s.pool.Query(ctx, query, args...)
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

// LockEvaluation reads the evaluation with SELECT ... FOR UPDATE.
func (t *pgTx) LockEvaluation(ctx context.Context, id string) (*types.Evaluation, error) {
	return t.getEvaluation(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1 FOR UPDATE`, id)
}

// UpdateEvaluation writes the aggregator-owned fields of an evaluation.
func (t *pgTx) UpdateEvaluation(ctx context.Context, e *types.Evaluation) error {
	if err := e.CheckCounters(); err != nil {
		return fmt.Errorf("refusing to store evaluation %s: %w", e.ID, err)
	}
	e.UpdatedAt = time.Now()
	tag, err := t.tx.Exec(ctx, `
		UPDATE evaluations
		SET state = $1, total_dimensions = $2, assigned_dimensions = $3, completed_dimensions = $4,
		    progress = $5, active = $6, updated_at = $7
		WHERE id = $8
	`, string(e.State), e.TotalDimensions, e.AssignedDimensions, e.CompletedDimensions,
		e.Progress, e.Active, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return evalerrors.NotFound("evaluation", e.ID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row scanner) (*types.Evaluation, error) {
	var e types.Evaluation
	var state string
	err := row.Scan(&e.ID, &e.SurveyID, &e.CompanyID, &e.OwnerID, &e.Deadline, &state,
		&e.TotalDimensions, &e.AssignedDimensions, &e.CompletedDimensions, &e.Progress, &e.Active,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.State = types.EvaluationState(state)
	return &e, nil
}
