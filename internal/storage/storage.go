package storage

import (
	"context"

	"github.com/evalflow/evalflow/internal/types"
)

// Reader holds the queries available both inside and outside a transaction.
type Reader interface {
	// Evaluations & Assignments
	GetEvaluation(ctx context.Context, id string) (*types.Evaluation, error)
	GetAssignment(ctx context.Context, id string) (*types.Assignment, error)
	ListAssignments(ctx context.Context, filter types.AssignmentFilter) ([]*types.Assignment, error)

	// Question/Answer counts
	GetQuestion(ctx context.Context, id string) (*types.Question, error)
	ListDimensions(ctx context.Context, surveyID string) ([]*types.Dimension, error)
	CountAnswered(ctx context.Context, assignmentID string) (int, error)
	CountQuestions(ctx context.Context, dimensionID string) (int, error)
	CountSurveyQuestions(ctx context.Context, surveyID string) (int, error)
}

// Tx is a store transaction. Every workflow transition runs inside exactly
// one Tx, together with the evaluation recompute it triggers.
type Tx interface {
	Reader

	// LockEvaluation reads the evaluation and holds it for the rest of the
	// transaction. Concurrent transactions on the same evaluation wait.
	LockEvaluation(ctx context.Context, id string) (*types.Evaluation, error)
	// LockAssignment locks the parent evaluation and then reads the assignment.
	LockAssignment(ctx context.Context, id string) (*types.Assignment, *types.Evaluation, error)
	UpdateEvaluation(ctx context.Context, e *types.Evaluation) error

	// CreateAssignment inserts a new assignment. Claim conflicts on the
	// active-assignment unique indexes return a DIMENSION_ALREADY_ASSIGNED error.
	CreateAssignment(ctx context.Context, a *types.Assignment) error
	UpdateAssignment(ctx context.Context, a *types.Assignment) error
	AddEvent(ctx context.Context, event *types.AssignmentEvent) error

	// Answers
	SaveAnswer(ctx context.Context, answer *types.Answer) error
	RetractAnswer(ctx context.Context, assignmentID, questionID string) (bool, error)
}

// Storage defines the interface for evalflow storage backends
type Storage interface {
	Reader

	// Reference data (surveys, companies, users)
	CreateSurvey(ctx context.Context, survey *types.Survey) error
	CreateDimension(ctx context.Context, dim *types.Dimension) error
	CreateQuestion(ctx context.Context, q *types.Question) error
	CreateCompany(ctx context.Context, company *types.Company) error
	CreateUser(ctx context.Context, user *types.User) error
	AddCompanyMember(ctx context.Context, companyID, userID string) error
	GetUser(ctx context.Context, id string) (*types.User, error)

	// Identity directory
	IsCompanyMember(ctx context.Context, userID, companyID string) (bool, error)
	Role(ctx context.Context, userID string) (types.Role, error)
	DisplayName(ctx context.Context, userID string) (string, error)

	// Evaluations
	CreateEvaluation(ctx context.Context, e *types.Evaluation) error
	ListEvaluations(ctx context.Context, filter types.EvaluationFilter) ([]*types.Evaluation, error)

	// Answers & history
	ListAnswers(ctx context.Context, assignmentID string) ([]*types.Answer, error)
	GetAssignmentEvents(ctx context.Context, assignmentID string, limit int) ([]*types.AssignmentEvent, error)

	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Close() error
}

