// Package workflow implements the assignment lifecycle, dimension
// availability, evaluation progress rollup and the review gate on top of a
// transactional store.
//
// Every mutating operation runs in exactly one store transaction together
// with the evaluation recompute it triggers. Notifications are collected while
// the transaction runs and published only after it commits.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/events"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/types"
)

const tracerName = "github.com/evalflow/evalflow/internal/workflow"

// QuestionCounter reads the aggregate counts the engine derives state from.
// The engine never looks at individual answers.
type QuestionCounter interface {
	CountAnswered(ctx context.Context, assignmentID string) (int, error)
	CountQuestions(ctx context.Context, dimensionID string) (int, error)
	CountSurveyQuestions(ctx context.Context, surveyID string) (int, error)
	ListDimensions(ctx context.Context, surveyID string) ([]*types.Dimension, error)
}

// Directory answers identity questions about users.
type Directory interface {
	IsCompanyMember(ctx context.Context, userID, companyID string) (bool, error)
	Role(ctx context.Context, userID string) (types.Role, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// AnswerEditor writes individual answers. It is used by assignees and by
// reviewers in edit mode and is separate from the lifecycle transitions.
type AnswerEditor interface {
	SaveAnswer(ctx context.Context, answer *types.Answer) error
	RetractAnswer(ctx context.Context, assignmentID, questionID string) (bool, error)
}

var (
	_ QuestionCounter = (storage.Tx)(nil)
	_ AnswerEditor    = (storage.Tx)(nil)
	_ Directory       = (storage.Storage)(nil)
)

// Config holds workflow service configuration
type Config struct {
	Store storage.Storage
	// Directory defaults to Store
	Directory Directory
	// Publisher defaults to events.NopPublisher
	Publisher events.Publisher
	// Clock defaults to time.Now
	Clock  func() time.Time
	Logger *slog.Logger
	// Tracer defaults to the global OpenTelemetry provider
	Tracer trace.Tracer
	// ReplayConcurrency bounds RecomputeAll parallelism
	// Default: 4
	ReplayConcurrency int
}

// Service is the assignment and review workflow engine.
type Service struct {
	store     storage.Storage
	directory Directory
	publisher events.Publisher
	clock     func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer

	replayConcurrency int
	evaluationLocks   *keyedMutex
}

// New creates a workflow service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	s := &Service{
		store:             cfg.Store,
		directory:         cfg.Directory,
		publisher:         cfg.Publisher,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		tracer:            cfg.Tracer,
		replayConcurrency: cfg.ReplayConcurrency,
		evaluationLocks:   newKeyedMutex(),
	}
	if s.directory == nil {
		s.directory = cfg.Store
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.replayConcurrency <= 0 {
		s.replayConcurrency = 4
	}
	return s, nil
}

func (s *Service) now() time.Time {
	return s.clock()
}

// startSpan opens a workflow.<op> span.
func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(attrs...))
}

// finish ends the span and logs a failed operation. Domain rejections are
// logged at Warn, anything else at Error.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())

	code := evalerrors.CodeOf(err)
	if code == evalerrors.CodeUnknown || code == evalerrors.CodeInternal {
		s.logger.ErrorContext(ctx, "workflow operation failed", "op", op, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "workflow operation rejected", "op", op, "code", string(code), "error", err)
}

func (s *Service) publish(notes []*events.Notification) {
	for _, n := range notes {
		s.publisher.Publish(n)
	}
}

// requireActor rejects anonymous calls.
func requireActor(actor string) error {
	if actor == "" {
		return evalerrors.Validation("actor is required")
	}
	return nil
}

// authorizeAdmin allows superadmins, and administrators who belong to the
// evaluation's company.
func (s *Service) authorizeAdmin(ctx context.Context, actor, companyID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	role, err := s.directory.Role(ctx, actor)
	if evalerrors.HasCode(err, evalerrors.CodeNotFound) {
		return evalerrors.Newf(evalerrors.CodePermissionDenied, "unknown actor %s", actor)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}
	switch role {
	case types.RoleSuperAdmin:
		return nil
	case types.RoleAdmin:
		member, err := s.directory.IsCompanyMember(ctx, actor, companyID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if member {
			return nil
		}
		return evalerrors.Newf(evalerrors.CodePermissionDenied,
			"administrator %s does not belong to company %s", actor, companyID)
	}
	return evalerrors.Newf(evalerrors.CodePermissionDenied, "actor %s may not manage assignments", actor)
}

// authorizeAssigneeOrAdmin allows the assignee and anyone authorizeAdmin allows.
func (s *Service) authorizeAssigneeOrAdmin(ctx context.Context, actor string, a *types.Assignment, ev *types.Evaluation) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor == a.AssigneeID {
		return nil
	}
	return s.authorizeAdmin(ctx, actor, ev.CompanyID)
}

// loadAssignment reads an assignment and its evaluation outside a
// transaction, for authorization before any lock is taken.
func (s *Service) loadAssignment(ctx context.Context, id string) (*types.Assignment, *types.Evaluation, error) {
	if id == "" {
		return nil, nil, evalerrors.Validation("assignment id is required")
	}
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ev, err := s.store.GetEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return nil, nil, err
	}
	return a, ev, nil
}

// requireOpen rejects changes to inactive assignments and cancelled evaluations.
func requireOpen(a *types.Assignment, ev *types.Evaluation) error {
	if ev != nil && (ev.State == types.EvaluationCancelled || !ev.Active) {
		return evalerrors.InvalidState("evaluation %s is cancelled", ev.ID)
	}
	if a != nil && !a.Active {
		return evalerrors.InvalidState("assignment %s is inactive", a.ID)
	}
	return nil
}

func (s *Service) event(a *types.Assignment, eventType types.EventType, actor string, oldValue, newValue, comment string) *types.AssignmentEvent {
	return &types.AssignmentEvent{
		AssignmentID: a.ID,
		EvaluationID: a.EvaluationID,
		EventType:    eventType,
		Actor:        actor,
		OldValue:     optional(oldValue),
		NewValue:     optional(newValue),
		Comment:      optional(comment),
		CreatedAt:    s.now(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
