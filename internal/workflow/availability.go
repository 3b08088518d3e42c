package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/types"
)

// Availability splits the survey's dimensions into those held by an active,
// non-rejected assignment and those still free to assign.
func (s *Service) Availability(ctx context.Context, actor, evaluationID string) (_ *types.Availability, err error) {
	ctx, span := s.startSpan(ctx, "Availability",
		attribute.String("evaluation.id", evaluationID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Availability", err) }()

	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}

	dims, err := s.store.ListDimensions(ctx, ev.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dimensions: %w", err)
	}
	assignments, err := s.store.ListAssignments(ctx, types.AssignmentFilter{EvaluationID: &ev.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	holders := currentHolders(assignments)
	now := s.now()
	out := &types.Availability{
		EvaluationID: ev.ID,
		Dimensions:   make([]*types.Dimension, 0, len(dims)),
		Assigned:     []*types.DimensionHolder{},
		Available:    []*types.Dimension{},
	}
	names := map[string]string{}
	for _, dim := range dims {
		out.Dimensions = append(out.Dimensions, dim)
		holder, held := holders[dim.ID]
		if !held {
			out.Available = append(out.Available, dim)
			continue
		}
		name, ok := names[holder.AssigneeID]
		if !ok {
			name, err = s.directory.DisplayName(ctx, holder.AssigneeID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve user name: %w", err)
			}
			names[holder.AssigneeID] = name
		}
		out.Assigned = append(out.Assigned, &types.DimensionHolder{
			Dimension:    dim,
			AssignmentID: holder.ID,
			AssigneeID:   holder.AssigneeID,
			AssigneeName: name,
			State:        holder.State,
			Progress:     holder.Progress,
			Overdue:      holder.IsOverdue(now),
		})
	}
	return out, nil
}

// currentHolders maps each dimension to the most recent active assignment
// holding it. Rejected assignments do not hold their dimension.
func currentHolders(assignments []*types.Assignment) map[string]*types.Assignment {
	holders := map[string]*types.Assignment{}
	for _, a := range assignments {
		if !a.Active || a.DimensionID == nil || a.State == types.StateRejected {
			continue
		}
		if cur, ok := holders[*a.DimensionID]; ok && !a.CreatedAt.After(cur.CreatedAt) {
			continue
		}
		holders[*a.DimensionID] = a
	}
	return holders
}

// BulkAssign creates one assignment per requested dimension. Items fail
// independently; the result lists every failure with its error code, so
// Succeeded+Failed always equals len(DimensionIDs). A repeated id is
// attempted once and each repeat is reported as a validation failure.
func (s *Service) BulkAssign(ctx context.Context, actor string, req types.BulkAssignRequest) (_ *types.BulkResult, err error) {
	ctx, span := s.startSpan(ctx, "BulkAssign",
		attribute.String("evaluation.id", req.EvaluationID),
		attribute.Int("dimensions", len(req.DimensionIDs)),
		attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "BulkAssign", err) }()

	if req.EvaluationID == "" {
		return nil, evalerrors.Validation("evaluacion_id is required")
	}
	ev, err := s.store.GetEvaluation(ctx, req.EvaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}
	dims, err := s.store.ListDimensions(ctx, ev.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dimensions: %w", err)
	}
	if len(dims) == 0 {
		return nil, evalerrors.Newf(evalerrors.CodeEmptySurvey, "survey %s has no dimensions", ev.SurveyID)
	}
	if len(req.DimensionIDs) == 0 {
		return nil, evalerrors.Validation("dimension_ids must not be empty")
	}

	result := &types.BulkResult{Errors: []types.BulkError{}, Created: []*types.Assignment{}}
	seen := map[string]bool{}
	for _, dimID := range req.DimensionIDs {
		if seen[dimID] {
			result.Failed++
			result.Errors = append(result.Errors, types.BulkError{
				DimensionID: dimID,
				Code:        string(evalerrors.CodeValidation),
				Message:     fmt.Sprintf("dimension %s is listed more than once", dimID),
			})
			continue
		}
		seen[dimID] = true

		id := dimID
		a, err := s.Create(ctx, actor, types.CreateAssignmentRequest{
			EvaluationID:   req.EvaluationID,
			DimensionID:    &id,
			AssigneeID:     req.AssigneeID,
			Deadline:       req.Deadline,
			RequiresReview: req.RequiresReview,
			Notes:          req.Notes,
		})
		if err != nil {
			code := evalerrors.CodeOf(err)
			if code == evalerrors.CodeUnknown {
				code = evalerrors.CodeInternal
			}
			result.Failed++
			result.Errors = append(result.Errors, types.BulkError{
				DimensionID: dimID,
				Code:        string(code),
				Message:     err.Error(),
			})
			continue
		}
		result.Succeeded++
		result.Created = append(result.Created, a)
	}

	s.logger.InfoContext(ctx, "bulk assignment finished",
		"evaluation_id", req.EvaluationID, "actor", actor,
		"succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}
