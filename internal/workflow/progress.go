package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/types"
)

// Rollup derives an evaluation's counters, progress and state from its
// assignments. It is pure: the same inputs always give the same result, and
// the input evaluation is not modified. TotalDimensions is taken from ev.
//
// Only active assignments of ev count. Whole-survey assignments contribute to
// the progress average but never to the dimension counters; a completed one
// still marks the evaluation as started.
func Rollup(ev *types.Evaluation, assignments []*types.Assignment, now time.Time) *types.Evaluation {
	out := *ev

	assigned := map[string]bool{}
	completed := map[string]bool{}
	var sum float64
	var active int
	working := false
	for _, a := range assignments {
		if !a.Active || a.EvaluationID != ev.ID {
			continue
		}
		active++
		sum += a.Progress
		if a.State == types.StateInProgress || a.State == types.StatePendingReview {
			working = true
		}
		if a.DimensionID == nil {
			if a.State == types.StateCompleted {
				working = true
			}
			continue
		}
		assigned[*a.DimensionID] = true
		if a.State == types.StateCompleted {
			completed[*a.DimensionID] = true
		}
	}

	out.AssignedDimensions = min(len(assigned), out.TotalDimensions)
	out.CompletedDimensions = min(len(completed), out.AssignedDimensions)
	out.Progress = 0
	if active > 0 {
		out.Progress = sum / float64(active)
	}

	switch {
	case ev.State == types.EvaluationCancelled || !ev.Active:
		out.State = types.EvaluationCancelled
	case out.TotalDimensions > 0 && out.CompletedDimensions == out.TotalDimensions:
		out.State = types.EvaluationCompleted
	case now.After(ev.Deadline):
		out.State = types.EvaluationOverdue
	case out.CompletedDimensions > 0 || working:
		out.State = types.EvaluationInProgress
	default:
		out.State = types.EvaluationActive
	}
	return &out
}

// Stats counts active assignments per display state.
func Stats(assignments []*types.Assignment, now time.Time) *types.AssignmentStats {
	stats := &types.AssignmentStats{}
	for _, a := range assignments {
		if !a.Active {
			continue
		}
		stats.Total++
		switch a.State {
		case types.StatePending:
			stats.Pending++
		case types.StateInProgress:
			stats.InProgress++
		case types.StatePendingReview:
			stats.PendingReview++
		case types.StateCompleted:
			stats.Completed++
		case types.StateRejected:
			stats.Rejected++
		}
		if a.IsOverdue(now) {
			stats.Overdue++
		}
	}
	return stats
}

// derivedEqual reports whether two evaluations carry the same derived fields.
func derivedEqual(a, b *types.Evaluation) bool {
	return a.State == b.State &&
		a.TotalDimensions == b.TotalDimensions &&
		a.AssignedDimensions == b.AssignedDimensions &&
		a.CompletedDimensions == b.CompletedDimensions &&
		a.Progress == b.Progress &&
		a.Active == b.Active
}

// derive refreshes the dimension total from the survey and rolls up the
// evaluation's active assignments.
func derive(ctx context.Context, r storage.Reader, ev *types.Evaluation, now time.Time) (*types.Evaluation, []*types.Assignment, error) {
	dims, err := r.ListDimensions(ctx, ev.SurveyID)
	if err != nil {
		return nil, nil, err
	}
	assignments, err := r.ListAssignments(ctx, types.AssignmentFilter{EvaluationID: &ev.ID})
	if err != nil {
		return nil, nil, err
	}
	base := *ev
	base.TotalDimensions = len(dims)
	return Rollup(&base, assignments, now), assignments, nil
}

// recompute rolls up ev inside tx and stores the result when it changed.
// ev must have been read through the same transaction.
func (s *Service) recompute(ctx context.Context, tx storage.Tx, ev *types.Evaluation) (*types.Evaluation, bool, error) {
	next, _, err := derive(ctx, tx, ev, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("failed to recompute evaluation %s: %w", ev.ID, err)
	}
	if derivedEqual(ev, next) {
		return ev, false, nil
	}
	if err := tx.UpdateEvaluation(ctx, next); err != nil {
		return nil, false, fmt.Errorf("failed to recompute evaluation %s: %w", ev.ID, err)
	}
	return next, true, nil
}

// Progress returns the evaluation rollup computed on read, with per-state
// assignment counts. Nothing is written.
func (s *Service) Progress(ctx context.Context, actor, evaluationID string) (_ *types.EvaluationProgress, err error) {
	ctx, span := s.startSpan(ctx, "Progress",
		attribute.String("evaluation.id", evaluationID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Progress", err) }()

	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}

	now := s.now()
	rolled, assignments, err := derive(ctx, s.store, ev, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute progress: %w", err)
	}
	return &types.EvaluationProgress{
		Evaluation: rolled,
		Stats:      Stats(assignments, now),
		ComputedAt: now,
	}, nil
}

// Recompute replays the rollup of one evaluation and stores it.
func (s *Service) Recompute(ctx context.Context, actor, evaluationID string) (_ *types.Evaluation, err error) {
	ctx, span := s.startSpan(ctx, "Recompute",
		attribute.String("evaluation.id", evaluationID), attribute.String("actor", actor))
	defer func() { s.finish(ctx, span, "Recompute", err) }()

	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAdmin(ctx, actor, ev.CompanyID); err != nil {
		return nil, err
	}
	out, changed, err := s.recomputeOne(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "evaluation recomputed",
		"evaluation_id", evaluationID, "actor", actor, "changed", changed, "state", out.State)
	return out, nil
}

func (s *Service) recomputeOne(ctx context.Context, evaluationID string) (*types.Evaluation, bool, error) {
	unlock := s.evaluationLocks.Lock(evaluationID)
	defer unlock()

	var out *types.Evaluation
	var changed bool
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		ev, err := tx.LockEvaluation(ctx, evaluationID)
		if err != nil {
			return err
		}
		out, changed, err = s.recompute(ctx, tx, ev)
		return err
	})
	return out, changed, err
}

// ReplayReport summarizes a RecomputeAll run.
type ReplayReport struct {
	Evaluations int `json:"evaluaciones"`
	Changed     int `json:"actualizadas"`
}

// RecomputeAll replays the rollup of every evaluation, cancelled ones
// included. Evaluations run in parallel up to the configured concurrency; the
// first failure cancels the rest.
func (s *Service) RecomputeAll(ctx context.Context) (_ *ReplayReport, err error) {
	ctx, span := s.startSpan(ctx, "RecomputeAll")
	defer func() { s.finish(ctx, span, "RecomputeAll", err) }()

	evaluations, err := s.store.ListEvaluations(ctx, types.EvaluationFilter{IncludeInactive: true})
	if err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(s.replayConcurrency))
	g, gctx := errgroup.WithContext(ctx)
	var changed atomic.Int64
	for _, ev := range evaluations {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			_, didChange, err := s.recomputeOne(gctx, ev.ID)
			if err != nil {
				return err
			}
			if didChange {
				changed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &ReplayReport{Evaluations: len(evaluations), Changed: int(changed.Load())}
	s.logger.InfoContext(ctx, "replay finished", "evaluations", report.Evaluations, "changed", report.Changed)
	return report, nil
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
