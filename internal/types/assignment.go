package types

import (
	"fmt"
	"strings"
	"time"
)

// Assignment is a unit of work (one dimension, or a whole survey when
// DimensionID is nil) given to one user with a deadline.
type Assignment struct {
	ID                   string          `json:"id"`
	EvaluationID         string          `json:"evaluacion_id"`
	DimensionID          *string         `json:"dimension_id"`
	AssigneeID           string          `json:"usuario_id"`
	AssignedBy           string          `json:"asignado_por"`
	Deadline             time.Time       `json:"fecha_limite"`
	TotalQuestions       int             `json:"total_preguntas"`
	AnsweredQuestions    int             `json:"preguntas_respondidas"`
	Progress             float64         `json:"porcentaje_avance"`
	RequiresReview       bool            `json:"requiere_revision"`
	State                AssignmentState `json:"estado"`
	ReviewPhase          ReviewPhase     `json:"fase_revision,omitempty"`
	SubmittedForReviewAt *time.Time      `json:"fecha_envio_revision,omitempty"`
	ReviewedBy           *string         `json:"revisado_por,omitempty"`
	ReviewedAt           *time.Time      `json:"fecha_revision,omitempty"`
	ReviewComments       *string         `json:"comentarios_revision,omitempty"`
	Notes                string          `json:"observaciones,omitempty"`
	Active               bool            `json:"activo"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Validate checks if the assignment has valid field values
func (a *Assignment) Validate() error {
	if a.EvaluationID == "" {
		return fmt.Errorf("evaluacion_id is required")
	}
	if a.DimensionID != nil && *a.DimensionID == "" {
		return fmt.Errorf("dimension_id cannot be empty when set")
	}
	if a.AssigneeID == "" {
		return fmt.Errorf("usuario_id is required")
	}
	if a.AssignedBy == "" {
		return fmt.Errorf("asignado_por is required")
	}
	if a.Deadline.IsZero() {
		return fmt.Errorf("fecha_limite is required")
	}
	if a.TotalQuestions < 0 {
		return fmt.Errorf("total_preguntas cannot be negative")
	}
	if a.AnsweredQuestions < 0 || a.AnsweredQuestions > a.TotalQuestions {
		return fmt.Errorf("preguntas_respondidas must be between 0 and %d (got %d)", a.TotalQuestions, a.AnsweredQuestions)
	}
	if !a.State.IsValid() {
		return fmt.Errorf("invalid state: %s", a.State)
	}
	if !a.ReviewPhase.IsValid() {
		return fmt.Errorf("invalid review phase: %s", a.ReviewPhase)
	}
	if !a.RequiresReview && a.ReviewPhase != PhaseNone {
		return fmt.Errorf("review phase %s requires requiere_revision", a.ReviewPhase)
	}
	return nil
}

// IsSurveyWide reports whether the assignment covers the whole survey.
func (a *Assignment) IsSurveyWide() bool {
	return a.DimensionID == nil
}

// DimensionKey returns the dimension id, or "" for survey-wide assignments.
func (a *Assignment) DimensionKey() string {
	if a.DimensionID == nil {
		return ""
	}
	return *a.DimensionID
}

// IsOverdue reports the derived vencido flag: the deadline has passed while
// the work is still open.
func (a *Assignment) IsOverdue(now time.Time) bool {
	switch a.State {
	case StatePending, StateInProgress, StatePendingReview:
		return now.After(a.Deadline)
	}
	return false
}

// DisplayState returns "vencido" for overdue open work, otherwise the stored state.
func (a *Assignment) DisplayState(now time.Time) string {
	if a.IsOverdue(now) {
		return StateOverdueLabel
	}
	return string(a.State)
}

// ApplyCounts records an edit by the assignee: it sets the answered count
// (clamped to the total) and re-derives Progress, ReviewPhase and State from
// it. A rejected assignment reopens. It returns the previous state.
func (a *Assignment) ApplyCounts(answered int) AssignmentState {
	return a.applyCounts(answered, true)
}

// RefreshCounts is ApplyCounts for a recount nobody but the assignee asked
// for. It never reopens rejected work.
func (a *Assignment) RefreshCounts(answered int) AssignmentState {
	return a.applyCounts(answered, false)
}

func (a *Assignment) applyCounts(answered int, byAssignee bool) AssignmentState {
	previous := a.State
	if answered < 0 {
		answered = 0
	}
	if answered > a.TotalQuestions {
		answered = a.TotalQuestions
	}
	a.AnsweredQuestions = answered
	a.Progress = ProgressPercent(answered, a.TotalQuestions)
	if byAssignee || a.ReviewPhase != PhaseRejected {
		a.ReviewPhase = a.ReviewPhase.AfterEdit(answered, a.TotalQuestions, a.RequiresReview)
	}
	a.State = DeriveState(answered, a.TotalQuestions, a.RequiresReview, a.ReviewPhase)
	return previous
}

// ProgressPercent returns answered/total*100, or 0 when total is 0.
func ProgressPercent(answered, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(answered) / float64(total) * 100
}

// AssignmentState represents the stored state of an assignment
type AssignmentState string

const (
	StatePending       AssignmentState = "pendiente"
	StateInProgress    AssignmentState = "en_progreso"
	StateCompleted     AssignmentState = "completado"
	StatePendingReview AssignmentState = "pendiente_revision"
	StateRejected      AssignmentState = "rechazado"
)

// StateOverdueLabel is the display-only label for overdue open work. It is
// never stored.
const StateOverdueLabel = "vencido"

// IsValid checks if the assignment state value is valid
func (s AssignmentState) IsValid() bool {
	switch s {
	case StatePending, StateInProgress, StateCompleted, StatePendingReview, StateRejected:
		return true
	}
	return false
}

// ValidTransitions defines the valid state transitions for the assignment
// state machine.
//
// State Machine Diagram:
//
//	pendiente → en_progreso → completado                (no review)
//	                 ↓
//	          pendiente_revision → completado           (approved)
//	                 ↓
//	             rechazado → en_progreso                (next edit reopens)
//
// Recounts can skip en_progreso when one answer completes the work, and
// retractions on unreviewed work can move it backwards.
func (s AssignmentState) ValidTransitions() []AssignmentState {
	switch s {
	case StatePending:
		return []AssignmentState{StateInProgress, StateCompleted, StatePendingReview}
	case StateInProgress:
		return []AssignmentState{StatePending, StateCompleted, StatePendingReview}
	case StateCompleted:
		return []AssignmentState{StatePending, StateInProgress}
	case StatePendingReview:
		return []AssignmentState{StateCompleted, StateRejected}
	case StateRejected:
		return []AssignmentState{StateInProgress}
	default:
		return []AssignmentState{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s AssignmentState) CanTransitionTo(target AssignmentState) bool {
	if s == target {
		return true
	}
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// CheckTransition returns an error unless the state machine allows moving
// from s to target.
func (s AssignmentState) CheckTransition(target AssignmentState) error {
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("invalid state transition %s → %s", s, target)
	}
	return nil
}

// ReviewPhase records where an assignment that requires review stands in the
// review cycle. Together with the counts it fully determines the state.
type ReviewPhase string

const (
	PhaseNone      ReviewPhase = ""
	PhaseSubmitted ReviewPhase = "enviado"
	PhaseApproved  ReviewPhase = "aprobado"
	PhaseRejected  ReviewPhase = "rechazado"
	PhaseReopened  ReviewPhase = "reabierto"
)

// IsValid checks if the review phase value is valid
func (p ReviewPhase) IsValid() bool {
	switch p {
	case PhaseNone, PhaseSubmitted, PhaseApproved, PhaseRejected, PhaseReopened:
		return true
	}
	return false
}

// AfterEdit returns the phase that follows an answer edit by the assignee.
// A rejected assignment reopens; unsubmitted work that becomes complete is
// submitted for review. Submitted and approved phases are unaffected.
func (p ReviewPhase) AfterEdit(answered, total int, requiresReview bool) ReviewPhase {
	if !requiresReview {
		return PhaseNone
	}
	switch p {
	case PhaseRejected:
		return PhaseReopened
	case PhaseNone:
		if total > 0 && answered >= total {
			return PhaseSubmitted
		}
	}
	return p
}

// DeriveState is the pure state function of an assignment:
// state = f(answered, total, requiresReview, reviewPhase).
func DeriveState(answered, total int, requiresReview bool, phase ReviewPhase) AssignmentState {
	if requiresReview {
		switch phase {
		case PhaseApproved:
			return StateCompleted
		case PhaseRejected:
			return StateRejected
		case PhaseSubmitted:
			return StatePendingReview
		case PhaseReopened:
			// Reopened work waits for an explicit resubmission, even when
			// every answer has been retracted.
			return StateInProgress
		}
	}
	if total <= 0 || answered <= 0 {
		return StatePending
	}
	if answered < total {
		return StateInProgress
	}
	if !requiresReview {
		return StateCompleted
	}
	return StatePendingReview
}

// ReviewAction is the reviewer's decision on submitted work.
type ReviewAction string

const (
	ActionApprove ReviewAction = "aprobar"
	ActionReject  ReviewAction = "rechazar"
)

// IsValid checks if the review action value is valid
func (a ReviewAction) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}

// ReviewDecision is the input of a review.
type ReviewDecision struct {
	Action   ReviewAction `json:"accion"`
	Comments string       `json:"comentarios,omitempty"`
}

// Validate checks the decision in isolation (a rejection needs comments).
func (d ReviewDecision) Validate() error {
	if !d.Action.IsValid() {
		return fmt.Errorf("invalid accion: %q (expected %s or %s)", d.Action, ActionApprove, ActionReject)
	}
	if d.Action == ActionReject && strings.TrimSpace(d.Comments) == "" {
		return fmt.Errorf("comentarios are required to reject")
	}
	return nil
}
