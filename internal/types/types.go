package types

import (
	"fmt"
	"strings"
	"time"
)

// Evaluation is one instantiation of a survey template assigned to a company.
// Counters, Progress and State are derived by the progress aggregator and are
// never set by hand.
type Evaluation struct {
	ID                  string          `json:"id"`
	SurveyID            string          `json:"survey_id"`
	CompanyID           string          `json:"company_id"`
	OwnerID             string          `json:"owner_id"`
	Deadline            time.Time       `json:"fecha_limite"`
	State               EvaluationState `json:"estado"`
	TotalDimensions     int             `json:"total_dimensiones"`
	AssignedDimensions  int             `json:"dimensiones_asignadas"`
	CompletedDimensions int             `json:"dimensiones_completadas"`
	Progress            float64         `json:"porcentaje_avance"`
	Active              bool            `json:"activo"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Validate checks if the evaluation has valid field values
func (e *Evaluation) Validate() error {
	if e.SurveyID == "" {
		return fmt.Errorf("survey_id is required")
	}
	if e.CompanyID == "" {
		return fmt.Errorf("company_id is required")
	}
	if e.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if e.Deadline.IsZero() {
		return fmt.Errorf("fecha_limite is required")
	}
	if !e.State.IsValid() {
		return fmt.Errorf("invalid state: %s", e.State)
	}
	return e.CheckCounters()
}

// CheckCounters verifies completed <= assigned <= total.
func (e *Evaluation) CheckCounters() error {
	if e.CompletedDimensions < 0 || e.AssignedDimensions < 0 || e.TotalDimensions < 0 {
		return fmt.Errorf("dimension counters cannot be negative")
	}
	if e.CompletedDimensions > e.AssignedDimensions {
		return fmt.Errorf("dimensiones_completadas (%d) exceeds dimensiones_asignadas (%d)",
			e.CompletedDimensions, e.AssignedDimensions)
	}
	if e.AssignedDimensions > e.TotalDimensions {
		return fmt.Errorf("dimensiones_asignadas (%d) exceeds total_dimensiones (%d)",
			e.AssignedDimensions, e.TotalDimensions)
	}
	return nil
}

// IsOverdue reports whether the deadline has passed without completion.
func (e *Evaluation) IsOverdue(now time.Time) bool {
	return e.State != EvaluationCompleted && e.State != EvaluationCancelled && now.After(e.Deadline)
}

// EvaluationState represents the rolled-up state of an evaluation
type EvaluationState string

const (
	EvaluationActive     EvaluationState = "activa"
	EvaluationInProgress EvaluationState = "en_progreso"
	EvaluationCompleted  EvaluationState = "completada"
	EvaluationOverdue    EvaluationState = "vencida"
	EvaluationCancelled  EvaluationState = "cancelada"
)

// IsValid checks if the evaluation state value is valid
func (s EvaluationState) IsValid() bool {
	switch s {
	case EvaluationActive, EvaluationInProgress, EvaluationCompleted, EvaluationOverdue, EvaluationCancelled:
		return true
	}
	return false
}

// Role is the privilege level of a user as reported by the identity directory.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "administrador"
	RoleUser       Role = "usuario"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// CanManageAssignments reports whether the role may create, review and
// reassign work.
func (r Role) CanManageAssignments() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// Survey is the template an evaluation instantiates.
type Survey struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dimension is a named group of questions within a survey. TotalQuestions is
// the snapshot read from the question store.
type Dimension struct {
	ID             string `json:"id"`
	SurveyID       string `json:"survey_id"`
	Name           string `json:"name"`
	Position       int    `json:"position"`
	TotalQuestions int    `json:"total_preguntas"`
}

// Question belongs to exactly one dimension.
type Question struct {
	ID          string `json:"id"`
	DimensionID string `json:"dimension_id"`
	Text        string `json:"text"`
	Position    int    `json:"position"`
}

// Company groups users; an evaluation targets one company.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a member of zero or more companies.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Validate checks if the user has valid field values
func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !u.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	return nil
}

// Answer is a response to one question recorded under one assignment.
type Answer struct {
	AssignmentID string    `json:"assignment_id"`
	QuestionID   string    `json:"question_id"`
	Value        string    `json:"value"`
	AnsweredBy   string    `json:"answered_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EvaluationFilter is used to filter evaluation queries
type EvaluationFilter struct {
	CompanyID       *string
	State           *EvaluationState
	IncludeInactive bool
	Limit           int
}

// AssignmentFilter is used to filter assignment queries
type AssignmentFilter struct {
	EvaluationID    *string
	AssigneeID      *string
	State           *AssignmentState
	IncludeInactive bool
	Limit           int
}
