package types

import "time"

// AssignmentEvent is an audit trail entry for an assignment, written in the
// same transaction as the change it records.
type AssignmentEvent struct {
	ID           int64     `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	EvaluationID string    `json:"evaluation_id"`
	EventType    EventType `json:"event_type"`
	Actor        string    `json:"actor"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	Comment      *string   `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

const (
	EventCreated       EventType = "created"
	EventStateChanged  EventType = "state_changed"
	EventRecounted     EventType = "recounted"
	EventSubmitted     EventType = "submitted_for_review"
	EventApproved      EventType = "approved"
	EventRejected      EventType = "rejected"
	EventReassigned    EventType = "reassigned"
	EventDeactivated   EventType = "deactivated"
	EventSuperseded    EventType = "superseded"
	EventAnswerEdited  EventType = "answer_edited"
	EventAnswerRemoved EventType = "answer_removed"
)

// DimensionHolder describes who currently holds an assigned dimension.
type DimensionHolder struct {
	Dimension    *Dimension      `json:"dimension"`
	AssignmentID string          `json:"assignment_id"`
	AssigneeID   string          `json:"usuario_id"`
	AssigneeName string          `json:"usuario_nombre"`
	State        AssignmentState `json:"estado"`
	Progress     float64         `json:"porcentaje_avance"`
	Overdue      bool            `json:"vencido"`
}

// Availability is the dimension-availability report for an evaluation.
type Availability struct {
	EvaluationID string             `json:"evaluacion_id"`
	Dimensions   []*Dimension       `json:"dimensiones"`
	Assigned     []*DimensionHolder `json:"asignadas"`
	Available    []*Dimension       `json:"disponibles"`
}

// BulkAssignRequest is the input of a multi-dimension assignment.
type BulkAssignRequest struct {
	EvaluationID   string    `json:"evaluacion_id"`
	DimensionIDs   []string  `json:"dimension_ids"`
	AssigneeID     string    `json:"usuario_id"`
	Deadline       time.Time `json:"fecha_limite"`
	RequiresReview bool      `json:"requiere_revision"`
	Notes          string    `json:"observaciones,omitempty"`
}

// BulkError describes one failed item of a bulk assignment.
type BulkError struct {
	DimensionID string `json:"dimension_id"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// BulkResult is the partial-success report of a bulk assignment.
type BulkResult struct {
	Succeeded int           `json:"exitosos"`
	Failed    int           `json:"errores"`
	Errors    []BulkError   `json:"errores_detalle"`
	Created   []*Assignment `json:"asignaciones"`
}

// CreateAssignmentRequest is the input of a single assignment creation.
type CreateAssignmentRequest struct {
	EvaluationID   string    `json:"evaluacion_id"`
	DimensionID    *string   `json:"dimension_id"`
	AssigneeID     string    `json:"usuario_id"`
	Deadline       time.Time `json:"fecha_limite"`
	RequiresReview bool      `json:"requiere_revision"`
	Notes          string    `json:"observaciones,omitempty"`
}

// ReassignRequest is the input of a reassignment.
type ReassignRequest struct {
	NewAssigneeID string     `json:"nuevo_usuario_id"`
	NewDeadline   *time.Time `json:"nueva_fecha_limite,omitempty"`
	Reason        string     `json:"motivo,omitempty"`
}

// EvaluationProgress is the rollup view returned by the progress endpoint.
type EvaluationProgress struct {
	Evaluation *Evaluation      `json:"evaluacion"`
	Stats      *AssignmentStats `json:"estadisticas"`
	ComputedAt time.Time        `json:"calculado_en"`
}

// AssignmentStats counts the active assignments of an evaluation per
// display state.
type AssignmentStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pendiente"`
	InProgress    int `json:"en_progreso"`
	PendingReview int `json:"pendiente_revision"`
	Completed     int `json:"completado"`
	Rejected      int `json:"rechazado"`
	Overdue       int `json:"vencido"`
}
