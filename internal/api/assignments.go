package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/evalflow/evalflow/internal/types"
)

func (s *Server) setupAssignmentRoutes() {
	assignments := s.app.Group("/assignments")

	assignments.Post("/", s.createAssignment)
	assignments.Post("/bulk", s.bulkAssign)
	assignments.Get("/:id", s.getAssignment)
	assignments.Get("/:id/history", s.assignmentHistory)
	assignments.Post("/:id/answer-recount", s.recordAnswer)
	assignments.Post("/:id/review", s.reviewAssignment)
	assignments.Post("/:id/reassign", s.reassignAssignment)
	assignments.Post("/:id/submit", s.submitAssignment)
	assignments.Post("/:id/deactivate", s.deactivateAssignment)
	assignments.Get("/:id/answers", s.listAnswers)
	assignments.Put("/:id/answers/:questionId", s.editAnswer)
	assignments.Delete("/:id/answers/:questionId", s.retractAnswer)
}

func (s *Server) createAssignment(c *fiber.Ctx) error {
	var req types.CreateAssignmentRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	a, err := s.svc.Create(c.UserContext(), actor(c), req)
	if err != nil {
		return err
	}
	return created(c, a)
}

// bulkAssign answers 200 with the per-dimension report even when every item
// failed. Only request-level failures (bad body, permissions, empty survey)
// map to an error status.
func (s *Server) bulkAssign(c *fiber.Ctx) error {
	var req types.BulkAssignRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	result, err := s.svc.BulkAssign(c.UserContext(), actor(c), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":         result.Failed == 0,
		"exitosos":        result.Succeeded,
		"errores":         result.Failed,
		"errores_detalle": result.Errors,
		"asignaciones":    result.Created,
	})
}

func (s *Server) getAssignment(c *fiber.Ctx) error {
	a, err := s.svc.Assignment(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, a)
}

func (s *Server) assignmentHistory(c *fiber.Ctx) error {
	history, err := s.svc.History(c.UserContext(), actor(c), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if history == nil {
		history = []*types.AssignmentEvent{}
	}
	return ok(c, history)
}

type recountRequest struct {
	QuestionID string `json:"pregunta_id"`
}

func (s *Server) recordAnswer(c *fiber.Ctx) error {
	var req recountRequest
	if err := parseBody(c, &req, true); err != nil {
		return err
	}
	a, err := s.svc.RecordAnswer(c.UserContext(), actor(c), c.Params("id"), req.QuestionID)
	if err != nil {
		return err
	}
	return ok(c, a)
}

func (s *Server) reviewAssignment(c *fiber.Ctx) error {
	var decision types.ReviewDecision
	if err := parseBody(c, &decision, false); err != nil {
		return err
	}
	a, err := s.svc.Review(c.UserContext(), actor(c), c.Params("id"), decision)
	if err != nil {
		return err
	}
	return ok(c, a)
}

func (s *Server) reassignAssignment(c *fiber.Ctx) error {
	var req types.ReassignRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	a, err := s.svc.Reassign(c.UserContext(), actor(c), c.Params("id"), req)
	if err != nil {
		return err
	}
	return ok(c, a)
}

func (s *Server) submitAssignment(c *fiber.Ctx) error {
	a, err := s.svc.SubmitForReview(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, a)
}

type deactivateRequest struct {
	Reason string `json:"motivo"`
}

func (s *Server) deactivateAssignment(c *fiber.Ctx) error {
	var req deactivateRequest
	if err := parseBody(c, &req, true); err != nil {
		return err
	}
	a, err := s.svc.Deactivate(c.UserContext(), actor(c), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return ok(c, a)
}

func (s *Server) listAnswers(c *fiber.Ctx) error {
	answers, err := s.svc.Answers(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	if answers == nil {
		answers = []*types.Answer{}
	}
	return ok(c, answers)
}

type answerRequest struct {
	Value string `json:"valor"`
}

func (s *Server) editAnswer(c *fiber.Ctx) error {
	var req answerRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	a, err := s.svc.EditAnswer(c.UserContext(), actor(c), c.Params("id"), c.Params("questionId"), req.Value)
	if err != nil {
		return err
	}
	return ok(c, a)
}

func (s *Server) retractAnswer(c *fiber.Ctx) error {
	a, err := s.svc.RetractAnswer(c.UserContext(), actor(c), c.Params("id"), c.Params("questionId"))
	if err != nil {
		return err
	}
	return ok(c, a)
}
