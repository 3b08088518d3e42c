package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/evalflow/evalflow/internal/types"
)

func (s *Server) setupEvaluationRoutes() {
	evaluations := s.app.Group("/evaluations")

	evaluations.Get("/:id/dimension-availability", s.dimensionAvailability)
	evaluations.Get("/:id/progress", s.evaluationProgress)
	evaluations.Get("/:id/assignments", s.evaluationAssignments)
	evaluations.Post("/:id/recompute", s.recomputeEvaluation)
	evaluations.Post("/:id/cancel", s.cancelEvaluation)
}

func (s *Server) setupUserRoutes() {
	s.app.Get("/users/:id/assignments", s.userAssignments)
}

func (s *Server) dimensionAvailability(c *fiber.Ctx) error {
	report, err := s.svc.Availability(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, report)
}

func (s *Server) evaluationProgress(c *fiber.Ctx) error {
	progress, err := s.svc.Progress(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, progress)
}

func (s *Server) evaluationAssignments(c *fiber.Ctx) error {
	list, err := s.svc.EvaluationAssignments(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, nonNil(list))
}

func (s *Server) recomputeEvaluation(c *fiber.Ctx) error {
	ev, err := s.svc.Recompute(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, ev)
}

func (s *Server) cancelEvaluation(c *fiber.Ctx) error {
	ev, err := s.svc.CancelEvaluation(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, ev)
}

func (s *Server) userAssignments(c *fiber.Ctx) error {
	list, err := s.svc.UserAssignments(c.UserContext(), actor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, nonNil(list))
}

func nonNil(list []*types.Assignment) []*types.Assignment {
	if list == nil {
		return []*types.Assignment{}
	}
	return list
}
