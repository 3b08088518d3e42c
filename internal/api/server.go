// Package api exposes the assignment workflow over HTTP with fiber.
//
// The calling user is identified by the X-Actor-ID header. Authentication
// happens upstream; this layer only forwards the id to the workflow service,
// which performs every role and membership check.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	evalerrors "github.com/evalflow/evalflow/internal/errors"
	"github.com/evalflow/evalflow/internal/workflow"
)

// ActorHeader carries the id of the user performing the request.
const ActorHeader = "X-Actor-ID"

// Config configures the HTTP server.
type Config struct {
	Service      *workflow.Service
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
	// AccessLog receives one line per request; nil disables access logging
	AccessLog io.Writer
	// Health reports extra fields for GET /healthz
	Health func() map[string]any
}

// Server wraps the fiber app serving the workflow API.
type Server struct {
	app    *fiber.App
	svc    *workflow.Service
	logger *slog.Logger
	health func() map[string]any
}

// New builds the fiber app and registers every route.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: workflow service is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	s := &Server{
		svc:    cfg.Service,
		logger: log,
		health: cfg.Health,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "evalflow",
		ErrorHandler:          s.errorHandler,
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	if cfg.AccessLog != nil {
		s.app.Use(logger.New(logger.Config{Output: cfg.AccessLog}))
	}

	s.app.Get("/healthz", s.healthz)
	s.setupAssignmentRoutes()
	s.setupEvaluationRoutes()
	s.setupUserRoutes()
	return s, nil
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) healthz(c *fiber.Ctx) error {
	body := fiber.Map{"success": true, "status": "ok"}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	return c.JSON(body)
}

// errorHandler renders every failed request as
// {"success": false, "error": ..., "code": ...}.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := evalerrors.CodeInternal
	message := err.Error()

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		code = fiberCode(fe.Code)
	} else if dc := evalerrors.CodeOf(err); dc != evalerrors.CodeUnknown && dc != evalerrors.CodeInternal {
		status = dc.HTTPStatus()
		code = dc
	} else {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		message = "internal server error"
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// fiberCode maps router-level failures (unknown route, oversized body) onto
// domain codes so clients see a single vocabulary.
func fiberCode(status int) evalerrors.Code {
	switch status {
	case fiber.StatusNotFound:
		return evalerrors.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity,
		fiber.StatusMethodNotAllowed:
		return evalerrors.CodeValidation
	default:
		return evalerrors.CodeInternal
	}
}

// actor returns the caller id. A missing header yields an empty actor,
// which the workflow service rejects.
func actor(c *fiber.Ctx) string {
	return c.Get(ActorHeader)
}

// parseBody decodes a JSON body. Optional bodies may be empty.
func parseBody(c *fiber.Ctx, out any, optional bool) error {
	if optional && len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return evalerrors.Validation("invalid request body: %v", err)
	}
	return nil
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}
