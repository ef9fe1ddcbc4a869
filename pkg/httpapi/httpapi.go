// Package httpapi exposes the admin surface of the worker: job
// submission and inspection plus the generation pause flag.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/genx"
	"github.com/Abraxas-365/examforge/pkg/jobx"
	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// FlagStore is the slice of the filesystem the pause endpoints need.
type FlagStore interface {
	WriteFile(ctx context.Context, path string, data []byte) error
	DeleteFile(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Server wires the admin routes onto a fiber app.
type Server struct {
	store         jobx.Store
	flags         FlagStore
	pauseFlagPath string
	maxAttempts   int
}

// New creates the admin server.
func New(store jobx.Store, flags FlagStore, pauseFlagPath string, maxAttempts int) *Server {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Server{
		store:         store,
		flags:         flags,
		pauseFlagPath: pauseFlagPath,
		maxAttempts:   maxAttempts,
	}
}

// App builds the fiber application with all routes registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ExamForge Admin API",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	app.Get("/health", s.health)

	app.Post("/jobs", s.submitJob)
	app.Get("/jobs/:id", s.getJob)
	app.Get("/jobs", s.listJobs)

	app.Post("/generation/pause", s.pause)
	app.Delete("/generation/pause", s.resume)
	app.Get("/generation/pause", s.pauseStatus)

	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "service": "examforge"})
}

// submitJob validates the generation payload and enqueues it.
func (s *Server) submitJob(c *fiber.Ctx) error {
	body := c.Body()
	if _, err := genx.ParseRequest(body); err != nil {
		return err
	}

	payload := append([]byte(nil), body...)
	job, err := s.store.Enqueue(c.Context(), genx.JobType, payload, s.maxAttempts)
	if err != nil {
		return err
	}

	logx.Infof("httpapi: job %s enqueued", job.ID)
	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (s *Server) getJob(c *fiber.Ctx) error {
	job, err := s.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (s *Server) listJobs(c *fiber.Ctx) error {
	status := jobx.Status(c.Query("status"))
	limit := c.QueryInt("limit", 50)

	jobs, err := s.store.List(c.Context(), status, limit)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*jobx.Job{}
	}
	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) pause(c *fiber.Ctx) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	if err := s.flags.WriteFile(c.Context(), s.pauseFlagPath, []byte(stamp)); err != nil {
		return err
	}
	logx.Warn("httpapi: generation paused by operator")
	return c.JSON(fiber.Map{"paused": true})
}

func (s *Server) resume(c *fiber.Ctx) error {
	exists, err := s.flags.Exists(c.Context(), s.pauseFlagPath)
	if err != nil {
		return err
	}
	if exists {
		if err := s.flags.DeleteFile(c.Context(), s.pauseFlagPath); err != nil {
			return err
		}
		logx.Info("httpapi: generation resumed by operator")
	}
	return c.JSON(fiber.Map{"paused": false})
}

func (s *Server) pauseStatus(c *fiber.Ctx) error {
	exists, err := s.flags.Exists(c.Context(), s.pauseFlagPath)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"paused": exists})
}

// errorHandler renders errx errors with their registered status and
// code, everything else as a generic 500.
func errorHandler(c *fiber.Ctx, err error) error {
	var appErr *errx.Error
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    appErr.Code,
				"message": appErr.Message,
				"type":    string(appErr.Type),
				"details": appErr.Details,
			},
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiber.Map{"code": "HTTP_ERROR", "message": fiberErr.Message},
		})
	}

	logx.WithError(err).Error("httpapi: unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{"code": "INTERNAL", "message": "Internal server error"},
	})
}
