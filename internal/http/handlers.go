package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cache"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/engine"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
)

// Service is the part of *engine.Engine the routes use.
type Service interface {
	SubmitCalculation(ctx context.Context, s engine.Submission) (string, error)
	JobStatus(ctx context.Context, id string) (domain.CalculationJob, error)
	CancelJob(ctx context.Context, id string) (domain.CalculationJob, error)
	GetResult(ctx context.Context, entityID string, kind domain.EntityKind, version string) (cache.Entry, error)
	PublishAlgorithmVersion(ctx context.Context, def algorithm.Version) (algorithm.Version, error)
	AlgorithmVersion(ref string) (algorithm.Version, error)
	AlgorithmVersions() []algorithm.Version
	Forecast(ctx context.Context, entityID string, kind domain.EntityKind, metric string, horizon int, version string) (history.Forecast, error)
	TrendChanges(ctx context.Context, entityID string, kind domain.EntityKind, metric, version string) ([]history.TrendChange, error)
	AssessmentHistory(ctx context.Context, equipmentID, version string) ([]domain.RiskAssessment, error)
	PortfolioCompliance(ctx context.Context, facilityIDs []string, version string) (domain.ComplianceReport, error)
}

var _ Service = (*engine.Engine)(nil)

// ResultView is a cache entry as returned to callers.
type ResultView struct {
	Key         string       `json:"key"`
	State       string       `json:"state"`
	StaleReason string       `json:"stale_reason,omitempty"`
	Result      cache.Result `json:"result"`
}

func Register(app *fiber.App, svc Service) {
	g := app.Group("/")

	g.Post("calculations", func(c *fiber.Ctx) error {
		var s engine.Submission
		if err := c.BodyParser(&s); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "code": "validation_error"})
		}
		id, err := svc.SubmitCalculation(c.UserContext(), s)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": id})
	})

	g.Get("jobs/:id", func(c *fiber.Ctx) error {
		job, err := svc.JobStatus(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(job)
	})
	g.Delete("jobs/:id", func(c *fiber.Ctx) error {
		job, err := svc.CancelJob(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(job)
	})

	g.Get("results/:kind/:id", func(c *fiber.Ctx) error {
		entry, err := svc.GetResult(c.UserContext(), c.Params("id"), domain.EntityKind(c.Params("kind")), c.Query("version"))
		if err != nil {
			return fail(c, err)
		}
		state, reason := entry.Describe()
		return c.JSON(ResultView{Key: entry.Key.String(), State: state, StaleReason: string(reason), Result: entry.Result})
	})

	g.Post("algorithms", func(c *fiber.Ctx) error {
		var def algorithm.Version
		if err := c.BodyParser(&def); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "code": "validation_error"})
		}
		v, err := svc.PublishAlgorithmVersion(c.UserContext(), def)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	})
	g.Get("algorithms", func(c *fiber.Ctx) error {
		return c.JSON(svc.AlgorithmVersions())
	})
	g.Get("algorithms/:version", func(c *fiber.Ctx) error {
		v, err := svc.AlgorithmVersion(c.Params("version"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(v)
	})

	g.Get("forecasts/:kind/:id/:metric", func(c *fiber.Ctx) error {
		f, err := svc.Forecast(c.UserContext(), c.Params("id"), domain.EntityKind(c.Params("kind")), c.Params("metric"), c.QueryInt("horizon", 0), c.Query("version"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(f)
	})
	g.Get("trends/:kind/:id/:metric", func(c *fiber.Ctx) error {
		changes, err := svc.TrendChanges(c.UserContext(), c.Params("id"), domain.EntityKind(c.Params("kind")), c.Params("metric"), c.Query("version"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"changes": changes})
	})
	g.Get("assessments/:id", func(c *fiber.Ctx) error {
		items, err := svc.AssessmentHistory(c.UserContext(), c.Params("id"), c.Query("version"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(items)
	})
	g.Get("compliance/portfolio", func(c *fiber.Ctx) error {
		var ids []string
		if q := c.Query("facilities"); q != "" {
			ids = strings.Split(q, ",")
		}
		report, err := svc.PortfolioCompliance(c.UserContext(), ids, c.Query("version"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(report)
	})
}

func fail(c *fiber.Ctx, err error) error {
	code := domain.ErrorCode(err)
	return c.Status(status(code)).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func status(code string) int {
	switch code {
	case "validation_error":
		return fiber.StatusBadRequest
	case "not_found", "unknown_algorithm_version":
		return fiber.StatusNotFound
	case "version_conflict":
		return fiber.StatusConflict
	case "invalid_weights", "incomplete_input":
		return fiber.StatusUnprocessableEntity
	case "queue_full":
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
