package api

import (
	"context"

	"github.com/labstack/echo/v4"

	models "FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	xhttp "FinSense/pkg/http"
	xlogger "FinSense/pkg/logger"
)

type LearningService interface {
	ShouldRetrain(ctx context.Context) models.RetrainDecision
	LearningStats(ctx context.Context) models.LearningStats
}

// TaskService runs retraining in the background.
type TaskService interface {
	Submit(p models.RetrainParams) (models.Task, error)
	Get(id string) (models.Task, error)
	Cancel(id string) (models.Task, error)
	List() []models.Task
}

type ModelService interface {
	ListVersions() ([]models.ModelVersion, error)
	ActiveVersion() string
	Activate(version string) error
}

type LearningHandler struct {
	logger *xlogger.Logger
	learn  LearningService
	tasks  TaskService
	models ModelService
}

func NewLearningHandler(logger *xlogger.Logger, learn LearningService, tasks TaskService, ms ModelService) *LearningHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &LearningHandler{
		logger: logger.With(xlogger.String("category", "ml_training")),
		learn:  learn,
		tasks:  tasks,
		models: ms,
	}
}

func (h *LearningHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/learning/decision", h.Decision)
	g.POST("/learning/retrain", h.Retrain)
	g.GET("/learning/tasks", h.ListTasks)
	g.GET("/learning/tasks/:id", h.GetTask)
	g.DELETE("/learning/tasks/:id", h.CancelTask)
	g.GET("/learning/stats", h.Stats)
	g.GET("/models", h.Models)
	g.POST("/models/:version/activate", h.Activate)
}

func (h *LearningHandler) Decision(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.learn.ShouldRetrain(c.Request().Context()))
}

func (h *LearningHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.learn.LearningStats(c.Request().Context()))
}

// Retrain answers 202 with the pending task; progress is polled through
// GET /api/learning/tasks/:id.
func (h *LearningHandler) Retrain(c echo.Context) error {
	req := &models.RetrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := models.RetrainParams{
		Symbol:  req.Symbol,
		Bars:    req.Bars,
		Tuning:  req.Tuning,
		Trigger: models.TriggerManual,
	}
	if req.Timeframe != "" {
		p.Timeframe = string(domrepo.NormalizeTimeframe(req.Timeframe))
	}

	task, err := h.tasks.Submit(p)
	if err != nil {
		h.logger.Warn("retrain submit rejected", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.logger.Info("retrain task submitted",
		xlogger.String("task_id", task.ID),
		xlogger.String("symbol", p.Symbol),
	)
	return xhttp.AcceptedResponse(c, task)
}

func (h *LearningHandler) ListTasks(c echo.Context) error {
	tasks := h.tasks.List()
	return xhttp.ListResponse(c, tasks, int64(len(tasks)))
}

func (h *LearningHandler) GetTask(c echo.Context) error {
	task, err := h.tasks.Get(c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, task)
}

func (h *LearningHandler) CancelTask(c echo.Context) error {
	task, err := h.tasks.Cancel(c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.logger.Info("retrain task cancelled", xlogger.String("task_id", task.ID))
	return xhttp.SuccessResponse(c, task)
}

type modelsResponse struct {
	Active   string                `json:"active"`
	Versions []models.ModelVersion `json:"versions"`
}

func (h *LearningHandler) Models(c echo.Context) error {
	versions, err := h.models.ListVersions()
	if err != nil {
		h.logger.Error("list model versions error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if versions == nil {
		versions = []models.ModelVersion{}
	}
	return xhttp.SuccessResponse(c, modelsResponse{Active: h.models.ActiveVersion(), Versions: versions})
}

func (h *LearningHandler) Activate(c echo.Context) error {
	version := c.Param("version")
	if err := h.models.Activate(version); err != nil {
		h.logger.Error("activate model error", xlogger.String("version", version), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.logger.Info("model activated", xlogger.String("version", version))
	return xhttp.SuccessResponse(c, modelsResponse{Active: h.models.ActiveVersion()})
}
