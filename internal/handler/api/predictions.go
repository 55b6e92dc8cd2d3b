package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	models "FinSense/internal/domain/models"
	xhttp "FinSense/pkg/http"
	xlogger "FinSense/pkg/logger"
)

// PredictionService is the tracker surface used over HTTP.
type PredictionService interface {
	List(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error)
	Verify(ctx context.Context, symbol string, price float64, lookback time.Duration) models.VerificationSummary
	RecentAccuracy(ctx context.Context, symbol string, days int) models.AccuracyWindow
}

type PredictionsHandler struct {
	logger *xlogger.Logger
	svc    PredictionService
}

func NewPredictionsHandler(logger *xlogger.Logger, svc PredictionService) *PredictionsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PredictionsHandler{logger: logger, svc: svc}
}

func (h *PredictionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predictions", h.List)
	g.POST("/predictions/verify", h.Verify)
	g.GET("/accuracy", h.Accuracy)
}

func (h *PredictionsHandler) List(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f := models.PredictionFilter{Symbol: req.Symbol, Limit: req.Limit}
	if req.Verified != "" {
		v := req.Verified == "true"
		f.Verified = &v
	}

	rows, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		h.logger.Error("list predictions error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PredictionsHandler) Verify(c echo.Context) error {
	req := &models.VerifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var lookback time.Duration
	if req.LookbackHours != nil {
		lookback = time.Duration(*req.LookbackHours) * time.Hour
	}

	sum := h.svc.Verify(c.Request().Context(), req.Symbol, req.Price, lookback)
	h.logger.Info("verify request done",
		xlogger.String("symbol", req.Symbol),
		xlogger.Int("verified", sum.Verified),
		xlogger.Int("failed", sum.Failed),
	)
	return xhttp.SuccessResponse(c, sum)
}

func (h *PredictionsHandler) Accuracy(c echo.Context) error {
	req := &models.AccuracyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.svc.RecentAccuracy(c.Request().Context(), req.Symbol, req.Days))
}
