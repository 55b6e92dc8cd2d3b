package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	models "FinSense/internal/domain/models"
	"FinSense/internal/service/ratelimit"
	"FinSense/internal/usecase"
	xhttp "FinSense/pkg/http"
	xlogger "FinSense/pkg/logger"
)

// SentimentService is the analysis side of the API.
type SentimentService interface {
	Analyze(ctx context.Context, p usecase.AnalyzeParams) (*models.Verdict, error)
	AnalyzeMultiTimeframe(ctx context.Context, p usecase.MultiTimeframeParams) (*models.MultiTimeframeResult, error)
}

type BarsService interface {
	GetBars(ctx context.Context, p usecase.GetBarsParams) (*usecase.GetBarsResult, error)
}

// SentimentHandler serves verdicts and the raw bars behind them.
type SentimentHandler struct {
	logger *xlogger.Logger
	svc    SentimentService
	bars   BarsService
	rl     *ratelimit.Limiter
}

func NewSentimentHandler(logger *xlogger.Logger, svc SentimentService, bars BarsService, rl *ratelimit.Limiter) *SentimentHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SentimentHandler{logger: logger, svc: svc, bars: bars, rl: rl}
}

func (h *SentimentHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/sentiment", h.Sentiment)
	g.GET("/sentiment/mtf", h.MultiTimeframe)
	g.GET("/bars", h.Bars)
}

// allow throttles analysis per client. A nil limiter lets everything through.
func (h *SentimentHandler) allow(c echo.Context, endpoint string) bool {
	if h.rl == nil {
		return true
	}
	if h.rl.Allow(c.RealIP() + ":" + endpoint) {
		return true
	}
	h.logger.Warn("sentiment rate limited",
		xlogger.String("remote", c.RealIP()),
		xlogger.String("endpoint", endpoint),
	)
	return false
}

func (h *SentimentHandler) Sentiment(c echo.Context) error {
	req := &models.SentimentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, "sentiment") {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	start := time.Now()
	res, err := h.svc.Analyze(c.Request().Context(), usecase.AnalyzeParams{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Bars:      req.Bars,
		Track:     req.Track,
	})
	if err != nil {
		h.logger.Error("sentiment usecase error",
			xlogger.String("symbol", req.Symbol),
			xlogger.String("tf", req.Timeframe),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.logger.Debug("sentiment ok",
		xlogger.String("symbol", req.Symbol),
		xlogger.String("sentiment", string(res.Sentiment)),
		xlogger.Duration("duration_ms", time.Since(start)),
	)
	return xhttp.SuccessResponse(c, res)
}

func (h *SentimentHandler) MultiTimeframe(c echo.Context) error {
	req := &models.MultiTimeframeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, "mtf") {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	res, err := h.svc.AnalyzeMultiTimeframe(c.Request().Context(), usecase.MultiTimeframeParams{
		Symbol:     req.Symbol,
		Timeframes: req.Timeframes,
		Bars:       req.Bars,
		Track:      req.Track,
	})
	if err != nil {
		h.logger.Error("mtf usecase error",
			xlogger.String("symbol", req.Symbol),
			xlogger.String("tfs", req.Timeframes),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SentimentHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Count:     req.Count,
	})
	if err != nil {
		h.logger.Error("bars usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}
