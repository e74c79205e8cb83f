package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"MarketLabel/internal/domain/models"
	domrepo "MarketLabel/internal/domain/repository"
	domsvc "MarketLabel/internal/domain/service"
	"MarketLabel/internal/service/metrics"
	"MarketLabel/internal/usecase"
	xhttp "MarketLabel/pkg/http"
	xlogger "MarketLabel/pkg/logger"
)

// HealthChecker is pinged by /healthz.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CandleReader lists the stored bars behind a run.
type CandleReader interface {
	GetCandles(ctx context.Context, q models.CandlesQuery) (*usecase.GetCandlesResult, error)
}

// LabelsEchoHandler serves the labeling endpoints.
type LabelsEchoHandler struct {
	logger  xlogger.Interface
	labeler domsvc.Labeler
	candles CandleReader
	jobs    domrepo.JobQueue
	health  HealthChecker
}

// NewLabelsEchoHandler builds the handler. candles and health may be nil.
func NewLabelsEchoHandler(logger xlogger.Interface, labeler domsvc.Labeler, candles CandleReader, health HealthChecker) *LabelsEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &LabelsEchoHandler{logger: logger, labeler: labeler, candles: candles, health: health}
}

// SetJobQueue enables POST /api/labels/jobs. Call before RegisterRoutes.
func (h *LabelsEchoHandler) SetJobQueue(q domrepo.JobQueue) { h.jobs = q }

func (h *LabelsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/labels")
	g.POST("/run", h.Run)
	g.POST("/compute", h.Compute)
	g.GET("", h.List)
	if h.jobs != nil {
		g.POST("/jobs", h.Enqueue)
	}
	if h.candles != nil {
		e.GET("/api/candles", h.Candles)
	}
	e.GET("/healthz", h.Health)
}

func (h *LabelsEchoHandler) Run(c echo.Context) error {
	defer observe("run", time.Now())
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("run").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.labeler.Run(c.Request().Context(), domsvc.RunParams{
		Symbol:    req.Symbol,
		Timeframe: req.TF,
		From:      req.From,
		To:        req.To,
		Persist:   req.Persist,
	})
	if err != nil {
		return h.fail(c, "run", err)
	}
	if req.Persist {
		return xhttp.CreatedResponse(c, run)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *LabelsEchoHandler) Compute(c echo.Context) error {
	defer observe("compute", time.Now())
	req := &models.ComputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("compute").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.labeler.Compute(c.Request().Context(), req.Symbol, req.TF, req.Candles, req.Debug)
	if err != nil {
		return h.fail(c, "compute", err)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *LabelsEchoHandler) List(c echo.Context) error {
	defer observe("labels", time.Now())
	req := &models.LabelsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("labels").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	bars, err := h.labeler.Labels(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "labels", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// Enqueue accepts a persisted run for asynchronous processing.
func (h *LabelsEchoHandler) Enqueue(c echo.Context) error {
	defer observe("jobs", time.Now())
	req := &models.LabelJob{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("jobs").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.jobs.Enqueue(c.Request().Context(), *req); err != nil {
		return h.fail(c, "jobs", err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, req)
}

func (h *LabelsEchoHandler) Candles(c echo.Context) error {
	defer observe("candles", time.Now())
	req := &models.CandlesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("candles").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.candles.GetCandles(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "candles", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *LabelsEchoHandler) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health.Health(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("storage unreachable").WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *LabelsEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput), usecase.IsMalformedConfig(err):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrNoCandles):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrRunInProgress):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return xhttp.ServiceUnavailableError("request cancelled").WithError(err)
	default:
		return xhttp.InternalError("labeling failed").WithError(err)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

var _ xhttp.Handler = (*LabelsEchoHandler)(nil)
