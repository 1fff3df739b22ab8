package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"PortDelta/internal/domain/models"
	"PortDelta/internal/service/presenter"
	"PortDelta/internal/service/ratelimit"
	"PortDelta/internal/usecase"
	xhttp "PortDelta/pkg/http"
	xlogger "PortDelta/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Engine is the part of the valuation engine the API exposes.
type Engine interface {
	Portfolio() models.Portfolio
	ClearCache(ctx context.Context) error
}

// Rounds starts valuation rounds.
type Rounds interface {
	Trigger() bool
	RunOnce(ctx context.Context) (*models.ValuationResult, error)
}

// Latest serves the last presented round.
type Latest interface {
	Latest() *models.ValuationResult
	LastFailure() (error, time.Time)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// ValuationEchoHandler serves the valuation API.
type ValuationEchoHandler struct {
	logger    *xlogger.Logger
	engine    Engine
	rounds    Rounds
	latest    Latest
	formatter *presenter.Formatter
	limiter   *ratelimit.Limiter
	checks    map[string]HealthCheck
}

type HandlerOption func(*ValuationEchoHandler)

// WithRefreshLimiter rate limits manual refreshes per client IP.
func WithRefreshLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *ValuationEchoHandler) { h.limiter = l }
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *ValuationEchoHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func NewValuationEchoHandler(
	logger *xlogger.Logger,
	engine Engine,
	rounds Rounds,
	latest Latest,
	formatter *presenter.Formatter,
	opts ...HandlerOption,
) *ValuationEchoHandler {
	h := &ValuationEchoHandler{
		logger:    logger,
		engine:    engine,
		rounds:    rounds,
		latest:    latest,
		formatter: formatter,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ValuationEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/valuation", h.Valuation)
	g.POST("/valuation/refresh", h.Refresh)
	g.GET("/portfolio", h.Portfolio)
	g.DELETE("/cache", h.ClearCache)
	e.GET("/healthz", h.Health)
}

// ValuationResponse is the rendered last round. LastError is set when a
// later round aborted, in which case the values are stale.
type ValuationResponse struct {
	presenter.View
	Stale     bool       `json:"stale"`
	LastError string     `json:"last_error,omitempty"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
}

func (h *ValuationEchoHandler) Valuation(c echo.Context) error {
	req := &models.ValuationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, h.formatter.Code()) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("currency", "only "+h.formatter.Code()+" is supported").
			WithParam("supported", h.formatter.Code()))
	}

	r := h.latest.Latest()
	failure, failedAt := h.latest.LastFailure()
	if r == nil {
		msg := "no valuation round has completed yet"
		if failure != nil {
			msg += ": " + failure.Error()
		}
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(msg))
	}

	resp := ValuationResponse{View: presenter.Render(r, h.formatter, req.Detail)}
	if failure != nil {
		resp.Stale = true
		resp.LastError = failure.Error()
		resp.FailedAt = &failedAt
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, resp)
}

func (h *ValuationEchoHandler) Refresh(c echo.Context) error {
	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		wait := h.limiter.RetryAfter(c.RealIP())
		c.Response().Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh rate limited"))
	}

	if !req.Wait {
		queued := h.rounds.Trigger()
		return xhttp.AcceptedResponse(c, map[string]bool{"queued": queued})
	}

	r, err := h.rounds.RunOnce(c.Request().Context())
	switch {
	case errors.Is(err, usecase.ErrRoundInProgress):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	case errors.Is(err, models.ErrCalendarUnresolvable):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()).WithError(err))
	case err != nil:
		h.logger.Error("refresh round failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, ValuationResponse{View: presenter.Render(r, h.formatter, false)})
}

func (h *ValuationEchoHandler) Portfolio(c echo.Context) error {
	p := h.engine.Portfolio()
	return xhttp.ListResponse(c, p, int64(len(p)))
}

func (h *ValuationEchoHandler) ClearCache(c echo.Context) error {
	if err := h.engine.ClearCache(c.Request().Context()); err != nil {
		h.logger.Error("clear price cache", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("price cache could not be cleared").WithError(err))
	}
	h.logger.Info("price cache cleared", xlogger.String("remote", c.RealIP()))
	return xhttp.NoContentResponse(c)
}

type healthResponse struct {
	Status      string            `json:"status"`
	LastRoundAt *time.Time        `json:"last_round_at,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func (h *ValuationEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if r := h.latest.Latest(); r != nil {
		resp.LastRoundAt = &r.EvaluatedAt
	}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return xhttp.DataResponse(c, status, resp)
}
