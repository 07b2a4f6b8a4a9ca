package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	servicemetrics "OptSignal/internal/service/metrics"
	"OptSignal/internal/services/signals"
	"OptSignal/internal/usecase"
	xhttp "OptSignal/pkg/http"
	xlogger "OptSignal/pkg/logger"
	"OptSignal/pkg/util"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// StrategyEchoHandler serves the strategy API.
type StrategyEchoHandler struct {
	logger   *xlogger.Logger
	strategy *usecase.StrategyUseCase
	report   *usecase.ReportUseCase
	bars     *usecase.BarsUseCase
	jobs     *usecase.BacktestJobs
	checks   map[string]HealthCheck
}

// HandlerOption configures StrategyEchoHandler.
type HandlerOption func(*StrategyEchoHandler)

func WithBars(uc *usecase.BarsUseCase) HandlerOption {
	return func(h *StrategyEchoHandler) { h.bars = uc }
}

func WithReport(uc *usecase.ReportUseCase) HandlerOption {
	return func(h *StrategyEchoHandler) { h.report = uc }
}

func WithJobs(j *usecase.BacktestJobs) HandlerOption {
	return func(h *StrategyEchoHandler) { h.jobs = j }
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *StrategyEchoHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func NewStrategyEchoHandler(logger *xlogger.Logger, strategy *usecase.StrategyUseCase, opts ...HandlerOption) *StrategyEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &StrategyEchoHandler{logger: logger, strategy: strategy, checks: map[string]HealthCheck{}}
	for _, opt := range opts {
		opt(h)
	}
	if h.report == nil {
		h.report = usecase.NewReportUseCase(strategy, 0)
	}
	return h
}

func (h *StrategyEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/greeks", h.Greeks)
	g.GET("/bars", h.Bars)
	g.POST("/bars/backfill", h.Backfill)
	g.GET("/signals", h.Signals)
	g.GET("/features", h.Features)
	g.GET("/backtest", h.Backtest)
	g.GET("/predict", h.Predict)
	g.GET("/report", h.Report)
	g.POST("/backtest/jobs", h.SubmitBacktest)
	g.GET("/backtest/jobs/stats", h.BacktestQueueStats)
	g.GET("/backtest/jobs/:id", h.GetBacktestJob)
}

// fail maps a use case error to its response and records it.
func (h *StrategyEchoHandler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	appErr := toAppError(err)
	servicemetrics.Observe(endpoint, start, appErr.Code)
	if xhttp.IsServerError(appErr) {
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *StrategyEchoHandler) ok(c echo.Context, endpoint string, start time.Time, data interface{}) error {
	servicemetrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, data)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, usecase.ErrPredictorDisabled), errors.Is(err, usecase.ErrQueueDisabled):
		return xhttp.ServiceUnavailableError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrJobNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError("request timed out").WithError(err)
	}

	code := models.ErrorCode(err)
	if code == models.CodeInternal {
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
	field := ""
	var ie *models.InvalidInputError
	if errors.As(err, &ie) {
		field = ie.Field
	}
	return xhttp.UnprocessableError(code, field, err.Error()).WithError(err)
}

func (h *StrategyEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	return xhttp.DataResponse(c, status, checks)
}

func (h *StrategyEchoHandler) Greeks(c echo.Context) error {
	start := time.Now()
	req := &models.GreeksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	g, err := h.strategy.Greeks(req.Spot, req.Strike, req.Expiry, req.Rate, req.Volatility)
	if err != nil {
		return h.fail(c, "greeks", start, err)
	}
	return h.ok(c, "greeks", start, g)
}

func (h *StrategyEchoHandler) Bars(c echo.Context) error {
	start := time.Now()
	if h.bars == nil {
		return h.fail(c, "bars", start, xhttp.ServiceUnavailableError("bar store not configured"))
	}
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.GetBarsParams{
		Symbol:    req.Symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	}
	if req.From != "" {
		from, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, timeError("from"))
		}
		p.From = from
		p.To = util.ParseTimeDefault(req.To, time.Now())
	}
	res, err := h.bars.GetBars(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "bars", start, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return h.ok(c, "bars", start, res)
}

func (h *StrategyEchoHandler) Backfill(c echo.Context) error {
	start := time.Now()
	if h.bars == nil {
		return h.fail(c, "backfill", start, xhttp.ServiceUnavailableError("backfill not configured"))
	}
	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := util.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, timeError("from"))
	}
	res, err := h.bars.Backfill(c.Request().Context(), usecase.BackfillParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        util.ParseTimeDefault(req.To, time.Now()),
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		return h.fail(c, "backfill", start, err)
	}
	servicemetrics.Observe("backfill", start, "")
	return xhttp.CreatedResponse(c, res)
}

func (h *StrategyEchoHandler) Signals(c echo.Context) error {
	start := time.Now()
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, err := h.strategy.Signals(c.Request().Context(), usecase.SeriesParams{
		Symbol:    req.Symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		return h.fail(c, "signals", start, err)
	}
	return h.ok(c, "signals", start, map[string]interface{}{
		"symbol":  series.Symbol,
		"tf":      req.TF,
		"summary": signals.Summarize(series),
		"rows":    models.SignalRows(series),
	})
}

func (h *StrategyEchoHandler) featuresParams(c echo.Context) (usecase.FeaturesParams, []xhttp.ValidationError) {
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return usecase.FeaturesParams{}, verr
	}
	ref := time.Now().UTC()
	if req.RefTime != "" {
		t, ok := util.ParseTime(req.RefTime)
		if !ok {
			return usecase.FeaturesParams{}, timeError("ref_time")
		}
		ref = t.UTC()
	}
	return usecase.FeaturesParams{
		SeriesParams: usecase.SeriesParams{
			Symbol:    req.Symbol,
			N:         req.N,
			Timeframe: domrepo.NormalizeTimeframe(req.TF),
		},
		RefTime: ref,
	}, nil
}

func (h *StrategyEchoHandler) Features(c echo.Context) error {
	start := time.Now()
	p, verr := h.featuresParams(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	set, err := h.strategy.Features(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "features", start, err)
	}
	return h.ok(c, "features", start, set)
}

func (h *StrategyEchoHandler) Predict(c echo.Context) error {
	start := time.Now()
	p, verr := h.featuresParams(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pred, err := h.strategy.Predict(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "predict", start, err)
	}
	return h.ok(c, "predict", start, pred)
}

func (h *StrategyEchoHandler) Backtest(c echo.Context) error {
	start := time.Now()
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.strategy.Backtest(c.Request().Context(), usecase.BacktestParams{
		SeriesParams: usecase.SeriesParams{
			Symbol:    req.Symbol,
			N:         req.N,
			Timeframe: domrepo.NormalizeTimeframe(req.TF),
		},
		Trades: req.Trades,
	})
	if err != nil {
		return h.fail(c, "backtest", start, err)
	}
	return h.ok(c, "backtest", start, res)
}

type reportResponse struct {
	Symbol     string                 `json:"symbol"`
	Timestamp  time.Time              `json:"timestamp"`
	Signals    *models.SignalSummary  `json:"signals,omitempty"`
	Backtest   *models.BacktestResult `json:"backtest,omitempty"`
	Features   *models.FeatureSet     `json:"features,omitempty"`
	Prediction *models.Prediction     `json:"prediction,omitempty"`
	Errors     map[string]string      `json:"errors,omitempty"`
}

func (h *StrategyEchoHandler) Report(c echo.Context) error {
	start := time.Now()
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rep, err := h.report.Report(c.Request().Context(), usecase.ReportParams{
		SeriesParams: usecase.SeriesParams{
			Symbol:    req.Symbol,
			N:         req.N,
			Timeframe: domrepo.NormalizeTimeframe(req.TF),
		},
	})
	if err != nil {
		return h.fail(c, "report", start, err)
	}
	return h.ok(c, "report", start, reportResponse{
		Symbol:     rep.Symbol,
		Timestamp:  rep.Timestamp,
		Signals:    rep.Signals,
		Backtest:   rep.Backtest,
		Features:   rep.Features,
		Prediction: rep.Prediction,
		Errors:     rep.Errors,
	})
}

func (h *StrategyEchoHandler) SubmitBacktest(c echo.Context) error {
	start := time.Now()
	if h.jobs == nil {
		return h.fail(c, "backtest_jobs", start, usecase.ErrQueueDisabled)
	}
	req := &models.BacktestJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.Submit(c.Request().Context(), usecase.BacktestJobPayload{
		Symbol: req.Symbol,
		N:      req.N,
		TF:     req.TF,
	})
	if err != nil {
		return h.fail(c, "backtest_jobs", start, err)
	}
	servicemetrics.Observe("backtest_jobs", start, "")
	c.Response().Header().Set(echo.HeaderLocation, "/api/backtest/jobs/"+job.ID)
	return xhttp.AcceptedResponse(c, job)
}

func (h *StrategyEchoHandler) GetBacktestJob(c echo.Context) error {
	start := time.Now()
	if h.jobs == nil {
		return h.fail(c, "backtest_job", start, usecase.ErrQueueDisabled)
	}
	req := &models.JobIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "backtest_job", start, err)
	}
	return h.ok(c, "backtest_job", start, job)
}

func (h *StrategyEchoHandler) BacktestQueueStats(c echo.Context) error {
	start := time.Now()
	if h.jobs == nil {
		return h.fail(c, "backtest_queue", start, usecase.ErrQueueDisabled)
	}
	stats, err := h.jobs.QueueStats(c.Request().Context())
	if err != nil {
		return h.fail(c, "backtest_queue", start, err)
	}
	return h.ok(c, "backtest_queue", start, stats)
}
