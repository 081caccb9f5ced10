package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	models "ClientPulse/internal/domain/models"
	icache "ClientPulse/internal/service/cache"
	"ClientPulse/internal/service/metrics"
	"ClientPulse/internal/service/ratelimit"
	"ClientPulse/internal/usecase"
	xhttp "ClientPulse/pkg/http"
	xlogger "ClientPulse/pkg/logger"
	"ClientPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ClientsEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type ClientsEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.SwitchUsecase
	jobs   queue.QueueService
	cache  icache.ResponseCache
	rl     *ratelimit.Limiter
}

func NewClientsEchoHandler(logger *xlogger.Logger, uc *usecase.SwitchUsecase, jobs queue.QueueService) *ClientsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	metrics.Register()
	return &ClientsEchoHandler{logger: logger, uc: uc, jobs: jobs, rl: ratelimit.New()}
}

// SetCache injects the response micro-cache used on the read path.
func (h *ClientsEchoHandler) SetCache(c icache.ResponseCache) { h.cache = c }

func (h *ClientsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/clients/:id/switch-probability", h.SwitchProbability)
	g.POST("/switch-probability/preview", h.Preview)
	g.POST("/clients/:id/analyze", h.Analyze)
}

func (h *ClientsEchoHandler) SwitchProbability(c echo.Context) error {
	start := time.Now()
	endpoint := "switch_probability"
	defer func() { metrics.EstimatorLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SwitchProbabilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":switch", 5, 2) {
		return h.tooManyRequests(c, endpoint)
	}

	cacheKey := "switch:" + req.ClientID + ":" + strconv.Itoa(req.LookbackDays)
	if h.cache != nil && !req.Refresh {
		if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
			h.logger.Warn("clients.switch cache_get_error", xlogger.Error(err))
		} else if ok {
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	res, err := h.uc.Estimate(c.Request().Context(), usecase.EstimateParams{
		ClientID:     req.ClientID,
		LookbackDays: req.LookbackDays,
		Refresh:      req.Refresh,
	})
	if err != nil {
		metrics.EstimatorErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("switch probability usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		if b, err := json.Marshal(res); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, 15*time.Second); err != nil {
				h.logger.Warn("clients.switch cache_set_error", xlogger.Error(err))
			}
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ClientsEchoHandler) Preview(c echo.Context) error {
	start := time.Now()
	endpoint := "preview"
	defer func() { metrics.EstimatorLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.PreviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":preview", 3, 1) {
		return h.tooManyRequests(c, endpoint)
	}

	res, dropped, err := h.uc.Preview(c.Request().Context(), usecase.PreviewParams{
		ClientID:     req.ClientID,
		LookbackDays: req.LookbackDays,
		Trades:       req.Trades,
		Features:     req.Features,
	})
	if err != nil {
		metrics.EstimatorErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("preview usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, &models.PreviewResponse{Result: res, DroppedRecords: dropped})
}

func (h *ClientsEchoHandler) Analyze(c echo.Context) error {
	start := time.Now()
	endpoint := "analyze"
	defer func() { metrics.EstimatorLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError(
			"ERR_QUEUE_DISABLED", "background analysis queue is not configured", http.StatusServiceUnavailable))
	}
	if !h.rl.Allow(c.RealIP()+":analyze", 3, 1) {
		return h.tooManyRequests(c, endpoint)
	}

	jobID := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := usecase.AnalyzePayload{
		ClientID:     req.ClientID,
		LookbackDays: req.LookbackDays,
		JobID:        jobID,
	}
	if err := h.jobs.PublishMessage(c.Request().Context(), usecase.AnalyzeMessageType, payload); err != nil {
		metrics.EstimatorErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("analyze enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not queue analysis").WithError(err))
	}
	h.logger.Info("analysis queued",
		xlogger.String("client_id", req.ClientID),
		xlogger.String("job_id", jobID))
	return xhttp.DataResponse(c, http.StatusAccepted, &models.AnalyzeAccepted{JobID: jobID, ClientID: req.ClientID})
}

// tooManyRequests answers with a real 429 so load balancers and clients can
// back off. All other responses go through the standard envelope.
func (h *ClientsEchoHandler) tooManyRequests(c echo.Context, endpoint string) error {
	h.logger.Warn("rate limited",
		xlogger.String("endpoint", endpoint),
		xlogger.String("remote", c.RealIP()))
	c.Response().Header().Set("Retry-After", "1")
	return c.JSON(http.StatusTooManyRequests, xhttp.APIResponse{
		Status:  http.StatusTooManyRequests,
		Message: http.StatusText(http.StatusTooManyRequests),
	})
}
