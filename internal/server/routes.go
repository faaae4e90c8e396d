package server

import (
	"net/http"
	"strconv"
	"time"

	"sunfence/internal/core/domain"
	"sunfence/internal/recorder"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.GET("/runtime", s.RuntimeHandler)
	e.GET("/limiter", s.LimiterStateHandler)
	e.GET("/events", s.EventsHandler)
	e.POST("/override/force_full", s.ForceFullHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// StatusHandler returns the last decision event, the loop's full view of the
// world on its most recent tick.
func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLastDecisionRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "status: FAIL")
	}
	response, ok := res.(domain.GetLastDecisionResponse)
	if !ok || response.HasResponseError() {
		return c.String(http.StatusServiceUnavailable, "status: FAIL")
	}
	if response.Event == nil {
		return c.String(http.StatusNotFound, "status: no decision yet")
	}
	return c.JSON(http.StatusOK, response.Event)
}

// RuntimeHandler reads the decoded inverter runtime block over the control
// connection. Diagnostic only; the loop never depends on it.
func (s *Server) RuntimeHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetRuntimeRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "runtime: FAIL")
	}
	response, ok := res.(domain.GetRuntimeResponse)
	if !ok || response.HasResponseError() || response.Runtime == nil {
		return c.String(http.StatusServiceUnavailable, "runtime: FAIL")
	}
	return c.JSON(http.StatusOK, response.Runtime)
}

// LimiterStateHandler reads the limiter registers back from the device.
func (s *Server) LimiterStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLimiterStateRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "limiter: FAIL")
	}
	response, ok := res.(domain.GetLimiterStateResponse)
	if !ok || response.HasResponseError() || response.State == nil {
		return c.String(http.StatusServiceUnavailable, "limiter: FAIL")
	}
	return c.JSON(http.StatusOK, response.State)
}

func (s *Server) EventsHandler(c echo.Context) error {
	filter := recorder.EventFilter{Limit: 200}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.String(http.StatusBadRequest, "events: bad since")
		}
		filter.Since = t
	}
	if v := c.QueryParam("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.String(http.StatusBadRequest, "events: bad until")
		}
		filter.Until = t
	}
	if v := c.QueryParam("min_soc"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.String(http.StatusBadRequest, "events: bad min_soc")
		}
		filter.MinSoCPct = &f
	}
	if v := c.QueryParam("export_costs"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.String(http.StatusBadRequest, "events: bad export_costs")
		}
		filter.ExportCosts = &b
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.String(http.StatusBadRequest, "events: bad limit")
		}
		filter.Limit = n
	}

	events, err := s.store.Query(c.Request().Context(), filter)
	if err != nil {
		return c.String(http.StatusInternalServerError, "events: query failed")
	}
	return c.JSON(http.StatusOK, events)
}

// ForceFullHandler toggles the manual full-output override. ?enable=false
// returns the loop to automatic control.
func (s *Server) ForceFullHandler(c echo.Context) error {
	enable := true
	if v := c.QueryParam("enable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.String(http.StatusBadRequest, "override: bad enable")
		}
		enable = b
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetForceFullExportRequest{Enable: enable}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "override: FAIL")
	}
	response, ok := res.(domain.SetForceFullExportResponse)
	if !ok || response.HasResponseError() {
		return c.String(http.StatusServiceUnavailable, "override: FAIL")
	}
	return c.JSON(http.StatusOK, map[string]bool{"force_full": response.Enabled})
}
