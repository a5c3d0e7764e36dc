package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var plansTracer trace.Tracer = otel.Tracer("hubscout/internal/server")

// PlanHandler exposes planning runs, the decision log and the live
// event stream.
type PlanHandler struct {
	Service *PlannerService
}

type planRequest struct {
	SiteURL  string `json:"site_url"`
	BudgetMS int64  `json:"budget_ms,omitempty"`
}

func (h *PlanHandler) Register(g *echo.Group) {
	g.POST("/plan", h.runPlan)
	g.GET("/decisions", h.listDecisions)
	g.GET("/plan/stream", h.streamEvents)
}

func (h *PlanHandler) runPlan(c echo.Context) error {
	ctx, span := plansTracer.Start(c.Request().Context(), "PlanHandler.runPlan")
	defer span.End()

	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SiteURL) == "" {
		span.SetStatus(codes.Error, "site_url required")
		return echo.NewHTTPError(http.StatusBadRequest, "site_url required")
	}
	span.SetAttributes(attribute.String("plan.site_url", req.SiteURL))

	outcome, err := h.Service.PlanSite(ctx, req.SiteURL, req.BudgetMS)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	span.SetAttributes(
		attribute.Int("plan.seeds", outcome.Stats.TotalSeeds),
		attribute.Bool("plan.budget_exceeded", outcome.BudgetExceeded),
	)
	return c.JSON(http.StatusOK, outcome)
}

func (h *PlanHandler) listDecisions(c echo.Context) error {
	limit := 0
	if val := strings.TrimSpace(c.QueryParam("limit")); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, h.Service.Decisions().List(limit))
}

// streamEvents pushes planner telemetry over Server-Sent Events until
// the client disconnects.
func (h *PlanHandler) streamEvents(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	events, cancel := h.Service.Broker().Subscribe()
	defer cancel()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := resp.Write([]byte(": keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := resp.Write([]byte("event: " + ev.Type + "\n")); err != nil {
				return nil
			}
			if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
