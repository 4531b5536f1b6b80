package cmd

import (
	"log/slog"
	"net/http"

	"github.com/mikills/mintline/drop"

	"github.com/labstack/echo/v4"
)

// Dependencies wires the status routes to the running pipeline.
type Dependencies struct {
	Progress func() drop.Progress
	Logger   *slog.Logger
}

type statusResponse struct {
	Status   string        `json:"status"`
	Progress drop.Progress `json:"progress"`
}

func Register(e *echo.Echo, deps Dependencies) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})

	e.GET("/v1/status", func(c echo.Context) error {
		if deps.Progress == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "pipeline unavailable"})
		}
		p := deps.Progress()
		status := "running"
		if p.Items > 0 && p.Committed == p.Items {
			status = "complete"
		}
		return c.JSON(http.StatusOK, statusResponse{Status: status, Progress: p})
	})
}
