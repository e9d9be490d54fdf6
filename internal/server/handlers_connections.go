package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type connectRequest struct {
	ConnectionID string `json:"connectionId"`
}

// handleConnect registers a connection opened on an external transport.
// Registration is an idempotent upsert: re-announcing a known identifier
// succeeds without side effects.
func (s *Server) handleConnect(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil || req.ConnectionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": "missing connectionId",
		})
	}

	if err := s.registry.Register(c.Request().Context(), req.ConnectionID); err != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to register connection",
			"connection_id", req.ConnectionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "internal error",
			"error":   err.Error(),
		})
	}

	slog.InfoContext(c.Request().Context(), "Connection registered", "connection_id", req.ConnectionID)
	return c.JSON(http.StatusOK, map[string]bool{"connected": true})
}
