package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"pulsebridge/internal/metrics"
)

type broadcastRequest struct {
	Messages []string `json:"messages"`
}

// handleBroadcast triggers one fanout cycle from a batch of messages. Only
// the newest message is delivered; earlier ones in the batch are superseded
// and dropped (latest-wins).
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": "invalid request body",
		})
	}

	if len(req.Messages) == 0 {
		return c.JSON(http.StatusOK, map[string]int{"delivered": 0})
	}

	if dropped := len(req.Messages) - 1; dropped > 0 {
		metrics.BroadcastMessagesDropped.Add(float64(dropped))
		slog.InfoContext(c.Request().Context(), "Superseded broadcast payloads dropped", "dropped", dropped)
	}

	result, err := s.engine.Fanout(c.Request().Context(), req.Messages[len(req.Messages)-1])
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "Fanout cycle failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "internal error",
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, result)
}
