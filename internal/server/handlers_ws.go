package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"pulsebridge/internal/metrics"
)

// handleWebSocket is the in-process push transport: admit, upgrade, assign an
// identifier, register, attach to the hub, then block on the read pump until
// the client goes away.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.WarnContext(c.Request().Context(), "Connection rejected", "reason", reason, "ip", ip)
		if reason == LimitReasonRate {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"message": "connection rate exceeded",
			})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"message": "connection capacity reached",
		})
	}

	connectionID := uuid.NewString()

	if err := s.registry.Register(c.Request().Context(), connectionID); err != nil {
		s.limits.Release()
		slog.ErrorContext(c.Request().Context(), "Failed to register connection",
			"connection_id", connectionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "internal error",
			"error":   err.Error(),
		})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.limits.Release()
		s.removeRegistration(connectionID)
		slog.WarnContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		// Upgrade already wrote the handshake error response.
		return nil
	}

	// Tell the client its identifier before broadcasts start arriving.
	if err := conn.WriteJSON(map[string]string{"connectionId": connectionID}); err != nil {
		conn.Close()
		s.limits.Release()
		s.removeRegistration(connectionID)
		return nil
	}

	if err := s.hub.Attach(connectionID, conn); err != nil {
		conn.Close()
		s.limits.Release()
		s.removeRegistration(connectionID)
		return nil
	}

	slog.InfoContext(c.Request().Context(), "WebSocket connected", "connection_id", connectionID, "ip", ip)

	// Read pump: client payloads are ignored, reads only detect closure.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Detach(connectionID)
	s.removeRegistration(connectionID)
	s.limits.Release()

	return nil
}

// removeRegistration is best-effort: a failed delete leaves a stale entry
// that the next fanout cycle evicts.
func (s *Server) removeRegistration(connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.registry.Remove(ctx, connectionID); err != nil {
		slog.Warn("Failed to remove connection registration",
			"connection_id", connectionID, "error", err)
	}
}
