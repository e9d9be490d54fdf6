package server

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"pulsebridge/internal/domain"
	"pulsebridge/internal/metrics"
)

// defaultEventType labels webhook events that carry no X-Event-Type hint.
const defaultEventType = "payment_event"

// handleWebhook ingests a provider event: verify the signature over the exact
// bytes received, then republish the raw payload onto the broadcast channel.
// The body is never parsed or reserialized before verification.
func (s *Server) handleWebhook(c echo.Context) error {
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("read_error").Inc()
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "internal error",
			"error":   "failed to read request body",
		})
	}

	// Some transports deliver the signed body base64-wrapped; the signature
	// covers the decoded bytes.
	if strings.EqualFold(c.Request().Header.Get("Content-Transfer-Encoding"), "base64") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(rawBody)))
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"message": "unauthorized",
				"reason":  "invalid payload encoding",
			})
		}
		rawBody = decoded
	}

	result := s.verifier.Verify(rawBody, c.Request().Header)
	if !result.Accepted {
		metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
		slog.WarnContext(c.Request().Context(), "Webhook rejected", "reason", result.Reason)
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"message": "unauthorized",
			"reason":  result.Reason,
		})
	}

	eventType := c.Request().Header.Get("X-Event-Type")
	if eventType == "" {
		eventType = defaultEventType
	}

	event := domain.BroadcastEvent{Type: eventType, Payload: string(rawBody)}
	if err := s.publisher.Publish(c.Request().Context(), event); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("publish_error").Inc()
		slog.ErrorContext(c.Request().Context(), "Failed to republish webhook event", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "internal error",
			"error":   err.Error(),
		})
	}

	metrics.WebhookEventsTotal.WithLabelValues("accepted").Inc()
	slog.InfoContext(c.Request().Context(), "Webhook accepted",
		"reason", result.Reason,
		"event_type", eventType,
		"payload_bytes", len(rawBody),
	)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
