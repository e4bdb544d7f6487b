package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/providers/baileys"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/labstack/echo/v4"
)

const webhookMaxBodyBytes int64 = 1 << 20

type WebhookProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// WebhookHandler receives Baileys deliveries for one inbox per URL.
type WebhookHandler struct {
	processor WebhookProcessor
	logger    core.Logger
}

func NewWebhookHandler(processor WebhookProcessor, logger core.Logger) *WebhookHandler {
	if logger == nil {
		logger = glog.Nop()
	}
	return &WebhookHandler{processor: processor, logger: logger}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/baileys/:inbox_id", h.Handle)
}

func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.processor == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook processor not configured")
	}
	inboxID := strings.TrimSpace(c.Param("inbox_id"))
	if inboxID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "inbox id is required")
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(body)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}

	headers := make(map[string]string, len(c.Request().Header))
	for key := range c.Request().Header {
		headers[strings.ToLower(key)] = c.Request().Header.Get(key)
	}
	result, err := h.processor.Process(c.Request().Context(), core.InboundRequest{
		ProviderID: baileys.ProviderID,
		Surface:    "webhook",
		Headers:    headers,
		Body:       body,
		Metadata:   map[string]any{baileys.MetadataInboxID: inboxID},
	})
	if err != nil {
		h.logger.WithContext(c.Request().Context()).Warn("baileys webhook failed",
			"inbox_id", inboxID,
			"status", result.StatusCode,
			"error", err.Error(),
		)
		if result.StatusCode >= http.StatusBadRequest {
			return c.JSON(result.StatusCode, errorBody{Error: errorPayload{
				Code:     http.StatusText(result.StatusCode),
				Category: "webhook",
				Message:  err.Error(),
			}})
		}
		return err
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	metadata := result.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return c.JSON(status, metadata)
}
