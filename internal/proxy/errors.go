package proxy

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/bridge"
	"github.com/any-hub/doc-bridge/internal/cache"
	"github.com/any-hub/doc-bridge/internal/server"
)

// respondError 将领域错误映射为 HTTP 状态码与 JSON 错误码，并记录结构化日志。
func (h *Handler) respondError(c fiber.Ctx, fields logrus.Fields, err error) error {
	status, code := classify(err)

	requestID := server.RequestID(c)
	if requestID != "" {
		fields["request_id"] = requestID
	}
	fields["status"] = status
	fields["error"] = code
	entry := h.logger.WithFields(fields).WithError(err)
	if status >= fiber.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	return c.Status(status).JSON(fiber.Map{"error": code})
}

func classify(err error) (int, string) {
	var writeErr *cache.WriteError
	switch {
	case errors.Is(err, bridge.ErrTimeout):
		return fiber.StatusRequestTimeout, "request_timeout"
	case errors.Is(err, bridge.ErrOverloaded):
		return fiber.StatusServiceUnavailable, "engine_overloaded"
	case errors.Is(err, errInvalidEngineBody):
		return fiber.StatusBadGateway, "invalid_engine_response"
	case errors.As(err, &writeErr):
		return fiber.StatusInternalServerError, "cache_write_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable, "request_cancelled"
	default:
		return fiber.StatusBadGateway, "engine_unavailable"
	}
}
