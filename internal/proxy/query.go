package proxy

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/doc-bridge/internal/logging"
	"github.com/any-hub/doc-bridge/internal/server"
)

// handleQuery 以原始 query string 作为调用方 key 请求引擎，响应正文原样返回。
func (h *Handler) handleQuery(c fiber.Ctx) error {
	key := string(c.Request().URI().QueryString())
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query_required"})
	}

	resp, err := h.caller.Call(requestContext(c), key, key, h.queryTimeout)
	if err != nil {
		fields := logging.RequestFields(key, "", false)
		fields["action"] = "search"
		return h.respondError(c, fields, err)
	}

	fields := logging.RequestFields(key, resp.CorrelationID, false)
	fields["action"] = "search"
	fields["elapsed_ms"] = resp.Elapsed.Milliseconds()
	fields["request_id"] = server.RequestID(c)
	h.logger.WithFields(fields).Info("search served")

	setBodyContentType(c, []byte(resp.Body))
	return c.SendString(resp.Body)
}

func setBodyContentType(c fiber.Ctx, body []byte) {
	if json.Valid(body) {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
		return
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
}
