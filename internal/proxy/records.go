package proxy

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/aggregate"
	"github.com/any-hub/doc-bridge/internal/logging"
)

// handleSubmitPart 写入记录的一个部分：PUT /-/records/:part/<record key>。
func (h *Handler) handleSubmitPart(c fiber.Ctx) error {
	// fiber 的参数引用请求缓冲区，写入聚合器前需要复制。
	part := strings.Clone(c.Params("part"))
	key := strings.Clone(c.Params("*"))
	if key == "" || part == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "record_key_required"})
	}

	complete, err := h.parts.SubmitPart(requestContext(c), key, part, string(c.Body()))
	if err != nil {
		if errors.Is(err, aggregate.ErrRecordSealed) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "record_sealed"})
		}
		fields := logging.RecordFields(key, part, false)
		fields["action"] = "record_part"
		return h.respondPersistError(c, fields, err)
	}

	return c.JSON(fiber.Map{
		"record_key": key,
		"complete":   complete,
		"missing":    h.parts.Missing(key),
	})
}

// handleRecordStatus 查询记录完整性：GET /-/records/<record key>。
func (h *Handler) handleRecordStatus(c fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "record_key_required"})
	}
	return c.JSON(fiber.Map{
		"record_key": key,
		"complete":   h.parts.IsComplete(key),
		"missing":    h.parts.Missing(key),
	})
}

func (h *Handler) respondPersistError(c fiber.Ctx, fields logrus.Fields, err error) error {
	h.logger.WithFields(fields).WithError(err).Error("record persist failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "record_persist_failed"})
}
