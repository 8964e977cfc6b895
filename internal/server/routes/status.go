package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/doc-bridge/internal/artifact"
	"github.com/any-hub/doc-bridge/internal/version"
)

// StatusSource 提供诊断端需要的运行时计数。
type StatusSource interface {
	Inflight() int
}

// RecordSource 提供聚合器中尚未完成的记录。
type RecordSource interface {
	Pending() []string
	Required() []string
}

// RegisterStatusRoutes 暴露 /-/status 与 /-/artifacts 诊断接口，供 SRE 观察在途请求与聚合状态。
func RegisterStatusRoutes(app *fiber.App, bridge StatusSource, records RecordSource) {
	if app == nil || bridge == nil || records == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		pending := records.Pending()
		return c.JSON(statusPayload{
			Version:        version.Full(),
			Inflight:       bridge.Inflight(),
			PendingRecords: len(pending),
			Pending:        pending,
			RequiredParts:  records.Required(),
		})
	})

	app.Get("/-/artifacts", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"kinds": encodeKinds(artifact.List())})
	})
}

type statusPayload struct {
	Version        string   `json:"version"`
	Inflight       int      `json:"inflight_requests"`
	PendingRecords int      `json:"pending_records"`
	Pending        []string `json:"pending"`
	RequiredParts  []string `json:"required_parts"`
}

type kindPayload struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Description string `json:"description"`
	Structured  bool   `json:"structured"`
}

func encodeKinds(kinds []artifact.Kind) []kindPayload {
	if len(kinds) == 0 {
		return nil
	}
	result := make([]kindPayload, 0, len(kinds))
	for _, kind := range kinds {
		result = append(result, kindPayload{
			Key:         kind.Key,
			FileName:    kind.FileName(),
			ContentType: kind.ContentType,
			Description: kind.Description,
			Structured:  kind.Structured,
		})
	}
	return result
}
