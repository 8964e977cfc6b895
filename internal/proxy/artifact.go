package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/artifact"
	"github.com/any-hub/doc-bridge/internal/cache"
	"github.com/any-hub/doc-bridge/internal/logging"
)

const headerCacheHit = "X-Doc-Bridge-Cache-Hit"

var errInvalidEngineBody = errors.New("engine returned malformed artifact")

// artifactRequest 是发给引擎的产物计算请求正文。
type artifactRequest struct {
	Coordinate cache.Coordinate `json:"coordinate"`
	Artifact   string           `json:"artifact"`
}

func parseArtifactPath(c fiber.Ctx) (cache.Coordinate, artifact.Kind, error) {
	coord := coordinateFromParams(c)
	if err := coord.Validate(); err != nil {
		return coord, artifact.Kind{}, err
	}
	kind, ok := artifact.Resolve(c.Params("kind"))
	if !ok {
		return coord, artifact.Kind{}, fmt.Errorf("%w: %s", cache.ErrUnknownKind, c.Params("kind"))
	}
	return coord, kind, nil
}

// coordinateFromParams 复制路由参数，避免引用被复用的请求缓冲区。
func coordinateFromParams(c fiber.Ctx) cache.Coordinate {
	return cache.Coordinate{
		Author:  strings.Clone(c.Params("author")),
		Name:    strings.Clone(c.Params("name")),
		Version: strings.Clone(c.Params("version")),
	}
}

func rejectPath(c fiber.Ctx, err error) error {
	if errors.Is(err, cache.ErrUnknownKind) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_artifact_kind"})
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_coordinate"})
}

// handleGetArtifact 命中缓存直接返回；未命中或缓存损坏时请求引擎并回写缓存。
func (h *Handler) handleGetArtifact(c fiber.Ctx) error {
	coord, kind, err := parseArtifactPath(c)
	if err != nil {
		return rejectPath(c, err)
	}
	ctx := requestContext(c)
	key := strings.Clone(c.Path())

	body, err := cache.ReadBytes(ctx, h.store, coord, kind.Key)
	switch {
	case err == nil:
		return h.serveArtifact(c, kind, body, true)
	case errors.Is(err, cache.ErrNotFound):
	case errors.Is(err, cache.ErrCorruptEntry):
		h.logger.WithFields(h.artifactFields(key, coord, kind)).WithError(err).Warn("cache_entry_corrupt")
	default:
		h.logger.WithFields(h.artifactFields(key, coord, kind)).WithError(err).Warn("cache_get_failed")
	}

	flightKey := cache.KeyFor(coord) + "/" + kind.Key
	// 共享的计算不随单个请求取消。
	shared := context.WithoutCancel(ctx)
	result, err, _ := h.inflight.Do(flightKey, func() (interface{}, error) {
		return h.computeArtifact(shared, key, coord, kind)
	})
	if err != nil {
		return h.respondError(c, h.artifactFields(key, coord, kind), err)
	}
	return h.serveArtifact(c, kind, result.([]byte), false)
}

func (h *Handler) computeArtifact(ctx context.Context, key string, coord cache.Coordinate, kind artifact.Kind) ([]byte, error) {
	payload, err := json.Marshal(artifactRequest{Coordinate: coord, Artifact: kind.Key})
	if err != nil {
		return nil, err
	}

	resp, err := h.caller.Call(ctx, key, string(payload), h.requestTimeout)
	if err != nil {
		return nil, err
	}
	body := []byte(resp.Body)
	if kind.Structured && !json.Valid(body) {
		return nil, errInvalidEngineBody
	}

	if _, err := h.store.Put(ctx, coord, kind.Key, bytes.NewReader(body)); err != nil {
		return nil, err
	}

	fields := h.artifactFields(key, coord, kind)
	fields["correlation_id"] = resp.CorrelationID
	fields["elapsed_ms"] = resp.Elapsed.Milliseconds()
	h.logger.WithFields(fields).Info("artifact computed")
	return body, nil
}

func (h *Handler) serveArtifact(c fiber.Ctx, kind artifact.Kind, body []byte, hit bool) error {
	if kind.ContentType != "" {
		c.Set(fiber.HeaderContentType, kind.ContentType)
	}
	if hit {
		c.Set(headerCacheHit, "true")
	} else {
		c.Set(headerCacheHit, "false")
	}
	return c.Send(body)
}

// handlePutArtifact 写入缓存（覆盖）并把产物交给引擎作为输入。
func (h *Handler) handlePutArtifact(c fiber.Ctx) error {
	coord, kind, err := parseArtifactPath(c)
	if err != nil {
		return rejectPath(c, err)
	}
	body := append([]byte(nil), c.Body()...)
	if kind.Structured && !json.Valid(body) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}

	ctx := requestContext(c)
	entry, err := h.store.Put(ctx, coord, kind.Key, bytes.NewReader(body))
	if err != nil {
		return h.respondError(c, h.artifactFields(c.Path(), coord, kind), err)
	}
	if err := h.stager.Send(ctx, coord, kind.Key, body); err != nil {
		return h.respondError(c, h.artifactFields(c.Path(), coord, kind), err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":        cache.KeyFor(coord),
		"kind":       kind.Key,
		"size_bytes": entry.SizeBytes,
	})
}

// handleStage 将该包所有已缓存的产物推送给引擎，返回已推送与缺失的类型。
func (h *Handler) handleStage(c fiber.Ctx) error {
	coord := coordinateFromParams(c)
	if err := coord.Validate(); err != nil {
		return rejectPath(c, err)
	}

	staged, missing, err := h.stager.Stage(requestContext(c), coord)
	if err != nil {
		fields := logging.RequestFields(c.Path(), "", false)
		fields["action"] = "stage"
		return h.respondError(c, fields, err)
	}
	return c.JSON(fiber.Map{"staged": staged, "missing": missing})
}

func (h *Handler) artifactFields(key string, coord cache.Coordinate, kind artifact.Kind) logrus.Fields {
	fields := logging.RequestFields(key, "", false)
	fields["action"] = "artifact"
	fields["package"] = coord.String()
	fields["artifact"] = kind.Key
	return fields
}
