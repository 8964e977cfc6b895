package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	// AccessLog enables one structured log line per request.
	AccessLog bool
}

const contextKeyRequestID = "_docbridge_request_id"

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

// NewApp builds a Fiber application with request-id middleware and
// structured error handling. Routes are registered by the caller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	if opts.AccessLog {
		app.Use(accessLogMiddleware(opts.Logger))
	}

	return app, nil
}

// requestIDMiddleware 沿用调用方传入的 X-Request-ID，缺省时生成 uuid。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := c.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		} else {
			reqID = string(append([]byte(nil), reqID...))
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(HeaderRequestID, reqID)
		return c.Next()
	}
}

func accessLogMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		logger.WithFields(logrus.Fields{
			"action":     "access",
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"elapsed_ms": time.Since(started).Milliseconds(),
			"request_id": RequestID(c),
		}).Info("request served")
		return err
	}
}

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := "internal_error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			code = strings.ToLower(strings.ReplaceAll(fe.Message, " ", "_"))
		}
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "error_handler",
				"path":       c.Path(),
				"request_id": RequestID(c),
			}).WithError(err).Error("unhandled request error")
		}
		return c.Status(status).JSON(fiber.Map{"error": code})
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
