package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/doc-bridge/internal/bridge"
	"github.com/any-hub/doc-bridge/internal/cache"
	"github.com/any-hub/doc-bridge/internal/engine"
)

// Caller 抽象 bridge 的同步调用能力，便于测试注入。
type Caller interface {
	Call(ctx context.Context, key, payload string, maxWait time.Duration) (bridge.Response, error)
}

// PartSubmitter 抽象聚合器的写入与查询能力。
type PartSubmitter interface {
	SubmitPart(ctx context.Context, key, partType, value string) (bool, error)
	IsComplete(key string) bool
	Missing(key string) []string
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Logger         *logrus.Logger
	Caller         Caller
	Sender         engine.Transport
	Store          cache.Store
	Parts          PartSubmitter
	RequestTimeout time.Duration
	QueryTimeout   time.Duration
}

// Handler 持有所有路由共享的依赖。
type Handler struct {
	logger         *logrus.Logger
	caller         Caller
	store          cache.Store
	parts          PartSubmitter
	stager         *Stager
	requestTimeout time.Duration
	queryTimeout   time.Duration

	inflight singleflight.Group
}

// NewHandler 校验依赖并构造 Handler。
func NewHandler(opts Options) (*Handler, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	case opts.Caller == nil:
		return nil, errors.New("caller is required")
	case opts.Store == nil:
		return nil, errors.New("cache store is required")
	case opts.Sender == nil:
		return nil, errors.New("engine sender is required")
	case opts.Parts == nil:
		return nil, errors.New("part submitter is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = time.Second
	}

	return &Handler{
		logger:         opts.Logger,
		caller:         opts.Caller,
		store:          opts.Store,
		parts:          opts.Parts,
		stager:         NewStager(opts.Store, opts.Sender),
		requestTimeout: opts.RequestTimeout,
		queryTimeout:   opts.QueryTimeout,
	}, nil
}

// Register 将所有业务路由挂到 app 上。
func (h *Handler) Register(app *fiber.App) {
	app.Get("/search", h.handleQuery)
	app.Get("/packages/:author/:name/:version/:kind", h.handleGetArtifact)
	app.Put("/packages/:author/:name/:version/:kind", h.handlePutArtifact)
	app.Post("/-/stage/:author/:name/:version", h.handleStage)
	app.Put("/-/records/:part/*", h.handleSubmitPart)
	app.Get("/-/records/*", h.handleRecordStatus)
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
