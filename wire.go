package main

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/aggregate"
	"github.com/any-hub/doc-bridge/internal/bridge"
	"github.com/any-hub/doc-bridge/internal/cache"
	"github.com/any-hub/doc-bridge/internal/config"
	"github.com/any-hub/doc-bridge/internal/engine"
	"github.com/any-hub/doc-bridge/internal/logging"
	"github.com/any-hub/doc-bridge/internal/proxy"
	"github.com/any-hub/doc-bridge/internal/server"
	"github.com/any-hub/doc-bridge/internal/server/routes"
	"github.com/any-hub/doc-bridge/internal/store/sqlite"
)

// components 记录启动过程中创建的需要关闭的资源。
type components struct {
	app     *fiber.App
	bridge  *bridge.Bridge
	records *aggregate.Aggregator
	closers []func() error
	logger  *logrus.Logger
}

// Close 以创建顺序的逆序释放资源。
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.WithField("action", "shutdown").WithError(err).Warn("关闭资源失败")
		}
	}
	c.closers = nil
}

// buildComponents 按 配置 → 缓存 → 引擎 transport → bridge → 聚合器 → Fiber 的顺序组装服务。
// 返回错误时已创建的资源会被关闭。
func buildComponents(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (comp *components, err error) {
	comp = &components{logger: logger}
	defer func() {
		if err != nil {
			comp.Close()
			comp = nil
		}
	}()

	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return comp, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	transport, err := newTransport(ctx, cfg.Engine, logger)
	if err != nil {
		return comp, fmt.Errorf("连接引擎失败: %w", err)
	}
	comp.closers = append(comp.closers, transport.Close)

	comp.bridge, err = bridge.New(bridge.Options{
		Transport:   transport,
		Logger:      logger,
		MaxInflight: cfg.Global.MaxInflight,
	})
	if err != nil {
		return comp, err
	}

	sinks := aggregate.MultiSink{aggregate.CacheSink{Store: store, Logger: logger}}
	if cfg.Global.DatabasePath != "" {
		db, err := sqlite.Open(cfg.Global.DatabasePath)
		if err != nil {
			return comp, fmt.Errorf("打开数据库失败: %w", err)
		}
		comp.closers = append(comp.closers, db.Close)
		sinks = append(sinks, db)
	}

	comp.records, err = aggregate.New(cfg.Global.RequiredParts, sinks, logger)
	if err != nil {
		return comp, err
	}
	comp.bridge.OnPart(comp.records.HandlePart)
	if err := comp.bridge.Start(ctx); err != nil {
		return comp, fmt.Errorf("订阅引擎响应失败: %w", err)
	}

	handler, err := proxy.NewHandler(proxy.Options{
		Logger:         logger,
		Caller:         comp.bridge,
		Sender:         transport,
		Store:          store,
		Parts:          comp.records,
		RequestTimeout: cfg.Global.RequestTimeout.DurationValue(),
		QueryTimeout:   cfg.Global.QueryTimeout.DurationValue(),
	})
	if err != nil {
		return comp, err
	}

	comp.app, err = server.NewApp(server.AppOptions{Logger: logger, AccessLog: true})
	if err != nil {
		return comp, err
	}
	handler.Register(comp.app)
	routes.RegisterStatusRoutes(comp.app, comp.bridge, comp.records)

	return comp, nil
}

// newTransport 按配置创建引擎 transport。memory 模式没有外部引擎，
// 出站消息仅记录 debug 日志后丢弃，请求最终超时。
func newTransport(ctx context.Context, cfg config.EngineConfig, logger *logrus.Logger) (engine.Transport, error) {
	if cfg.Transport == config.TransportMemory {
		tr := engine.NewChannelTransport(cfg.BufferSize)
		go drainOutbound(ctx, tr, logging.Component(logger, "engine"))
		return tr, nil
	}

	tr, err := engine.NewRedisTransport(engine.RedisOptions{
		Addr:            cfg.RedisAddr,
		RequestChannel:  cfg.RequestChannel,
		ResponseChannel: cfg.ResponseChannel,
		DialTimeout:     cfg.DialTimeout.DurationValue(),
	}, logger)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func drainOutbound(ctx context.Context, tr *engine.ChannelTransport, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tr.Done():
			return
		case msg := <-tr.Requests():
			log.WithField("kind", msg.Kind()).Debug("未挂载引擎，丢弃出站消息")
		}
	}
}
