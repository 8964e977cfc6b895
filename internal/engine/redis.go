package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions 描述通过 Redis pub/sub 连接外部引擎所需的参数。
type RedisOptions struct {
	Addr            string
	RequestChannel  string
	ResponseChannel string
	DialTimeout     time.Duration
}

// RedisTransport 将出站消息发布到 RequestChannel，并订阅 ResponseChannel
// 上的入站消息。两个方向都使用 kind 标签的 JSON 信封。
type RedisTransport struct {
	rdb    *goredis.Client
	logger *logrus.Logger
	opts   RedisOptions
}

// NewRedisTransport 建立连接并 Ping 确认可用。
func NewRedisTransport(opts RedisOptions, logger *logrus.Logger) (*RedisTransport, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	if opts.RequestChannel == "" || opts.ResponseChannel == "" {
		return nil, errors.New("redis request/response channels are required")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DialTimeout: opts.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisTransport{rdb: rdb, logger: logger, opts: opts}, nil
}

func (t *RedisTransport) Send(ctx context.Context, msg Outbound) error {
	raw, err := EncodeOutbound(msg)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, t.opts.RequestChannel, raw).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, handler func(Inbound)) error {
	if handler == nil {
		return errors.New("inbound handler required")
	}

	sub := t.rdb.Subscribe(ctx, t.opts.ResponseChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				msg, err := DecodeInbound([]byte(m.Payload))
				if err != nil {
					t.logger.WithFields(logrus.Fields{
						"action":  "engine_subscribe",
						"channel": m.Channel,
					}).WithError(err).Warn("drop malformed engine message")
					continue
				}
				handler(msg)
			}
		}
	}()
	return nil
}

func (t *RedisTransport) Close() error {
	if t == nil || t.rdb == nil {
		return nil
	}
	return t.rdb.Close()
}
