package config

import (
	"errors"
	"net"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.RequestTimeout.DurationValue() <= 0 {
		return newFieldError("Global.RequestTimeout", "必须大于 0")
	}
	if g.QueryTimeout.DurationValue() <= 0 {
		return newFieldError("Global.QueryTimeout", "必须大于 0")
	}
	if g.MaxInflight < 0 {
		return newFieldError("Global.MaxInflight", "不能为负数")
	}
	if len(g.RequiredParts) == 0 {
		return newFieldError("Global.RequiredParts", "至少需要一个部分")
	}
	seen := make(map[string]struct{}, len(g.RequiredParts))
	for _, p := range g.RequiredParts {
		if _, dup := seen[p]; dup {
			return newFieldError("Global.RequiredParts", "重复: "+p)
		}
		seen[p] = struct{}{}
	}

	return c.Engine.validate()
}

func (e EngineConfig) validate() error {
	switch e.Transport {
	case TransportMemory:
		if e.BufferSize < 0 {
			return newFieldError(engineField("BufferSize"), "不能为负数")
		}
		return nil
	case TransportRedis:
	default:
		return newFieldError(engineField("Transport"), "仅支持 redis|memory")
	}

	if err := validateRedisAddr(e.RedisAddr); err != nil {
		return newFieldError(engineField("RedisAddr"), err.Error())
	}
	if strings.TrimSpace(e.RequestChannel) == "" {
		return newFieldError(engineField("RequestChannel"), "不能为空")
	}
	if strings.TrimSpace(e.ResponseChannel) == "" {
		return newFieldError(engineField("ResponseChannel"), "不能为空")
	}
	if e.RequestChannel == e.ResponseChannel {
		return newFieldError(engineField("ResponseChannel"), "不能与 RequestChannel 相同")
	}
	return nil
}

func validateRedisAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("不能为空")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.New("格式应为 host:port")
	}
	if host == "" || port == "" {
		return errors.New("格式应为 host:port")
	}
	return nil
}
