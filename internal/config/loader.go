package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyEngineDefaults(&cfg.Engine)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Global.DatabasePath != "" {
		absDB, err := filepath.Abs(cfg.Global.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析数据库路径: %w", err)
		}
		cfg.Global.DatabasePath = absDB
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("DatabasePath", "")
	v.SetDefault("RequestTimeout", "5s")
	v.SetDefault("QueryTimeout", "1s")
	v.SetDefault("MaxInflight", 256)
	v.SetDefault("RequiredParts", []string{"info", "readme", "docs"})
	v.SetDefault("Engine.Transport", TransportRedis)
	v.SetDefault("Engine.RequestChannel", "doc-bridge.requests")
	v.SetDefault("Engine.ResponseChannel", "doc-bridge.responses")
	v.SetDefault("Engine.DialTimeout", "5s")
	v.SetDefault("Engine.BufferSize", 64)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.RequestTimeout.DurationValue() == 0 {
		g.RequestTimeout = Duration(5 * time.Second)
	}
	if g.QueryTimeout.DurationValue() == 0 {
		g.QueryTimeout = Duration(time.Second)
	}
	parts := g.RequiredParts[:0]
	for _, p := range g.RequiredParts {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	g.RequiredParts = parts
}

func applyEngineDefaults(e *EngineConfig) {
	e.Transport = strings.ToLower(strings.TrimSpace(e.Transport))
	if e.Transport == "" {
		e.Transport = TransportRedis
	}
	if e.DialTimeout.DurationValue() == 0 {
		e.DialTimeout = Duration(5 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
