package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFormat     string `mapstructure:"LogFormat"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	// StoragePath 是内容寻址缓存的根目录。
	StoragePath string `mapstructure:"StoragePath"`
	// DatabasePath 为空时不启用 SQLite 持久化。
	DatabasePath string `mapstructure:"DatabasePath"`
	// RequestTimeout 是产物请求等待引擎响应的上限。
	RequestTimeout Duration `mapstructure:"RequestTimeout"`
	// QueryTimeout 是 /search 等待引擎响应的上限。
	QueryTimeout  Duration `mapstructure:"QueryTimeout"`
	MaxInflight   int64    `mapstructure:"MaxInflight"`
	RequiredParts []string `mapstructure:"RequiredParts"`
}

// EngineConfig 描述与引擎通信的 transport。
type EngineConfig struct {
	// Transport 取值 redis 或 memory；memory 仅适合嵌入式引擎与本地调试。
	Transport       string   `mapstructure:"Transport"`
	RedisAddr       string   `mapstructure:"RedisAddr"`
	RequestChannel  string   `mapstructure:"RequestChannel"`
	ResponseChannel string   `mapstructure:"ResponseChannel"`
	DialTimeout     Duration `mapstructure:"DialTimeout"`
	BufferSize      int      `mapstructure:"BufferSize"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Engine EngineConfig `mapstructure:"Engine"`
}

const (
	TransportRedis  = "redis"
	TransportMemory = "memory"
)
