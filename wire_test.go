package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/config"
)

func TestBuildComponentsMemoryTransport(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
StoragePath = "%s"
DatabasePath = "%s"
QueryTimeout = "100ms"

[Engine]
Transport = "memory"
`, filepath.Join(dir, "storage"), filepath.Join(dir, "records.db")))

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	comp, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("组装失败: %v", err)
	}
	defer comp.Close()

	resp, err := comp.app.Test(httptest.NewRequest(http.MethodGet, "/-/status", nil))
	if err != nil {
		t.Fatalf("status 请求失败: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status 应返回 200，得到 %d", resp.StatusCode)
	}

	// memory 模式下没有引擎回应，查询应在 QueryTimeout 后返回 408。
	resp, err = comp.app.Test(
		httptest.NewRequest(http.MethodGet, "/search?q=list", nil),
		fiber.TestConfig{Timeout: 2 * time.Second},
	)
	if err != nil {
		t.Fatalf("search 请求失败: %v", err)
	}
	if resp.StatusCode != fiber.StatusRequestTimeout {
		t.Fatalf("无引擎回应应返回 408，得到 %d", resp.StatusCode)
	}
	if comp.bridge.Inflight() != 0 {
		t.Fatalf("超时后不应残留在途请求")
	}
}
