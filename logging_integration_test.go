package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggingFallbackToStdout(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logPath := filepath.Join(blocked, "sub", "doc-bridge.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
StoragePath = "%s"
ListenPort = 5000

[Engine]
Transport = "memory"
`, logPath, filepath.Join(dir, "storage")))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, checkOnly: true})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
	t.Log(stdErrBuffer().String())
}
