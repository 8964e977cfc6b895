package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// useBufferWriters 在测试期间把 stdOut/stdErr 替换为内存缓冲区。
func useBufferWriters(t *testing.T) {
	t.Helper()

	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &bytes.Buffer{}, &bytes.Buffer{}
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
}

func stdErrBuffer() *bytes.Buffer {
	buf, _ := stdErr.(*bytes.Buffer)
	if buf == nil {
		return &bytes.Buffer{}
	}
	return buf
}

// configFixture 指向 internal/config/testdata 下的样例；go test 以包目录为工作目录。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("internal", "config", "testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("缺少配置样例 %s: %v", name, err)
	}
	return path
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
