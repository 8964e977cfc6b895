package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/any-hub/doc-bridge/internal/artifact"
)

// ReadStructured 读取 JSON 产物并解码到 v。解析失败时删除损坏文件并返回
// ErrCorruptEntry，调用方应按缓存未命中处理。
func ReadStructured(ctx context.Context, store Store, coord Coordinate, kind string, v any) error {
	result, err := store.Get(ctx, coord, kind)
	if err != nil {
		return err
	}
	defer result.Reader.Close()

	raw, err := io.ReadAll(result.Reader)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		_ = store.Remove(ctx, coord, kind)
		return fmt.Errorf("%w: %s: %v", ErrCorruptEntry, result.Entry.FilePath, err)
	}
	return nil
}

// ReadBytes 读取整个产物正文。结构化类型会先做 JSON 校验，
// 不合法时同样删除文件并返回 ErrCorruptEntry。
func ReadBytes(ctx context.Context, store Store, coord Coordinate, kind string) ([]byte, error) {
	result, err := store.Get(ctx, coord, kind)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()

	raw, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, err
	}
	if meta, ok := artifact.Resolve(kind); ok && meta.Structured && !json.Valid(raw) {
		_ = store.Remove(ctx, coord, kind)
		return nil, fmt.Errorf("%w: %s", ErrCorruptEntry, result.Entry.FilePath)
	}
	return raw, nil
}

// WriteStructured 将 v 编码为 JSON 并写入缓存。
func WriteStructured(ctx context.Context, store Store, coord Coordinate, kind string, v any) (*Entry, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return store.Put(ctx, coord, kind, bytes.NewReader(raw))
}
