package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Store 负责管理内容寻址缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<KeyFor(coordinate)>/<kind><ext>
//
// 每个条目只由正文文件组成，没有版本号与校验和，重复写入直接覆盖。
type Store interface {
	// Has 仅检查文件是否存在，不校验内容。
	Has(ctx context.Context, coord Coordinate, kind string) bool

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, coord Coordinate, kind string) (*ReadResult, error)

	// Put 写入产物正文。实现需通过临时文件 + rename 保证原子性，
	// 失败时清理临时文件并返回 *WriteError。
	Put(ctx context.Context, coord Coordinate, kind string, body io.Reader) (*Entry, error)

	// Remove 删除正文文件，通常用于清理损坏条目。
	Remove(ctx context.Context, coord Coordinate, kind string) error
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Coordinate Coordinate `json:"coordinate"`
	Kind       string     `json:"kind"`
	FilePath   string     `json:"file_path"`
	SizeBytes  int64      `json:"size_bytes"`
	ModTime    time.Time  `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于 HTTP 层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在，调用方应回退到引擎重新计算。
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorruptEntry 表示结构化产物无法解析，按缓存未命中处理。
	ErrCorruptEntry = errors.New("corrupt cache entry")
	// ErrUnknownKind 表示产物类型未注册。
	ErrUnknownKind = errors.New("unknown artifact kind")
)

// WriteError 描述写缓存时的 I/O 失败，调用方据此决定是否重试，进程不会退出。
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
