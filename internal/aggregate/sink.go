package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/any-hub/doc-bridge/internal/artifact"
	"github.com/any-hub/doc-bridge/internal/cache"
)

// Sink 接收完成的记录并负责持久化。
type Sink interface {
	Persist(ctx context.Context, rec Record) error
}

// SinkFunc 将函数适配为 Sink。
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Persist(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// MultiSink 依次调用所有 Sink，某个失败不会阻止其余 Sink 执行，错误合并返回。
// 任一 Sink 失败即视为整条记录持久化失败，聚合器会解封记录，下次写入时
// 重新调用全部 Sink，因此每个 Sink 必须幂等。
type MultiSink []Sink

func (m MultiSink) Persist(ctx context.Context, rec Record) error {
	var err error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		err = multierr.Append(err, sink.Persist(ctx, rec))
	}
	return err
}

// packageInfo 对应 info 部分中 elm.json 风格的包描述。
type packageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CacheSink 将合并记录写为 record 产物，坐标从 info 部分解析。
// info 无法解析出包坐标的记录不落缓存，只记录告警，不影响记录完成。
type CacheSink struct {
	Store  cache.Store
	Logger *logrus.Logger
}

func (s CacheSink) Persist(ctx context.Context, rec Record) error {
	coord, err := CoordinateFromInfo(rec.Part("info"))
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"action":     "record_cache",
				"record_key": rec.Key,
			}).WithError(err).Warn("record has no package coordinate, cache write skipped")
		}
		return nil
	}
	_, err = cache.WriteStructured(ctx, s.Store, coord, artifact.KindRecord, rec)
	return err
}

// CoordinateFromInfo 解析 {"name":"author/name","version":"x.y.z"}。
func CoordinateFromInfo(info string) (cache.Coordinate, error) {
	var meta packageInfo
	if err := json.Unmarshal([]byte(info), &meta); err != nil {
		return cache.Coordinate{}, fmt.Errorf("decode info: %w", err)
	}
	author, name, ok := strings.Cut(meta.Name, "/")
	coord := cache.Coordinate{Author: author, Name: name, Version: meta.Version}
	if !ok {
		return cache.Coordinate{}, fmt.Errorf("info name %q is not author/name", meta.Name)
	}
	if err := coord.Validate(); err != nil {
		return cache.Coordinate{}, err
	}
	return coord, nil
}
