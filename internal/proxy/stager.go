package proxy

import (
	"context"
	"errors"

	"github.com/any-hub/doc-bridge/internal/artifact"
	"github.com/any-hub/doc-bridge/internal/cache"
	"github.com/any-hub/doc-bridge/internal/engine"
)

// Stager 从缓存读取产物并以 AddArtifact 消息交给引擎。
type Stager struct {
	store  cache.Store
	sender engine.Transport
}

// NewStager 构造 Stager。
func NewStager(store cache.Store, sender engine.Transport) *Stager {
	return &Stager{store: store, sender: sender}
}

// Send 直接发送一份产物内容。
func (s *Stager) Send(ctx context.Context, coord cache.Coordinate, kind string, content []byte) error {
	return s.sender.Send(ctx, engine.AddArtifact{
		Coordinate: coord,
		Artifact:   kind,
		Content:    string(content),
	})
}

// Stage 推送 kinds 中已缓存的产物（kinds 为空时尝试所有非 record 类型），
// 返回已推送与缓存缺失的类型。损坏的缓存条目计入缺失。
func (s *Stager) Stage(ctx context.Context, coord cache.Coordinate, kinds ...string) (staged, missing []string, err error) {
	if len(kinds) == 0 {
		for _, key := range artifact.Keys() {
			if key != artifact.KindRecord {
				kinds = append(kinds, key)
			}
		}
	}

	staged, missing = []string{}, []string{}
	for _, kind := range kinds {
		body, readErr := cache.ReadBytes(ctx, s.store, coord, kind)
		switch {
		case readErr == nil:
		case errors.Is(readErr, cache.ErrNotFound), errors.Is(readErr, cache.ErrCorruptEntry):
			missing = append(missing, kind)
			continue
		default:
			return staged, missing, readErr
		}
		if err := s.Send(ctx, coord, kind, body); err != nil {
			return staged, missing, err
		}
		staged = append(staged, kind)
	}
	return staged, missing, nil
}
