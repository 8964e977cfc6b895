package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/doc-bridge/internal/engine"
	"github.com/any-hub/doc-bridge/internal/logging"
)

// DefaultRequiredParts 是包记录默认需要的部分集合。
var DefaultRequiredParts = []string{"info", "readme", "docs"}

var (
	// ErrRecordSealed 表示记录已完成并持久化，不再接受新部分。
	ErrRecordSealed = errors.New("record already complete")
	// ErrEmptyKey 表示记录键或部分类型为空。
	ErrEmptyKey = errors.New("record key and part type are required")
)

// Record 是所有必需部分齐备后的合并记录。
type Record struct {
	Key   string            `json:"key"`
	Parts map[string]string `json:"parts"`
}

// Part 返回指定部分的值，不存在时返回空字符串。
func (r Record) Part(name string) string {
	return r.Parts[name]
}

// Aggregator 独占 records/sealed 两张表，所有访问都在 mu 保护下进行。
type Aggregator struct {
	required []string
	sink     Sink
	logger   *logrus.Logger

	mu      sync.Mutex
	records map[string]map[string]string
	sealed  map[string]struct{}
}

// New 构造聚合器；required 为空时使用 DefaultRequiredParts。
func New(required []string, sink Sink, logger *logrus.Logger) (*Aggregator, error) {
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(required) == 0 {
		required = DefaultRequiredParts
	}

	seen := make(map[string]struct{}, len(required))
	parts := make([]string, 0, len(required))
	for _, p := range required {
		if p == "" {
			return nil, errors.New("required part type cannot be empty")
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		parts = append(parts, p)
	}

	return &Aggregator{
		required: parts,
		sink:     sink,
		logger:   logger,
		records:  make(map[string]map[string]string),
		sealed:   make(map[string]struct{}),
	}, nil
}

// Required 返回必需部分列表的副本。
func (a *Aggregator) Required() []string {
	return append([]string(nil), a.required...)
}

// SubmitPart 覆盖写入 (key, partType) 的值，不校验 partType 是否属于必需集合。
// 写入后立即重新计算完整性；由不完整变为完整时同步调用 Sink 并返回 true。
func (a *Aggregator) SubmitPart(ctx context.Context, key, partType, value string) (bool, error) {
	if key == "" || partType == "" {
		return false, ErrEmptyKey
	}

	a.mu.Lock()
	if _, sealed := a.sealed[key]; sealed {
		a.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrRecordSealed, key)
	}
	rec := a.records[key]
	if rec == nil {
		rec = make(map[string]string, len(a.required))
		a.records[key] = rec
	}
	rec[partType] = value

	if !a.completeLocked(rec) {
		a.mu.Unlock()
		a.logger.WithFields(logging.RecordFields(key, partType, false)).Debug("record part stored")
		return false, nil
	}

	merged := Record{Key: key, Parts: make(map[string]string, len(a.required))}
	for _, p := range a.required {
		merged.Parts[p] = rec[p]
	}
	delete(a.records, key)
	a.sealed[key] = struct{}{}
	a.mu.Unlock()

	if err := a.sink.Persist(ctx, merged); err != nil {
		a.restore(merged)
		a.logger.WithFields(logging.RecordFields(key, partType, true)).
			WithError(err).
			Error("record persist failed")
		return false, fmt.Errorf("persist record %s: %w", key, err)
	}

	a.logger.WithFields(logging.RecordFields(key, partType, true)).Info("record complete")
	return true, nil
}

// HandlePart 适配引擎的 PartArrived 消息，错误只记录日志。
func (a *Aggregator) HandlePart(part engine.PartArrived) {
	if _, err := a.SubmitPart(context.Background(), part.RecordKey, part.PartType, part.Value); err != nil {
		a.logger.WithFields(logging.RecordFields(part.RecordKey, part.PartType, false)).
			WithField("action", "engine_part").
			WithError(err).
			Warn("engine part rejected")
	}
}

// IsComplete 当所有必需部分都已存储时返回 true；已封存的记录同样视为完整。
func (a *Aggregator) IsComplete(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, sealed := a.sealed[key]; sealed {
		return true
	}
	rec, ok := a.records[key]
	return ok && a.completeLocked(rec)
}

// Missing 返回记录尚缺的必需部分。
func (a *Aggregator) Missing(key string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, sealed := a.sealed[key]; sealed {
		return nil
	}
	rec := a.records[key]
	var missing []string
	for _, p := range a.required {
		if _, ok := rec[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// Pending 返回尚未完成的记录键（排序后）。
func (a *Aggregator) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.records))
	for key := range a.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Reset 解除封存并丢弃已收集的部分，使记录可以重新聚合。
func (a *Aggregator) Reset(key string) {
	a.mu.Lock()
	delete(a.records, key)
	delete(a.sealed, key)
	a.mu.Unlock()
}

func (a *Aggregator) completeLocked(rec map[string]string) bool {
	for _, p := range a.required {
		if _, ok := rec[p]; !ok {
			return false
		}
	}
	return true
}

// restore 在 Sink 失败后撤销封存，保留已收集的部分以便下次提交时重试。
func (a *Aggregator) restore(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sealed, rec.Key)
	current := a.records[rec.Key]
	if current == nil {
		current = make(map[string]string, len(rec.Parts))
		a.records[rec.Key] = current
	}
	for p, v := range rec.Parts {
		if _, ok := current[p]; !ok {
			current[p] = v
		}
	}
}
