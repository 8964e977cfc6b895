package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供调用方 key、内部关联 ID 与缓存命中状态，供桥接/HTTP 日志复用。
func RequestFields(key, correlationID string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"key":            key,
		"correlation_id": correlationID,
		"cache_hit":      cacheHit,
	}
}

// RecordFields 描述聚合器中某条记录的状态。
func RecordFields(recordKey, partType string, complete bool) logrus.Fields {
	return logrus.Fields{
		"record_key": recordKey,
		"part_type":  partType,
		"complete":   complete,
	}
}
