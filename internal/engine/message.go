package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/any-hub/doc-bridge/internal/cache"
)

// Outbound 是发往引擎的消息，只能是 RequestDispatch 或 AddArtifact。
type Outbound interface {
	outbound()
	Kind() string
}

// Inbound 是引擎发出的消息，只能是 Response 或 PartArrived。
type Inbound interface {
	inbound()
	Kind() string
}

const (
	KindRequestDispatch = "request-dispatch"
	KindAddArtifact     = "add-artifact"
	KindResponse        = "response"
	KindPartArrived     = "part-arrived"
)

// RequestDispatch 请求引擎计算。ID 为桥接层生成的内部关联 ID，引擎需在
// Response.CorrelationID 中原样回显；Key 为调用方提供的业务键，仅用于日志。
type RequestDispatch struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Payload string `json:"payload"`
}

// AddArtifact 将缓存中的产物交给引擎作为输入。
type AddArtifact struct {
	Coordinate cache.Coordinate `json:"coordinate"`
	Artifact   string           `json:"artifact"`
	Content    string           `json:"content"`
}

// Response 是引擎对某个 RequestDispatch 的回应。
type Response struct {
	CorrelationID string `json:"correlation_id"`
	Body          string `json:"body"`
}

// PartArrived 表示某条记录的一个组成部分已产出。
type PartArrived struct {
	RecordKey string `json:"record_key"`
	PartType  string `json:"part_type"`
	Value     string `json:"value"`
}

func (RequestDispatch) outbound() {}
func (AddArtifact) outbound()     {}
func (Response) inbound()         {}
func (PartArrived) inbound()      {}

func (RequestDispatch) Kind() string { return KindRequestDispatch }
func (AddArtifact) Kind() string     { return KindAddArtifact }
func (Response) Kind() string        { return KindResponse }
func (PartArrived) Kind() string     { return KindPartArrived }

// ErrUnknownKind 表示信封中的 kind 不在协议内。
var ErrUnknownKind = errors.New("unknown message kind")

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeOutbound 将出站消息序列化为带 kind 标签的 JSON 信封。
func EncodeOutbound(msg Outbound) ([]byte, error) {
	switch msg.(type) {
	case RequestDispatch, AddArtifact:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return encode(msg.Kind(), msg)
}

// EncodeInbound 将入站消息序列化为带 kind 标签的 JSON 信封。
func EncodeInbound(msg Inbound) ([]byte, error) {
	switch msg.(type) {
	case Response, PartArrived:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return encode(msg.Kind(), msg)
}

func encode(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Data: data})
}

// DecodeOutbound 解析出站信封。
func DecodeOutbound(raw []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Kind {
	case KindRequestDispatch:
		var msg RequestDispatch
		err := decodeData(env, &msg)
		return msg, err
	case KindAddArtifact:
		var msg AddArtifact
		err := decodeData(env, &msg)
		return msg, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

// DecodeInbound 解析入站信封。
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Kind {
	case KindResponse:
		var msg Response
		err := decodeData(env, &msg)
		return msg, err
	case KindPartArrived:
		var msg PartArrived
		err := decodeData(env, &msg)
		return msg, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

func decodeData(env envelope, target any) error {
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return nil
}
