package engine

import (
	"context"
	"errors"
	"sync"
)

// Transport 抽象与引擎之间的一对消息通道。
type Transport interface {
	// Send 将消息投递给引擎，不等待任何回应。
	Send(ctx context.Context, msg Outbound) error
	// Subscribe 注册入站消息处理函数，ctx 结束后自动注销。
	Subscribe(ctx context.Context, handler func(Inbound)) error
	Close() error
}

// ErrClosed 表示 transport 已关闭。
var ErrClosed = errors.New("engine transport closed")

// ChannelTransport 是进程内的 transport，引擎侧通过 Requests 读取出站消息，
// 通过 Emit 发布入站消息。适合嵌入式引擎与测试。
type ChannelTransport struct {
	requests chan Outbound
	done     chan struct{}
	once     sync.Once

	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Inbound)
}

// NewChannelTransport 创建带缓冲的进程内 transport。
func NewChannelTransport(buffer int) *ChannelTransport {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelTransport{
		requests: make(chan Outbound, buffer),
		done:     make(chan struct{}),
		handlers: make(map[int]func(Inbound)),
	}
}

func (t *ChannelTransport) Send(ctx context.Context, msg Outbound) error {
	if msg == nil {
		return errors.New("nil outbound message")
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	select {
	case t.requests <- msg:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ChannelTransport) Subscribe(ctx context.Context, handler func(Inbound)) error {
	if handler == nil {
		return errors.New("inbound handler required")
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-t.done:
		}
		t.mu.Lock()
		delete(t.handlers, id)
		t.mu.Unlock()
	}()
	return nil
}

// Requests 返回引擎侧读取的出站消息通道。
func (t *ChannelTransport) Requests() <-chan Outbound {
	return t.requests
}

// Done 在 transport 关闭后可读。
func (t *ChannelTransport) Done() <-chan struct{} {
	return t.done
}

// Emit 由引擎侧调用，同步分发给所有订阅者。
func (t *ChannelTransport) Emit(ctx context.Context, msg Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.mu.RLock()
	handlers := make([]func(Inbound), 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (t *ChannelTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
