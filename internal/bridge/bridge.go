package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/any-hub/doc-bridge/internal/engine"
	"github.com/any-hub/doc-bridge/internal/logging"
)

var (
	// ErrTimeout 表示在 maxWait 内没有收到匹配的响应，HTTP 层映射为 408。
	ErrTimeout = errors.New("engine response timeout")
	// ErrOverloaded 表示在途请求数已达上限。
	ErrOverloaded = errors.New("too many in-flight engine requests")
	// ErrUnknownTicket 表示 ticket 已经结束（成功、超时或从未登记）。
	ErrUnknownTicket = errors.New("unknown or settled ticket")
)

// Options 控制 Bridge 的依赖与限流参数。
type Options struct {
	Transport engine.Transport
	Logger    *logrus.Logger
	// MaxInflight <= 0 表示不限制在途请求数。
	MaxInflight int64
	// NewID 生成内部关联 ID，默认使用 uuid。
	NewID func() string
	// PartBuffer 是 PartArrived 队列容量，默认 256。
	PartBuffer int
}

// Ticket 代表一次已派发的请求，Await 必须且只能消费一次。
type Ticket struct {
	ID           string
	Key          string
	DispatchedAt time.Time

	resp    chan engine.Response
	awaited atomic.Bool
}

// Response 是交还给调用方的引擎响应。
type Response struct {
	Key           string
	CorrelationID string
	Body          string
	Elapsed       time.Duration
}

type pendingRequest struct {
	key     string
	resp    chan engine.Response
	release func()
}

// Bridge 独占 pending 表，所有读写都在 mu 保护下进行。
type Bridge struct {
	transport engine.Transport
	logger    *logrus.Logger
	sem       *semaphore.Weighted
	newID     func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
	onPart  func(engine.PartArrived)

	// parts 由 Start 启动的 worker 消费，订阅协程只负责入队。
	parts     chan engine.PartArrived
	partsDone chan struct{}
	startOnce sync.Once
}

// New 构造 Bridge；调用方需再调用 Start 以挂载订阅。
func New(opts Options) (*Bridge, error) {
	if opts.Transport == nil {
		return nil, errors.New("engine transport is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	if opts.PartBuffer <= 0 {
		opts.PartBuffer = 256
	}

	b := &Bridge{
		transport: opts.Transport,
		logger:    opts.Logger,
		newID:     newID,
		pending:   make(map[string]*pendingRequest),
		parts:     make(chan engine.PartArrived, opts.PartBuffer),
		partsDone: make(chan struct{}),
	}
	if opts.MaxInflight > 0 {
		b.sem = semaphore.NewWeighted(opts.MaxInflight)
	}
	return b, nil
}

// Start 启动 part worker 并订阅引擎的入站消息，ctx 结束后两者都会退出。
func (b *Bridge) Start(ctx context.Context) error {
	b.startOnce.Do(func() { go b.runParts(ctx) })
	return b.transport.Subscribe(ctx, b.HandleInbound)
}

func (b *Bridge) runParts(ctx context.Context) {
	defer close(b.partsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case part := <-b.parts:
			b.mu.Lock()
			onPart := b.onPart
			b.mu.Unlock()
			if onPart == nil {
				b.logger.WithFields(logrus.Fields{
					"action":     "engine_part",
					"record_key": part.RecordKey,
					"part_type":  part.PartType,
				}).Warn("no part handler registered, part dropped")
				continue
			}
			onPart(part)
		}
	}
}

// OnPart 注册 PartArrived 消息的处理函数（通常是聚合器）。
func (b *Bridge) OnPart(fn func(engine.PartArrived)) {
	b.mu.Lock()
	b.onPart = fn
	b.mu.Unlock()
}

// Dispatch 登记 pending 请求并把 RequestDispatch 发给引擎。发送受 ctx 约束，
// 无截止时间的 ctx 在引擎不读取时会一直阻塞，需要有界等待时使用 Call。
// 返回的 ticket 必须恰好交给 Await 或 Cancel 一次，否则 pending 记录与
// 并发槽位要等到引擎回应才会释放。
func (b *Bridge) Dispatch(ctx context.Context, key, payload string) (*Ticket, error) {
	release := func() {}
	if b.sem != nil {
		if !b.sem.TryAcquire(1) {
			return nil, ErrOverloaded
		}
		var once sync.Once
		release = func() { once.Do(func() { b.sem.Release(1) }) }
	}

	ticket := &Ticket{
		ID:           b.newID(),
		Key:          key,
		DispatchedAt: time.Now(),
		resp:         make(chan engine.Response, 1),
	}

	b.mu.Lock()
	if _, exists := b.pending[ticket.ID]; exists {
		b.mu.Unlock()
		release()
		return nil, fmt.Errorf("correlation id %s already pending", ticket.ID)
	}
	b.pending[ticket.ID] = &pendingRequest{
		key:     key,
		resp:    ticket.resp,
		release: release,
	}
	b.mu.Unlock()

	msg := engine.RequestDispatch{ID: ticket.ID, Key: key, Payload: payload}
	if err := b.transport.Send(ctx, msg); err != nil {
		b.settle(ticket.ID)
		return nil, fmt.Errorf("dispatch %q: %w", key, err)
	}

	b.logger.WithFields(logging.RequestFields(key, ticket.ID, false)).
		WithField("action", "dispatch").
		Debug("engine request dispatched")
	return ticket, nil
}

// Await 等待 ticket 对应的响应，最多 maxWait。两种终态（成功/超时）都会
// 清理 pending 记录；调用方 ctx 结束时同样清理并返回 ctx.Err()。
func (b *Bridge) Await(ctx context.Context, ticket *Ticket, maxWait time.Duration) (Response, error) {
	if ticket == nil || ticket.resp == nil || !ticket.awaited.CompareAndSwap(false, true) {
		return Response{}, ErrUnknownTicket
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case resp := <-ticket.resp:
		return b.fulfilled(ticket, resp), nil
	case <-timer.C:
	case <-ctx.Done():
	}

	b.settle(ticket.ID)
	// 响应可能恰好在计时器触发时送达。
	select {
	case resp := <-ticket.resp:
		return b.fulfilled(ticket, resp), nil
	default:
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	b.logger.WithFields(logging.RequestFields(ticket.Key, ticket.ID, false)).
		WithFields(logrus.Fields{"action": "await", "max_wait_ms": maxWait.Milliseconds()}).
		Warn("engine response timeout")
	return Response{}, ErrTimeout
}

// Cancel 放弃一个不再等待的 ticket，释放 pending 记录与并发槽位。
// 已被 Await 或 Cancel 消费过的 ticket 直接忽略。
func (b *Bridge) Cancel(ticket *Ticket) {
	if ticket == nil || !ticket.awaited.CompareAndSwap(false, true) {
		return
	}
	b.settle(ticket.ID)
}

// Call 组合 Dispatch 与 Await，maxWait 同时覆盖发送与等待响应两个阶段；
// 引擎在期限内未接收请求同样返回 ErrTimeout。
func (b *Bridge) Call(ctx context.Context, key, payload string, maxWait time.Duration) (Response, error) {
	deadline := time.Now().Add(maxWait)
	sendCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticket, err := b.Dispatch(sendCtx, key, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			b.logger.WithFields(logging.RequestFields(key, "", false)).
				WithFields(logrus.Fields{"action": "dispatch", "max_wait_ms": maxWait.Milliseconds()}).
				Warn("engine did not accept request in time")
			return Response{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Response{}, err
	}
	return b.Await(ctx, ticket, time.Until(deadline))
}

// HandleInbound 是常驻的订阅处理函数：响应按关联 ID 投递给等待者，
// 找不到等待者的响应（已超时或未知）记录告警后丢弃。
func (b *Bridge) HandleInbound(msg engine.Inbound) {
	switch m := msg.(type) {
	case engine.Response:
		b.deliver(m)
	case engine.PartArrived:
		b.enqueuePart(m)
	default:
		b.logger.WithField("action", "engine_inbound").Warnf("unexpected inbound message %T", msg)
	}
}

// enqueuePart 把 part 交给 worker；队列满时记录告警并阻塞等待，
// worker 退出后丢弃。
func (b *Bridge) enqueuePart(part engine.PartArrived) {
	select {
	case b.parts <- part:
		return
	default:
	}

	entry := b.logger.WithFields(logrus.Fields{
		"action":     "engine_part",
		"record_key": part.RecordKey,
		"part_type":  part.PartType,
	})
	entry.Warn("part queue full, waiting for handler")
	select {
	case b.parts <- part:
	case <-b.partsDone:
		entry.Warn("part worker stopped, part dropped")
	}
}

// Inflight 返回当前等待中的请求数量。
func (b *Bridge) Inflight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) deliver(resp engine.Response) {
	b.mu.Lock()
	p, ok := b.pending[resp.CorrelationID]
	if ok {
		delete(b.pending, resp.CorrelationID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.WithFields(logrus.Fields{
			"action":         "engine_response",
			"correlation_id": resp.CorrelationID,
		}).Warn("discard response without pending request")
		return
	}
	p.release()
	// 通道容量为 1 且 pending 已删除，这里不会阻塞。
	p.resp <- resp
}

func (b *Bridge) settle(id string) {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if ok {
		p.release()
	}
}

func (b *Bridge) fulfilled(ticket *Ticket, resp engine.Response) Response {
	return Response{
		Key:           ticket.Key,
		CorrelationID: resp.CorrelationID,
		Body:          resp.Body,
		Elapsed:       time.Since(ticket.DispatchedAt),
	}
}
