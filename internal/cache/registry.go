package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// Call 表示一次尚未结束（或刚结束）的上游请求，所有合并进来的调用方共享同一结果。
type Call struct {
	done   chan struct{}
	value  Value
	err    error
	joined atomic.Int32
}

// NewCall 创建一个未完成的 Call。
func NewCall() *Call {
	return &Call{done: make(chan struct{})}
}

// Wait 阻塞直到 Call 结束或 ctx 结束。ctx 结束只影响当前等待者，请求本身继续执行。
func (c *Call) Wait(ctx context.Context) (Value, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled 判断 Call 是否已结束。
func (c *Call) Settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Joined 返回被合并到该 Call 的调用方数量（不含发起者）。
func (c *Call) Joined() int {
	return int(c.joined.Load())
}

func (c *Call) join() {
	c.joined.Add(1)
}

// complete 只能调用一次。
func (c *Call) complete(value Value, err error) {
	c.value = value
	c.err = err
	close(c.done)
}

// Registry 记录标识符到在途 Call 的映射，仅供 State 与抓取协调器内部使用。
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// NewRegistry 创建空的在途请求表。
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

// Register 记录 id 对应的在途请求，覆盖同名旧条目。
func (r *Registry) Register(id string, call *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = call
}

// Lookup 返回 id 对应的在途请求。
func (r *Registry) Lookup(id string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[id]
	return call, ok
}

// Unregister 仅当当前登记的正是 call 时才删除，避免旧请求误删 Wipe 之后的新请求。
func (r *Registry) Unregister(id string, call *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.calls[id]; ok && current == call {
		delete(r.calls, id)
	}
}

// Clear 清空全部登记，已在途的 Call 仍会正常结束。
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]*Call)
}

// Len 返回在途请求数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
