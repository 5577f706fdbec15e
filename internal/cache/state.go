package cache

import "sync"

// Ticket 是 Acquire 的判定结果，三种情形互斥：命中缓存、加入在途请求、成为发起者。
type Ticket struct {
	// Value 仅在 Cached 为 true 时有效。
	Value  Value
	Cached bool
	// Call 在未命中时非空；Leader 为 true 表示调用方负责真正发起请求并调用 Settle。
	Call   *Call
	Leader bool

	generation uint64
}

// State 聚合进程级 Store 与 Registry，启动时为空，只能通过 Wipe 整体重置。
type State struct {
	mu         sync.Mutex
	store      Store
	inflight   *Registry
	generation uint64
}

// NewState 以给定 Store 构建状态；store 为空时使用内存实现。
func NewState(store Store) *State {
	if store == nil {
		store = NewMemoryStore()
	}
	return &State{
		store:    store,
		inflight: NewRegistry(),
	}
}

// Store 返回底层缓存。
func (s *State) Store() Store {
	return s.store
}

// Inflight 返回在途请求表。
func (s *State) Inflight() *Registry {
	return s.inflight
}

// Acquire 在同一临界区内完成“缓存 → 在途 → 新建并登记”的判定，
// 保证同一标识符在任意时刻最多只有一个发起者。
func (s *State) Acquire(id string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.store.Get(id); ok {
		return Ticket{Value: v, Cached: true}
	}
	if call, ok := s.inflight.Lookup(id); ok {
		call.join()
		return Ticket{Call: call}
	}

	call := NewCall()
	s.inflight.Register(id, call)
	return Ticket{Call: call, Leader: true, generation: s.generation}
}

// Settle 结束发起者持有的 Call：成功时先写缓存再注销，失败时只注销，
// 之后唤醒全部等待者。Wipe 之后才结束的旧请求不会写入缓存。
func (s *State) Settle(id string, ticket Ticket, value Value, err error) {
	s.SettleNotify(id, ticket, value, err, nil)
}

// SettleNotify 与 Settle 相同，notify 在缓存与在途表更新之后、唤醒等待者之前调用。
func (s *State) SettleNotify(id string, ticket Ticket, value Value, err error, notify func(Value, error)) {
	if !ticket.Leader || ticket.Call == nil {
		return
	}

	s.mu.Lock()
	if err == nil && ticket.generation == s.generation {
		if !s.store.Set(id, value) {
			// 已由 hydration 写入，保持先到者
			value, _ = s.store.Get(id)
		}
	}
	s.inflight.Unregister(id, ticket.Call)
	s.mu.Unlock()

	if notify != nil {
		notify(value, err)
	}
	ticket.Call.complete(value, err)
}

// Merge 将 entries 并入缓存，已存在的标识符保持原值，返回实际写入数量。
func (s *State) Merge(entries map[string]Value) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for id, v := range entries {
		if s.store.Set(id, v) {
			added++
		}
	}
	return added
}

// Wipe 清空缓存与在途请求表，仅用于测试隔离。
func (s *State) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.store.Clear()
	s.inflight.Clear()
}
