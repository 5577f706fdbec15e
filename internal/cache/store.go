package cache

import "sync"

// Value 是缓存中的不透明负载，即上游 JSON 解码后的结果。
type Value = any

// Store 负责管理标识符到解码结果的映射。条目一旦写入即不可变，
// 只能通过 Clear 整体清空。
type Store interface {
	// Get 返回标识符对应的值；不存在时第二个返回值为 false。
	Get(id string) (Value, bool)

	// Set 写入新条目并返回 true。若标识符已存在则保持原值并返回 false。
	Set(id string, value Value) bool

	// Has 判断标识符是否已缓存。
	Has(id string) bool

	// Clear 删除全部条目。
	Clear()

	// Snapshot 返回当前条目的浅拷贝，供序列化使用。
	Snapshot() map[string]Value

	// Len 返回条目数量。
	Len() int
}

// NewMemoryStore 构建进程内缓存，启动时为空。
func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[string]Value),
	}
}

// memoryStore 以读写锁保护 map，读多写少。
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Value
}

func (s *memoryStore) Get(id string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[id]
	return v, ok
}

func (s *memoryStore) Set(id string, value Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return false
	}
	s.entries[id] = value
	return true
}

func (s *memoryStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

func (s *memoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Value)
}

func (s *memoryStore) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.entries))
	for id, v := range s.entries {
		out[id] = v
	}
	return out
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
