// Package consumer adapts the fetch coordinator to the loading/data/error
// shape a rendering layer consumes. Errors are carried inside State and never
// returned or panicked across the rendering boundary.
package consumer

import (
	"context"
	"encoding/json"

	"github.com/any-hub/fetchcache/internal/cache"
)

// Resolver is satisfied by *fetch.Coordinator.
type Resolver interface {
	Resolve(ctx context.Context, id string) (cache.Value, error)
	Peek(id string) (cache.Value, bool)
}

// State 描述某个标识符在消费方眼中的状态。
type State struct {
	IsLoading bool
	Data      cache.Value
	Err       error
}

// Settled reports whether the state is terminal.
func (s State) Settled() bool {
	return !s.IsLoading
}

// MarshalJSON 输出 isLoading/data/error 三个字段，error 以字符串形式给出。
func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		IsLoading bool        `json:"isLoading"`
		Data      cache.Value `json:"data"`
		Error     *string     `json:"error"`
	}{
		IsLoading: s.IsLoading,
		Data:      s.Data,
	}
	if s.Err != nil {
		msg := s.Err.Error()
		out.Error = &msg
	}
	return json.Marshal(out)
}

// Watch 返回一个状态流：已缓存时只发送一次终态；否则先发送 loading，再发送一次终态。
// 空标识符发送空闲状态。channel 在最后一个状态之后关闭。
func Watch(ctx context.Context, r Resolver, id string) <-chan State {
	ch := make(chan State, 2)

	if id == "" {
		ch <- State{}
		close(ch)
		return ch
	}
	if v, ok := r.Peek(id); ok {
		ch <- State{Data: v}
		close(ch)
		return ch
	}

	ch <- State{IsLoading: true}
	go func() {
		defer close(ch)
		v, err := r.Resolve(ctx, id)
		if err != nil {
			ch <- State{Err: err}
			return
		}
		ch <- State{Data: v}
	}()
	return ch
}

// Snapshot 阻塞直到终态并返回。
func Snapshot(ctx context.Context, r Resolver, id string) State {
	var last State
	for s := range Watch(ctx, r, id) {
		last = s
	}
	return last
}
