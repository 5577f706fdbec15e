package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/fetchcache/internal/cache"
	"github.com/any-hub/fetchcache/internal/logging"
)

// Coordinator 负责 “命中缓存 → 加入在途请求 → 发起新请求” 的全流程。
// 同一标识符在冷启动期间只会触发一次 Fetcher 调用。
type Coordinator struct {
	state    *cache.State
	fetcher  Fetcher
	logger   *logrus.Logger
	observer Observer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver attaches an Observer that receives hit, miss, join and settle
// events.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithLogger 注入结构化日志；未注入时丢弃日志。
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator 以共享状态与 Fetcher 构建协调器。
func NewCoordinator(state *cache.State, fetcher Fetcher, opts ...Option) *Coordinator {
	if state == nil {
		state = cache.NewState(nil)
	}
	c := &Coordinator{
		state:   state,
		fetcher: fetcher,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State 返回协调器使用的共享状态。
func (c *Coordinator) State() *cache.State {
	return c.state
}

// Peek 返回已缓存的值，不会发起请求或阻塞。
func (c *Coordinator) Peek(id string) (cache.Value, bool) {
	return c.state.Store().Get(id)
}

// Resolve 返回标识符对应的解码结果。ctx 只约束当前调用方的等待时间：
// 一旦请求发出，就会在与调用方取消无关的上下文中运行到结束。
func (c *Coordinator) Resolve(ctx context.Context, id string) (cache.Value, error) {
	if id == "" {
		return nil, &cache.FetchError{ID: id, Err: cache.ErrEmptyIdentifier}
	}

	ticket := c.state.Acquire(id)
	switch {
	case ticket.Cached:
		c.emit(EventHit, id, nil)
		c.logger.WithFields(logging.ResolveFields(id, true, false)).Debug("cache_hit")
		return ticket.Value, nil
	case !ticket.Leader:
		c.emit(EventJoin, id, nil)
		c.logger.WithFields(logging.ResolveFields(id, false, true)).Debug("inflight_join")
	default:
		c.emit(EventMiss, id, nil)
		go c.run(context.WithoutCancel(ctx), id, ticket)
	}

	return ticket.Call.Wait(ctx)
}

// run 执行真正的上游请求并结束 ticket，对应 Call 的唯一完成者。
func (c *Coordinator) run(ctx context.Context, id string, ticket cache.Ticket) {
	started := time.Now()
	var (
		value cache.Value
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			err = &cache.FetchError{ID: id, Err: fmt.Errorf("fetcher panic: %v", r)}
			value = nil
		}
		c.state.SettleNotify(id, ticket, value, err, func(cache.Value, error) {
			c.emit(EventSettle, id, err)
		})
		c.logSettle(id, ticket, started, err)
	}()

	body, fetchErr := c.fetcher.Fetch(ctx, id)
	if fetchErr != nil {
		var fe *cache.FetchError
		if !errors.As(fetchErr, &fe) {
			fetchErr = &cache.FetchError{ID: id, Err: fetchErr}
		}
		err = fetchErr
		return
	}

	value, err = decodeValue(id, body)
}

func (c *Coordinator) logSettle(id string, ticket cache.Ticket, started time.Time, err error) {
	fields := logging.ResolveFields(id, false, false)
	fields["waiters"] = ticket.Call.Joined() + 1
	fields["duration_ms"] = time.Since(started).Milliseconds()

	var fe *cache.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		fields["status"] = fe.StatusCode
	}

	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("fetch_failed")
		return
	}
	c.logger.WithFields(fields).Info("fetch_completed")
}

func (c *Coordinator) emit(event Event, id string, err error) {
	if c.observer == nil {
		return
	}
	c.observer.On(EventData{Event: event, ID: id, Err: err})
}

// decodeValue 将响应体解码为任意 JSON 值；数字保留为 json.Number 以便无损序列化。
func decodeValue(id string, body []byte) (cache.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value cache.Value
	if err := dec.Decode(&value); err != nil {
		return nil, &cache.DecodeError{Source: id, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &cache.DecodeError{Source: id, Err: errors.New("unexpected data after JSON value")}
	}
	return value, nil
}
