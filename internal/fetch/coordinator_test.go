package fetch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/fetchcache/internal/cache"
	"github.com/any-hub/fetchcache/internal/config"
	"github.com/any-hub/fetchcache/internal/fetch"
)

var people = []any{map[string]any{"id": json.Number("1"), "name": "Ada"}}

// gatedUpstream 在 release 关闭前阻塞所有请求，便于构造并发场景。
type gatedUpstream struct {
	server  *httptest.Server
	calls   atomic.Int32
	release chan struct{}
}

func newGatedUpstream(t *testing.T, status int, body string) *gatedUpstream {
	t.Helper()
	up := &gatedUpstream{release: make(chan struct{})}
	up.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.calls.Add(1)
		<-up.release
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(up.server.Close)
	return up
}

func newCoordinator(t *testing.T, baseURL string, opts ...fetch.Option) *fetch.Coordinator {
	t.Helper()
	fetcher, err := fetch.NewHTTPFetcher(http.DefaultClient, config.GlobalConfig{
		BaseURL:     baseURL,
		MaxBodySize: 1 << 20,
	})
	require.NoError(t, err)
	return fetch.NewCoordinator(cache.NewState(nil), fetcher, opts...)
}

// resolveConcurrently 启动 n 个调用方，待全部加入同一个在途请求后放行上游。
func resolveConcurrently(t *testing.T, coord *fetch.Coordinator, up *gatedUpstream, id string, n int) ([]cache.Value, []error) {
	t.Helper()
	values := make([]cache.Value, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = coord.Resolve(context.Background(), id)
		}(i)
	}

	require.Eventually(t, func() bool {
		call, ok := coord.State().Inflight().Lookup(id)
		return ok && call.Joined() == n-1
	}, 2*time.Second, time.Millisecond)

	close(up.release)
	wg.Wait()
	return values, errs
}

func TestResolveCoalescesConcurrentCallers(t *testing.T) {
	up := newGatedUpstream(t, http.StatusOK, `[{"id":1,"name":"Ada"}]`)
	coord := newCoordinator(t, up.server.URL)

	values, errs := resolveConcurrently(t, coord, up, "/api/people", 3)

	assert.EqualValues(t, 1, up.calls.Load())
	for i := range values {
		require.NoError(t, errs[i])
		assert.Equal(t, people, values[i])
	}

	cached, ok := coord.State().Store().Get("/api/people")
	require.True(t, ok)
	assert.Equal(t, people, cached)
	assert.Zero(t, coord.State().Inflight().Len())
}

func TestResolveServerErrorReachesEveryCaller(t *testing.T) {
	up := newGatedUpstream(t, http.StatusInternalServerError, `{"error":"boom"}`)
	coord := newCoordinator(t, up.server.URL)

	_, errs := resolveConcurrently(t, coord, up, "/api/people", 3)

	assert.EqualValues(t, 1, up.calls.Load())
	var first *cache.FetchError
	for _, err := range errs {
		var fe *cache.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
		if first == nil {
			first = fe
		}
		assert.Same(t, first, fe, "all callers observe the same failure")
	}
	assert.False(t, coord.State().Store().Has("/api/people"))
	_, inflight := coord.State().Inflight().Lookup("/api/people")
	assert.False(t, inflight)
}

func TestResolveReturnsCachedValueWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	coord := fetch.NewCoordinator(cache.NewState(nil), fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		calls.Add(1)
		return []byte(`{"ok":true}`), nil
	}))

	first, err := coord.Resolve(context.Background(), "/a")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	second, err := coord.Resolve(canceled, "/a")
	require.NoError(t, err, "cached values are returned without waiting")

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	coord := fetch.NewCoordinator(cache.NewState(nil), fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return []byte(`"ok"`), nil
	}))

	_, err := coord.Resolve(context.Background(), "/a")
	var fe *cache.FetchError
	require.ErrorAs(t, err, &fe, "plain fetcher errors are wrapped as FetchError")

	v, err := coord.Resolve(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 2, calls.Load())
}

func TestResolveReportsDecodeError(t *testing.T) {
	for name, body := range map[string]string{
		"html":     "<html>nope</html>",
		"empty":    "",
		"trailing": `{"a":1} {"b":2}`,
	} {
		t.Run(name, func(t *testing.T) {
			coord := fetch.NewCoordinator(cache.NewState(nil), fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
				return []byte(body), nil
			}))

			_, err := coord.Resolve(context.Background(), "/a")
			var de *cache.DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "/a", de.Source)
			assert.False(t, coord.State().Store().Has("/a"))
			assert.Zero(t, coord.State().Inflight().Len())
		})
	}
}

func TestResolveKeepsFetchingAfterCallerGivesUp(t *testing.T) {
	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	coord := fetch.NewCoordinator(cache.NewState(nil), fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		<-release
		if err := ctx.Err(); err != nil {
			fetchCtxErr.Store(err)
		}
		return []byte(`42`), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := coord.Resolve(ctx, "/answer")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return coord.State().Inflight().Len() == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return coord.State().Store().Has("/answer")
	}, time.Second, time.Millisecond)
	assert.Nil(t, fetchCtxErr.Load(), "upstream request must not inherit caller cancellation")

	v, ok := coord.Peek("/answer")
	require.True(t, ok)
	assert.Equal(t, json.Number("42"), v)
}

func TestResolveRecoversFetcherPanic(t *testing.T) {
	coord := fetch.NewCoordinator(cache.NewState(nil), fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		panic("kaboom")
	}))

	_, err := coord.Resolve(context.Background(), "/a")
	var fe *cache.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "kaboom")
	assert.Zero(t, coord.State().Inflight().Len())
}

func TestResolveRejectsEmptyIdentifier(t *testing.T) {
	coord := fetch.NewCoordinator(nil, fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		t.Fatal("fetcher must not be called")
		return nil, nil
	}))

	_, err := coord.Resolve(context.Background(), "")
	require.ErrorIs(t, err, cache.ErrEmptyIdentifier)
}

func TestObserverSeesSettledState(t *testing.T) {
	state := cache.NewState(nil)
	var cached bool
	inflight := -1
	observer := fetch.ObserverFunc(func(e fetch.EventData) {
		if e.Event == fetch.EventSettle {
			cached = state.Store().Has(e.ID)
			inflight = state.Inflight().Len()
		}
	})

	coord := fetch.NewCoordinator(state, fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	}), fetch.WithObserver(observer))

	_, err := coord.Resolve(context.Background(), "/a")
	require.NoError(t, err)

	assert.True(t, cached, "settle event should observe the cached value")
	assert.Zero(t, inflight, "settle event should observe an empty in-flight table")
}

func TestObserverReceivesEvents(t *testing.T) {
	var mu sync.Mutex
	var events []fetch.Event
	observer := fetch.ObserverFunc(func(e fetch.EventData) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Event)
	})

	coord := fetch.NewCoordinator(cache.NewState(nil), fetch.FetcherFunc(func(ctx context.Context, id string) ([]byte, error) {
		return []byte(`1`), nil
	}), fetch.WithObserver(observer))

	_, err := coord.Resolve(context.Background(), "/a")
	require.NoError(t, err)
	_, err = coord.Resolve(context.Background(), "/a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []fetch.Event{fetch.EventMiss, fetch.EventSettle, fetch.EventHit}, events)
}
