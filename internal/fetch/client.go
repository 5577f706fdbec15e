package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/any-hub/fetchcache/internal/cache"
	"github.com/any-hub/fetchcache/internal/config"
	"github.com/any-hub/fetchcache/internal/version"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// ErrBodyTooLarge 表示上游响应体超过 MaxBodySize。
var ErrBodyTooLarge = errors.New("response body too large")

// NewUpstreamClient 返回共享 http.Client，用于所有上游请求。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// Fetcher 执行一次上游请求并返回原始响应体。实现需将非 2xx 状态与传输错误
// 统一报告为 *cache.FetchError。
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string) ([]byte, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// HTTPFetcher 通过 GET 请求获取标识符对应的资源；相对标识符基于 BaseURL 解析。
type HTTPFetcher struct {
	client   *http.Client
	baseURL  *url.URL
	username string
	password string
	maxBody  int64
}

// NewHTTPFetcher 根据全局配置构建 HTTPFetcher。
func NewHTTPFetcher(client *http.Client, global config.GlobalConfig) (*HTTPFetcher, error) {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:   client,
		username: global.Username,
		password: global.Password,
		maxBody:  global.MaxBodySize,
	}
	if global.BaseURL != "" {
		parsed, err := url.Parse(global.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		f.baseURL = parsed
	}
	return f, nil
}

// ResolveURL 将标识符转换为绝对地址。
func (f *HTTPFetcher) ResolveURL(id string) (string, error) {
	if strings.HasPrefix(id, "//") {
		return "", fmt.Errorf("protocol-relative identifier %s is not allowed", id)
	}
	if strings.HasPrefix(id, "/") {
		if f.baseURL == nil {
			return "", fmt.Errorf("relative identifier %s requires a base url", id)
		}
		ref, err := url.Parse(id)
		if err != nil {
			return "", err
		}
		return f.baseURL.ResolveReference(ref).String(), nil
	}
	parsed, err := url.Parse(id)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

// Fetch 发起 GET 请求。状态码不在 2xx 或读取失败时返回 *cache.FetchError。
func (f *HTTPFetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	target, err := f.ResolveURL(id)
	if err != nil {
		return nil, &cache.FetchError{ID: id, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &cache.FetchError{ID: id, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if f.username != "" && f.password != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &cache.FetchError{ID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &cache.FetchError{
			ID:         id,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream responded %s", resp.Status),
		}
	}

	limit := f.maxBody
	if limit <= 0 {
		limit = 8 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &cache.FetchError{ID: id, Err: err}
	}
	if int64(len(body)) > limit {
		return nil, &cache.FetchError{ID: id, Err: ErrBodyTooLarge}
	}
	return body, nil
}
