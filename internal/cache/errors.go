package cache

import (
	"errors"
	"fmt"
)

// ErrEmptyIdentifier 表示调用方传入了空标识符。
var ErrEmptyIdentifier = errors.New("empty identifier")

// FetchError 表示上游返回非 2xx 状态或传输层失败（超时、连接错误）。
type FetchError struct {
	ID         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.ID, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DecodeError 表示响应体或序列化缓存无法解析为预期结构。
// Source 为标识符，或 hydration 负载的描述。
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
