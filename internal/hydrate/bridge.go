// Package hydrate moves cache contents between a prerendering process and the
// runtime that picks the page up afterwards. Serialize encodes every cached
// entry into a versioned JSON envelope, Initialize merges such an envelope back
// into a cache.State, and ScriptTag/Extract embed and recover the envelope in
// an HTML document.
package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/any-hub/fetchcache/internal/cache"
)

// EnvelopeVersion 是当前序列化格式版本，Initialize 拒绝其它版本。
const EnvelopeVersion = 1

// payloadSource 用作 DecodeError.Source，区分响应体解码失败。
const payloadSource = "serialized cache"

// envelope 是跨进程传输的缓存快照。
type envelope struct {
	Version int                        `json:"version"`
	Entries map[string]json.RawMessage `json:"entries"`
}

// Bridge 负责 Serialize / Initialize / Wipe 三个操作，持有共享状态的引用。
type Bridge struct {
	state *cache.State
}

// NewBridge 以共享状态构建 Bridge。
func NewBridge(state *cache.State) *Bridge {
	return &Bridge{state: state}
}

// Serialize 将全部缓存条目编码为字符串，满足 Initialize(Serialize()) 的往返一致性。
func (b *Bridge) Serialize() (string, error) {
	snapshot := b.state.Store().Snapshot()
	out := envelope{
		Version: EnvelopeVersion,
		Entries: make(map[string]json.RawMessage, len(snapshot)),
	}
	for id, value := range snapshot {
		raw, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", id, err)
		}
		out.Entries[id] = raw
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(data), nil
}

// Initialize 解析 payload 并把条目并入缓存。整个负载先完整解析，任一条目
// 非法都会返回 *cache.DecodeError 且不修改缓存；已存在的标识符保留原值。
// 空字符串视为没有可传递的缓存。
func (b *Bridge) Initialize(payload string) error {
	_, err := b.initialize(payload)
	return err
}

// InitializeCount 与 Initialize 相同，额外返回实际新增的条目数量。
func (b *Bridge) InitializeCount(payload string) (int, error) {
	return b.initialize(payload)
}

func (b *Bridge) initialize(payload string) (int, error) {
	if len(bytes.TrimSpace([]byte(payload))) == 0 {
		return 0, nil
	}

	entries, err := Decode(payload)
	if err != nil {
		return 0, err
	}
	return b.state.Merge(entries), nil
}

// Wipe 清空缓存与在途请求表，仅用于测试之间的隔离。
func (b *Bridge) Wipe() {
	b.state.Wipe()
}

// Decode 解析序列化负载，返回标识符到解码值的映射，不触碰任何状态。
func Decode(payload string) (map[string]cache.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()

	var in envelope
	if err := dec.Decode(&in); err != nil {
		return nil, &cache.DecodeError{Source: payloadSource, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &cache.DecodeError{Source: payloadSource, Err: errors.New("unexpected data after envelope")}
	}
	if in.Version != EnvelopeVersion {
		return nil, &cache.DecodeError{Source: payloadSource, Err: fmt.Errorf("unsupported version %d", in.Version)}
	}
	if in.Entries == nil {
		return nil, &cache.DecodeError{Source: payloadSource, Err: errors.New("missing entries")}
	}

	entries := make(map[string]cache.Value, len(in.Entries))
	for id, raw := range in.Entries {
		if id == "" {
			return nil, &cache.DecodeError{Source: payloadSource, Err: cache.ErrEmptyIdentifier}
		}
		value, err := decodeEntry(raw)
		if err != nil {
			return nil, &cache.DecodeError{Source: id, Err: err}
		}
		entries[id] = value
	}
	return entries, nil
}

func decodeEntry(raw json.RawMessage) (cache.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value cache.Value
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
