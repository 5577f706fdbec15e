package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/any-hub/fetchcache/internal/config"
)

// PageRoute 将页面配置与规范化后的路径聚合在一起，供路由层直接复用。
type PageRoute struct {
	// Config 是用户在 config.toml 中声明的页面字段副本。
	Config config.PageConfig
	// Path 是规范化后的请求路径，不带结尾斜杠（根路径除外）。
	Path string
}

// PageRegistry 提供请求路径到 PageRoute 的查询能力。
type PageRegistry struct {
	routes   map[string]*PageRoute
	ordered  []*PageRoute
	declared map[string]struct{}
}

// NewPageRegistry 根据配置构建路径映射。调用方应在启动阶段创建一次并复用。
func NewPageRegistry(cfg *config.Config) (*PageRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &PageRegistry{
		routes:   make(map[string]*PageRoute, len(cfg.Pages)),
		declared: make(map[string]struct{}),
	}

	for _, page := range cfg.Pages {
		normalized := normalizePath(page.Path)
		if normalized == "" {
			return nil, fmt.Errorf("invalid path for page %s", page.Name)
		}
		if _, exists := registry.routes[normalized]; exists {
			return nil, fmt.Errorf("duplicate path mapping detected for %s", normalized)
		}

		route := &PageRoute{
			Config: page,
			Path:   normalized,
		}
		registry.routes[normalized] = route
		registry.ordered = append(registry.ordered, route)
		for _, id := range page.Preload {
			registry.declared[id] = struct{}{}
		}
	}

	return registry, nil
}

// Lookup 根据请求路径查找 PageRoute，忽略结尾斜杠。
func (r *PageRegistry) Lookup(path string) (*PageRoute, bool) {
	if r == nil {
		return nil, false
	}
	normalized := normalizePath(path)
	if normalized == "" {
		return nil, false
	}
	route, ok := r.routes[normalized]
	return route, ok
}

// Declares 判断标识符是否出现在任一页面的 Preload 列表中。
func (r *PageRegistry) Declares(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.declared[id]
	return ok
}

// Names 按配置顺序返回页面名称，用于启动日志。
func (r *PageRegistry) Names() []string {
	list := r.List()
	names := make([]string, 0, len(list))
	for _, route := range list {
		names = append(names, route.Config.Name)
	}
	return names
}

// List 返回当前注册的 PageRoute 列表（按配置定义的顺序）。
func (r *PageRegistry) List() []PageRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]PageRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func normalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return ""
	}
	if raw == "/" {
		return raw
	}
	trimmed := strings.TrimRight(raw, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}
