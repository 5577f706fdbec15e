package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// reservedPrefix 为诊断接口保留，页面不可占用。
const reservedPrefix = "/-/"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxBodySize <= 0 {
		return newFieldError("Global.MaxBodySize", "必须大于 0")
	}
	if g.PreloadConcurrency <= 0 {
		return newFieldError("Global.PreloadConcurrency", "必须大于 0")
	}
	if (g.Username == "") != (g.Password == "") {
		return newFieldError("Global.Username/Password", "必须同时提供或同时留空")
	}
	if g.BaseURL != "" {
		if err := validateUpstream(g.BaseURL); err != nil {
			return fmt.Errorf("Global.BaseURL: %w", err)
		}
	}

	seenNames := map[string]struct{}{}
	seenPaths := map[string]struct{}{}
	for i := range c.Pages {
		page := &c.Pages[i]
		if page.Name == "" {
			return newFieldError("Page[].Name", "不能为空")
		}
		if _, exists := seenNames[page.Name]; exists {
			return newFieldError(pageField(page.Name, "Name"), "重复")
		}
		seenNames[page.Name] = struct{}{}

		if err := validatePagePath(page.Path); err != nil {
			return fmt.Errorf("%s: %w", pageField(page.Name, "Path"), err)
		}
		if _, exists := seenPaths[page.Path]; exists {
			return newFieldError(pageField(page.Name, "Path"), "与其它页面重复")
		}
		seenPaths[page.Path] = struct{}{}

		for _, id := range page.Preload {
			if err := validateIdentifier(id, g.BaseURL); err != nil {
				return fmt.Errorf("%s: %w", pageField(page.Name, "Preload"), err)
			}
		}
	}

	return nil
}

func validatePagePath(path string) error {
	if path == "" {
		return errors.New("Path 不能为空")
	}
	if !strings.HasPrefix(path, "/") {
		return errors.New("Path 必须以 / 开头")
	}
	if strings.HasPrefix(path, reservedPrefix) {
		return fmt.Errorf("Path 不能使用保留前缀 %s", reservedPrefix)
	}
	if strings.ContainsAny(path, " ?#") {
		return errors.New("Path 不允许包含空格、查询串或片段")
	}
	return nil
}

// validateIdentifier 校验预加载标识符：绝对地址必须是 http/https，相对路径依赖 BaseURL。
func validateIdentifier(id, baseURL string) error {
	if id == "" {
		return errors.New("标识符不能为空")
	}
	if strings.HasPrefix(id, "//") {
		return fmt.Errorf("不支持协议相对标识符: %s", id)
	}
	if strings.HasPrefix(id, "/") {
		if baseURL == "" {
			return fmt.Errorf("相对标识符 %s 需要配置 Global.BaseURL", id)
		}
		return nil
	}
	return validateUpstream(id)
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
