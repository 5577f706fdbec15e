package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：日志、上游访问与预加载并发度。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	BaseURL            string   `mapstructure:"BaseURL"`
	Username           string   `mapstructure:"Username"`
	Password           string   `mapstructure:"Password"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	MaxBodySize        int64    `mapstructure:"MaxBodySize"`
	PreloadConcurrency int      `mapstructure:"PreloadConcurrency"`
	AllowWipe          bool     `mapstructure:"AllowWipe"`
	HydratePath        string   `mapstructure:"HydratePath"`
}

// PageConfig 声明一个预渲染页面及其在渲染前需要预加载的资源标识符。
type PageConfig struct {
	Name    string   `mapstructure:"Name"`
	Path    string   `mapstructure:"Path"`
	Preload []string `mapstructure:"Preload"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Pages  []PageConfig `mapstructure:"Page"`
}

// HasCredentials 表示是否配置了完整的上游凭证。
func (g GlobalConfig) HasCredentials() bool {
	return g.Username != "" && g.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (g GlobalConfig) AuthMode() string {
	if g.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// PreloadIdentifiers 返回全部页面声明的标识符，按首次出现顺序去重。
func (c *Config) PreloadIdentifiers() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, page := range c.Pages {
		for _, id := range page.Preload {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// PageSummaries 返回 name:path 形式的页面摘要，例如 people:/people。
func PageSummaries(pages []PageConfig) []string {
	if len(pages) == 0 {
		return nil
	}
	result := make([]string, len(pages))
	for i, page := range pages {
		result[i] = fmt.Sprintf("%s:%s", page.Name, page.Path)
	}
	return result
}
