package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("UpstreamTimeout 应解析为 10s，得到 %s", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Global.MaxBodySize != defaultMaxBodySize {
		t.Fatalf("MaxBodySize 应该自动填充默认值")
	}
	if cfg.Global.PreloadConcurrency != 2 {
		t.Fatalf("PreloadConcurrency 应当被解析")
	}
	if len(cfg.Pages) != 2 {
		t.Fatalf("应解析出 2 个页面，得到 %d", len(cfg.Pages))
	}
	if cfg.Pages[1].Path != "/dashboard" {
		t.Fatalf("页面路径应去除结尾斜杠，得到 %s", cfg.Pages[1].Path)
	}
}

func TestValidateRejectsBadPage(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestPreloadIdentifiersDeduplicates(t *testing.T) {
	cfg := validConfig()
	cfg.Pages = append(cfg.Pages, PageConfig{
		Name:    "other",
		Path:    "/other",
		Preload: []string{"/api/people", "/api/planets"},
	})

	got := cfg.PreloadIdentifiers()
	want := []string{"/api/people", "/api/planets"}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，得到 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("期望 %v，得到 %v", want, got)
		}
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestPagePathValidation(t *testing.T) {
	testCases := []struct {
		name      string
		path      string
		shouldErr bool
	}{
		{"root ok", "/", false},
		{"nested ok", "/app/people", false},
		{"missing slash", "people", true},
		{"reserved prefix", "/-/cache", true},
		{"query string", "/people?x=1", true},
		{"empty", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Pages[0].Path = tc.path
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for path %q", tc.path)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for path %q: %v", tc.path, err)
			}
		})
	}
}

func TestValidateRejectsRelativeIdentifierWithoutBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Global.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("未配置 BaseURL 时相对标识符应报错")
	}

	cfg.Pages[0].Preload = []string{"https://api.example.com/api/people"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("绝对标识符不依赖 BaseURL: %v", err)
	}
}

func TestValidateRejectsProtocolRelativeIdentifier(t *testing.T) {
	cfg := validConfig()
	cfg.Pages[0].Preload = []string{"//evil.example.com/api/people"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("协议相对标识符应报错")
	}
}

func TestValidateRejectsDuplicatePages(t *testing.T) {
	cfg := validConfig()
	cfg.Pages = append(cfg.Pages, cfg.Pages[0])

	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("期望 FieldError，得到 %v", err)
	}
	if fieldErr.Field != "Page[people].Name" {
		t.Fatalf("字段路径不符: %s", fieldErr.Field)
	}
}

func TestValidateRequiresCredentialPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Global.Username = "foo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("仅提供 Username 时应报错")
	}
	cfg.Global.Password = "bar"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("凭证成对出现时应通过: %v", err)
	}
	if cfg.Global.AuthMode() != "credentialed" {
		t.Fatalf("AuthMode 应为 credentialed")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:         5000,
			BaseURL:            "https://api.example.com",
			UpstreamTimeout:    Duration(time.Second),
			MaxBodySize:        1024,
			PreloadConcurrency: 1,
		},
		Pages: []PageConfig{
			{
				Name:    "people",
				Path:    "/appWithSSRData",
				Preload: []string{"/api/people"},
			},
		},
	}
}
