package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/fetchcache/internal/cache"
	"github.com/any-hub/fetchcache/internal/config"
	"github.com/any-hub/fetchcache/internal/fetch"
	"github.com/any-hub/fetchcache/internal/hydrate"
	"github.com/any-hub/fetchcache/internal/logging"
	"github.com/any-hub/fetchcache/internal/preload"
	"github.com/any-hub/fetchcache/internal/server"
	"github.com/any-hub/fetchcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	dumpOnly    bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["pages"] = config.PageSummaries(cfg.Pages)
		fields["auth_mode"] = cfg.Global.AuthMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 共享缓存状态 → 协调器 → hydration → Fiber server，
	// 所有请求共享同一份进程级缓存。
	state := cache.NewState(cache.NewMemoryStore())
	fetcher, err := fetch.NewHTTPFetcher(fetch.NewUpstreamClient(cfg), cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化上游客户端失败: %v\n", err)
		return 1
	}
	coordinator := fetch.NewCoordinator(state, fetcher, fetch.WithLogger(logger))
	bridge := hydrate.NewBridge(state)

	if cfg.Global.HydratePath != "" {
		if err := hydrateFromFile(bridge, cfg.Global.HydratePath, logger); err != nil {
			fmt.Fprintf(stdErr, "加载缓存快照失败: %v\n", err)
			return 1
		}
	}

	if opts.dumpOnly {
		return dumpCache(cfg, coordinator, bridge, logger)
	}

	registry, err := server.NewPageRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建页面注册表失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["pages"] = registry.Names()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["auth_mode"] = cfg.Global.AuthMode()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, coordinator, bridge, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("fetchcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		dumpOnly   bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 FETCHCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&dumpOnly, "dump", false, "预加载全部页面资源，输出序列化缓存后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("FETCHCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		dumpOnly:    dumpOnly,
		showVersion: showVer,
	}, nil
}

// hydrateFromFile 读取上一轮预渲染输出的快照（纯 payload 或完整 HTML 文档）并并入缓存。
func hydrateFromFile(bridge *hydrate.Bridge, path string, logger *logrus.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	payload := string(raw)
	if extracted, err := hydrate.Extract(payload); err == nil {
		payload = extracted
	}
	added, err := bridge.InitializeCount(payload)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"action": "hydrate",
		"path":   path,
		"added":  added,
	}).Info("缓存快照已加载")
	return nil
}

// dumpCache 充当离线预渲染驱动：预加载全部标识符后把序列化缓存写到 stdout。
func dumpCache(cfg *config.Config, coordinator *fetch.Coordinator, bridge *hydrate.Bridge, logger *logrus.Logger) int {
	ids := cfg.PreloadIdentifiers()
	if err := preload.All(context.Background(), coordinator, ids, cfg.Global.PreloadConcurrency); err != nil {
		logger.WithError(err).WithField("action", "dump").Error("预加载失败")
		fmt.Fprintf(stdErr, "预加载失败: %v\n", err)
		return 1
	}
	payload, err := bridge.Serialize()
	if err != nil {
		fmt.Fprintf(stdErr, "序列化缓存失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdOut, payload)
	return 0
}

func startHTTPServer(cfg *config.Config, registry *server.PageRegistry, coordinator *fetch.Coordinator, bridge *hydrate.Bridge, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:             logger,
		Registry:           registry,
		Resolver:           coordinator,
		Bridge:             bridge,
		ListenPort:         port,
		PreloadConcurrency: cfg.Global.PreloadConcurrency,
		AllowWipe:          cfg.Global.AllowWipe,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
