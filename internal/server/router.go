package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/fetchcache/internal/cache"
	"github.com/any-hub/fetchcache/internal/hydrate"
)

// Resolver is satisfied by *fetch.Coordinator.
type Resolver interface {
	Resolve(ctx context.Context, id string) (cache.Value, error)
	Peek(id string) (cache.Value, bool)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger             *logrus.Logger
	Registry           *PageRegistry
	Resolver           Resolver
	Bridge             *hydrate.Bridge
	ListenPort         int
	PreloadConcurrency int
	// AllowWipe 打开 DELETE /-/cache，仅用于测试环境。
	AllowWipe bool
}

const (
	contextKeyRoute     = "_fetchcache_route"
	contextKeyRequestID = "_fetchcache_request_id"
)

// NewApp builds a Fiber application with path routing middleware, the
// diagnostics endpoints and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("page registry is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Bridge == nil {
		return nil, errors.New("hydration bridge is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	// Immutable：查询参数会成为缓存键，不能引用 fasthttp 复用的请求缓冲区。
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		Immutable:     true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/-/cache", serveSerializedCache(opts))
	app.Delete("/-/cache", wipeCache(opts))
	app.Get("/-/resolve", resolveState(opts))

	app.Get("/*", func(c fiber.Ctx) error {
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderPageUnmapped(c, opts.Logger, string(c.Request().URI().Path()))
		}
		return renderPage(c, opts, route)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于请求路径查找 PageRoute。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := string(c.Request().URI().Path())
		if isDiagnosticsPath(path) {
			return c.Next()
		}

		route, ok := opts.Registry.Lookup(path)
		if !ok {
			return renderPageUnmapped(c, opts.Logger, path)
		}

		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderPageUnmapped(c fiber.Ctx, logger *logrus.Logger, path string) error {
	logger.WithFields(logrus.Fields{
		"action":     "page_lookup",
		"path":       path,
		"request_id": RequestID(c),
	}).Warn("page unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "page_unmapped",
	})
}

func getRouteFromContext(c fiber.Ctx) (*PageRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*PageRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
