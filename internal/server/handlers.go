package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/fetchcache/internal/consumer"
	"github.com/any-hub/fetchcache/internal/hydrate"
	"github.com/any-hub/fetchcache/internal/logging"
	"github.com/any-hub/fetchcache/internal/preload"
)

// renderPage 预加载页面声明的全部标识符，待其全部结束后序列化缓存并返回 HTML 外壳。
func renderPage(c fiber.Ctx, opts AppOptions, route *PageRoute) error {
	started := time.Now()
	fields := logging.RequestFields(route.Config.Name, route.Path, RequestID(c))

	err := preload.All(requestContext(c), opts.Resolver, route.Config.Preload, opts.PreloadConcurrency)
	if err != nil {
		opts.Logger.WithError(err).WithFields(fields).Warn("preload_failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  "preload_failed",
			"detail": err.Error(),
		})
	}

	payload, err := opts.Bridge.Serialize()
	if err != nil {
		opts.Logger.WithError(err).WithFields(fields).Error("serialize_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "serialize_failed",
		})
	}

	fields["preloaded"] = len(route.Config.Preload)
	fields["duration_ms"] = time.Since(started).Milliseconds()
	opts.Logger.WithFields(fields).Info("page_rendered")

	c.Set(fiber.HeaderContentType, "text/html; charset=utf-8")
	return c.SendString(hydrate.Shell(route.Config.Name, payload))
}

func serveSerializedCache(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		payload, err := opts.Bridge.Serialize()
		if err != nil {
			opts.Logger.WithError(err).WithField("action", "cache_dump").Error("serialize_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "serialize_failed",
			})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(payload)
	}
}

func wipeCache(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !opts.AllowWipe {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "wipe_disabled",
			})
		}
		opts.Bridge.Wipe()
		opts.Logger.WithFields(logrus.Fields{
			"action":     "cache_wipe",
			"request_id": RequestID(c),
		}).Warn("cache wiped")
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// resolveState 以消费方视角返回 isLoading/data/error 终态。只接受页面 Preload
// 中声明过的标识符，避免外部请求向共享缓存写入任意条目。
func resolveState(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		id := c.Query("id")
		if id == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing_id",
			})
		}
		if !opts.Registry.Declares(id) {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "resolve",
				"id":         id,
				"request_id": RequestID(c),
			}).Warn("identifier not declared")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "id_not_declared",
			})
		}
		state := consumer.Snapshot(requestContext(c), opts.Resolver, id)
		if state.Err != nil {
			opts.Logger.WithError(state.Err).WithFields(logging.ResolveFields(id, false, false)).Warn("resolve_failed")
		}
		return c.JSON(state)
	}
}
