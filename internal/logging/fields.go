package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 描述一次标识符解析：是否命中缓存、是否合并到在途请求。
func ResolveFields(id string, cacheHit, joined bool) logrus.Fields {
	return logrus.Fields{
		"action":    "resolve",
		"id":        id,
		"cache_hit": cacheHit,
		"joined":    joined,
	}
}

// RequestFields 提供页面/请求 ID 字段，供预渲染请求日志复用。
func RequestFields(page, path, requestID string) logrus.Fields {
	return logrus.Fields{
		"page":       page,
		"path":       path,
		"request_id": requestID,
	}
}
