package hydrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"strings"

	"github.com/any-hub/fetchcache/internal/cache"
)

// ScriptID 是承载序列化缓存的 <script> 元素 id。
const ScriptID = "__FETCH_CACHE__"

var (
	scriptOpen  = `<script id="` + ScriptID + `" type="application/json">`
	scriptClose = `</script>`
)

// ErrScriptNotFound 表示文档中没有缓存脚本块。
var ErrScriptNotFound = errors.New("cache script element not found")

// ScriptTag 将 payload 嵌入 JSON 脚本块。<、>、& 会被转义为 \u003c 等形式，
// 因此 payload 不可能提前闭合 </script>。
func ScriptTag(payload string) string {
	var buf bytes.Buffer
	buf.Grow(len(scriptOpen) + len(payload) + len(scriptClose))
	buf.WriteString(scriptOpen)
	json.HTMLEscape(&buf, []byte(payload))
	buf.WriteString(scriptClose)
	return buf.String()
}

// Extract 从渲染后的文档中取出 ScriptTag 写入的 payload，供客户端启动时调用 Initialize。
func Extract(document string) (string, error) {
	start := strings.Index(document, scriptOpen)
	if start < 0 {
		return "", ErrScriptNotFound
	}
	rest := document[start+len(scriptOpen):]
	end := strings.Index(rest, scriptClose)
	if end < 0 {
		return "", &cache.DecodeError{Source: payloadSource, Err: errors.New("unterminated script element")}
	}
	return rest[:end], nil
}

// Shell 渲染最小的 HTML 外壳：页面挂载点加上缓存脚本块。
func Shell(page, payload string) string {
	var b strings.Builder
	b.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(page))
	b.WriteString("</title></head><body><div id=\"root\" data-page=\"")
	b.WriteString(html.EscapeString(page))
	b.WriteString("\"></div>")
	b.WriteString(ScriptTag(payload))
	b.WriteString("</body></html>\n")
	return b.String()
}
