// Package tools 提供一组开箱即用的内置工具
// 引擎核心对工具内容完全无感知，这里只是常用工具的默认实现，
// 调用方可以只注册自己的工具而完全不用本包
package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/LENAX/toolflow/pkg/core/executor"
)

// 高并发HTTP客户端
// 基于DefaultTransport修改，保留代理和DNS配置
var httpClient = func() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 100
	transport.MaxConnsPerHost = 100
	transport.IdleConnTimeout = 90 * time.Second
	return &http.Client{
		Transport: transport,
	}
}()

// RegisterBuiltins 注册全部内置工具（对外导出）
func RegisterBuiltins(reg *executor.ToolRegistry) error {
	builtins := []struct {
		name        string
		fn          executor.ToolFunc
		description string
	}{
		{"echo", Echo, "原样返回输入，用于调试和连通性测试"},
		{"sleep", Sleep, "等待指定毫秒数后返回"},
		{"template", Template, "用输入渲染Go模板字符串"},
		{"http_fetch", HTTPFetch, "发起HTTP GET请求并返回响应内容"},
		{"html_extract", HTMLExtract, "用CSS选择器从HTML中提取内容"},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.fn, b.description); err != nil {
			return err
		}
	}
	return nil
}

// Echo 原样返回输入（对外导出）
func Echo(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	output := make(map[string]interface{}, len(input))
	for k, v := range input {
		output[k] = v
	}
	return output, nil
}

// Sleep 等待input中duration_ms指定的毫秒数（对外导出）
// 被ctx取消时立即返回错误
func Sleep(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	ms, err := intValue(input, "duration_ms")
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]interface{}{"slept_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Template 用输入渲染Go模板字符串（对外导出）
// 模板取自input的template键，渲染数据为整个input
func Template(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	text, ok := input["template"].(string)
	if !ok {
		return nil, fmt.Errorf("缺少template参数")
	}

	tmpl, err := template.New("tool").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("解析模板失败: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return nil, fmt.Errorf("渲染模板失败: %w", err)
	}
	return map[string]interface{}{"rendered": buf.String()}, nil
}

// HTTPFetch 发起HTTP GET请求（对外导出）
// 超时控制完全由ctx承担，调用方通过任务的timeout_seconds限制耗时
func HTTPFetch(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	url, ok := input["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("缺少url参数")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	return map[string]interface{}{
		"status": resp.StatusCode,
		"body":   string(body),
	}, nil
}

// HTMLExtract 用CSS选择器从HTML中提取内容（对外导出）
// html参数支持点路径引用上游输出，如 fetch_page.body
func HTMLExtract(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	selector, ok := input["selector"].(string)
	if !ok || selector == "" {
		return nil, fmt.Errorf("缺少selector参数")
	}
	html, err := stringValue(input, "html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	attr, _ := input["attr"].(string)
	var matches []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if attr != "" {
			if v, exists := s.Attr(attr); exists {
				matches = append(matches, v)
			}
			return
		}
		matches = append(matches, strings.TrimSpace(s.Text()))
	})

	return map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	}, nil
}

// stringValue 从input读取字符串参数，支持点路径引用嵌套值
func stringValue(input map[string]interface{}, key string) (string, error) {
	raw, exists := input[key]
	if !exists {
		return "", fmt.Errorf("缺少%s参数", key)
	}

	// 形如 "fetch_page.body" 的点路径引用
	if ref, ok := raw.(string); ok {
		if resolved, found := lookupPath(input, ref); found {
			if s, ok := resolved.(string); ok {
				return s, nil
			}
		}
		return ref, nil
	}
	return "", fmt.Errorf("%s参数必须是字符串", key)
}

// lookupPath 按点路径在嵌套map中查值
func lookupPath(input map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return nil, false
	}

	var current interface{} = input
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// intValue 从input读取整数参数，兼容JSON/YAML解码出的数值类型
func intValue(input map[string]interface{}, key string) (int, error) {
	raw, exists := input[key]
	if !exists {
		return 0, fmt.Errorf("缺少%s参数", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s参数必须是数值", key)
	}
}
