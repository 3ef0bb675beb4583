package executor

import (
	"context"
	"fmt"
	"sync"
)

// ToolRegistry 工具注册中心（对外导出）
// 按工具名称维护ToolFunc查找表，并以ToolExecutor的身份向引擎提供统一分发入口
type ToolRegistry struct {
	mu           sync.RWMutex
	tools        map[string]ToolFunc
	descriptions map[string]string
}

// NewToolRegistry 创建工具注册中心（对外导出）
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:        make(map[string]ToolFunc),
		descriptions: make(map[string]string),
	}
}

// Register 注册工具（对外导出）
// name: 工具名称（唯一标识）
// fn: 工具实现
// description: 工具描述（可选）
func (r *ToolRegistry) Register(name string, fn ToolFunc, description string) error {
	if name == "" {
		return fmt.Errorf("工具名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("工具实现不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("工具 %s 已注册", name)
	}
	r.tools[name] = fn
	r.descriptions[name] = description
	return nil
}

// Get 根据名称获取工具实现（对外导出）
// 未注册时返回nil
func (r *ToolRegistry) Get(name string) ToolFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Exists 检查工具是否已注册（对外导出）
func (r *ToolRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// Names 返回已注册的工具名称列表（对外导出）
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Unregister 注销工具（对外导出）
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.descriptions, name)
}

// Execute 实现ToolExecutor接口（对外导出）
// 按工具名分发到已注册的实现，未注册的工具名返回错误
func (r *ToolRegistry) Execute(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
	fn := r.Get(toolName)
	if fn == nil {
		return nil, fmt.Errorf("工具 %s 未注册", toolName)
	}
	return fn(ctx, input)
}
