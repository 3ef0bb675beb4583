// Package executor 定义任务执行器能力契约
// 引擎只负责调度，每个任务的实际工作委托给可插拔的ToolExecutor完成；
// 引擎本身从不按工具名分支，分发由注册中心承担
package executor

import (
	"context"
	"fmt"
)

// ToolExecutor 任务执行器能力接口（对外导出，协作方契约）
// 实现必须满足：对不同任务可安全并发调用；尊重ctx取消信号以支持超时强制
type ToolExecutor interface {
	// Execute 执行一次工具调用
	// toolName: 工具名称（Task.Name）
	// input: 已解析的输入（依赖任务输出与任务config的合并结果）
	// 返回工具输出或错误；ctx被取消时应尽快返回ctx.Err()
	Execute(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error)
}

// ToolFunc 函数形式的ToolExecutor适配器（对外导出）
type ToolFunc func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

// funcExecutor 将单个ToolFunc适配为ToolExecutor（内部结构）
type funcExecutor struct {
	fn ToolFunc
}

// Execute 实现ToolExecutor接口
func (e *funcExecutor) Execute(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
	return e.fn(ctx, input)
}

// FromFunc 将ToolFunc包装为ToolExecutor（对外导出）
// 忽略toolName，适用于测试和单工具场景
func FromFunc(fn ToolFunc) ToolExecutor {
	return &funcExecutor{fn: fn}
}

// ExecutorError 外部执行器返回的错误（对外导出）
// 重试耗尽后记录在对应任务的TaskState中，不会从Run中抛出
type ExecutorError struct {
	TaskID   string
	ToolName string
	Err      error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("工具 %s 执行失败 (TaskID=%s): %v", e.ToolName, e.TaskID, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// TimeoutError 执行超时错误（对外导出）
// 单次尝试或整个工作流超出期限；按任务记录，不影响其他任务
type TimeoutError struct {
	TaskID         string
	TimeoutSeconds int
}

func (e *TimeoutError) Error() string {
	if e.TimeoutSeconds > 0 {
		return fmt.Sprintf("任务 %s 执行超时（%d秒）", e.TaskID, e.TimeoutSeconds)
	}
	return fmt.Sprintf("任务 %s 因工作流超时被终止", e.TaskID)
}
