// Package engine 实现工作流编排引擎核心
// 将一组带依赖关系的工具调用按有向无环图调度执行，支持并行、重试、超时、
// 条件执行和部分失败语义；任务的实际工作委托给外部ToolExecutor完成
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/toolflow/pkg/core/dag"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	"github.com/LENAX/toolflow/pkg/core/workflow"
)

const (
	// defaultRetryBackoff 重试间隔基准（按尝试次数指数递增：1s、2s、4s...）
	defaultRetryBackoff = 1 * time.Second
	// maxRetryBackoff 重试间隔上限
	maxRetryBackoff = 30 * time.Second
)

// Engine 工作流编排引擎核心结构体（对外导出）
// 每次Run持有独立的执行上下文，引擎本身不保存跨运行的可变状态
type Engine struct {
	defaultTimeout time.Duration // 任务级默认超时（任务和工作流都未指定时生效，0表示不限制）
	retryBackoff   time.Duration // 重试间隔基准
	onProgress     func(progress.Event)
}

// Option Engine配置选项（对外导出）
type Option func(*Engine)

// WithDefaultTimeout 设置任务级默认超时（对外导出）
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.defaultTimeout = d
	}
}

// WithRetryBackoff 设置重试间隔基准（对外导出）
// 实际间隔按失败次数指数递增并受上限约束
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) {
		e.retryBackoff = d
	}
}

// WithProgressCallback 设置进度回调（对外导出）
// 每次任务状态迁移时调用，可挂载progress.Bus的Callback实现事件流
func WithProgressCallback(fn func(progress.Event)) Option {
	return func(e *Engine) {
		e.onProgress = fn
	}
}

// NewEngine 创建Engine实例（对外导出的工厂方法）
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate 校验工作流定义并构建依赖图（对外导出）
// 校验失败返回dag.ReferenceError/dag.CycleError等，此时不会执行任何任务
func (e *Engine) Validate(def *workflow.WorkflowDefinition) (dag.Graph, error) {
	return dag.Build(def)
}

// Run 执行已校验的依赖图（对外导出）
// 任务级错误（超时、执行器失败）不会从Run抛出，只体现在WorkflowResult中；
// 返回错误仅代表参数非法
func (e *Engine) Run(ctx context.Context, g dag.Graph, exec executor.ToolExecutor) (*workflow.WorkflowResult, error) {
	if g == nil {
		return nil, fmt.Errorf("依赖图不能为空")
	}
	if exec == nil {
		return nil, fmt.Errorf("执行器不能为空")
	}

	def := g.Definition()
	runID := uuid.NewString()
	startedAt := time.Now()

	// 工作流级全局超时：到期后所有Pending任务按超时失败处理，Running任务被取消
	runCtx := ctx
	var cancel context.CancelFunc
	if def.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	log.Printf("🚀 [工作流开始] RunID=%s, Workflow=%s, Tasks=%d, MaxParallel=%d",
		runID, def.Name, len(def.Tasks), def.EffectiveMaxParallel())

	rc := newRunContext(runID, g, e.onProgress)
	s := &scheduler{
		engine:   e,
		graph:    g,
		executor: exec,
		rc:       rc,
		slots:    def.EffectiveMaxParallel(),
	}
	s.run(runCtx)

	result := rc.buildResult(def.Name, startedAt)
	switch result.Status {
	case workflow.WorkflowStatusSuccess:
		log.Printf("✅ [工作流完成] RunID=%s, Workflow=%s, Status=%s, 耗时=%dms",
			runID, def.Name, result.Status, time.Since(startedAt).Milliseconds())
	case workflow.WorkflowStatusPartial:
		log.Printf("⚠️  [工作流部分失败] RunID=%s, Workflow=%s, Status=%s, 耗时=%dms",
			runID, def.Name, result.Status, time.Since(startedAt).Milliseconds())
	default:
		log.Printf("❌ [工作流失败] RunID=%s, Workflow=%s, Status=%s, 耗时=%dms",
			runID, def.Name, result.Status, time.Since(startedAt).Milliseconds())
	}
	return result, nil
}

// RunDefinition 校验并执行工作流定义（对外导出的便捷方法）
func (e *Engine) RunDefinition(ctx context.Context, def *workflow.WorkflowDefinition, exec executor.ToolExecutor) (*workflow.WorkflowResult, error) {
	g, err := e.Validate(def)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, g, exec)
}
