package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/toolflow/pkg/core/dag"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// CronScheduler 定时调度器（对外导出）
// 按Cron表达式周期性地执行已注册的工作流；依赖图在注册时校验一次，
// 之后每次触发直接复用
type CronScheduler struct {
	cron     *cron.Cron
	engine   *Engine
	executor executor.ToolExecutor
	graphs   map[string]dag.Graph    // 工作流名 -> 已校验的依赖图
	entries  map[string]cron.EntryID // 工作流名 -> cron.EntryID映射
	onResult func(*workflow.WorkflowResult)
	mu       sync.RWMutex
}

// NewCronScheduler 创建定时调度器（对外导出）
// onResult在每次触发执行结束后调用（可为nil），用于历史落库等
func NewCronScheduler(eng *Engine, exec executor.ToolExecutor, onResult func(*workflow.WorkflowResult)) *CronScheduler {
	return &CronScheduler{
		cron:     cron.New(cron.WithSeconds()), // 支持秒级精度
		engine:   eng,
		executor: exec,
		graphs:   make(map[string]dag.Graph),
		entries:  make(map[string]cron.EntryID),
		onResult: onResult,
	}
}

// RegisterWorkflow 注册工作流到定时调度器（对外导出）
func (cs *CronScheduler) RegisterWorkflow(def *workflow.WorkflowDefinition, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("工作流 %s 未设置Cron表达式", def.Name)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.graphs[def.Name]; exists {
		return fmt.Errorf("工作流 %s 已注册到定时调度器", def.Name)
	}

	// 注册时校验，触发时不再重复构图
	graph, err := cs.engine.Validate(def)
	if err != nil {
		return fmt.Errorf("工作流 %s 校验失败: %w", def.Name, err)
	}

	entryID, err := cs.cron.AddFunc(cronExpr, func() {
		cs.trigger(def.Name, graph)
	})
	if err != nil {
		return fmt.Errorf("工作流 %s 的Cron表达式无效: %w", def.Name, err)
	}

	cs.graphs[def.Name] = graph
	cs.entries[def.Name] = entryID

	log.Printf("✅ [Cron调度器] 已注册工作流: Name=%s, CronExpr=%s", def.Name, cronExpr)
	return nil
}

// UnregisterWorkflow 取消注册工作流（对外导出）
func (cs *CronScheduler) UnregisterWorkflow(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return fmt.Errorf("工作流 %s 未注册到定时调度器", name)
	}

	cs.cron.Remove(entryID)
	delete(cs.graphs, name)
	delete(cs.entries, name)

	log.Printf("✅ [Cron调度器] 已取消注册工作流: Name=%s", name)
	return nil
}

// trigger 触发一次工作流执行（内部方法）
func (cs *CronScheduler) trigger(name string, graph dag.Graph) {
	log.Printf("🕐 [Cron调度器] 触发工作流执行: Name=%s", name)

	result, err := cs.engine.Run(context.Background(), graph, cs.executor)
	if err != nil {
		log.Printf("❌ [Cron调度器] 执行工作流失败: Name=%s, Error=%v", name, err)
		return
	}
	if cs.onResult != nil {
		cs.onResult(result)
	}
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时调度器（对外导出），等待在途触发结束
func (cs *CronScheduler) Stop() {
	ctx := cs.cron.Stop()
	<-ctx.Done()
	log.Println("✅ [Cron调度器] 已停止")
}

// RegisteredWorkflows 获取已注册的工作流名列表（对外导出）
func (cs *CronScheduler) RegisteredWorkflows() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.graphs))
	for name := range cs.graphs {
		names = append(names, name)
	}
	return names
}
