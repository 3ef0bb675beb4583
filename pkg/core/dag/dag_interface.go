package dag

import (
	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// Graph 校验通过的任务依赖图接口（对外导出）
// 由Build从WorkflowDefinition构建，构建成功即保证：任务ID唯一、依赖引用可解析、无环
type Graph interface {
	// Definition 获取原始工作流定义
	Definition() *workflow.WorkflowDefinition
	// TaskIDs 按声明顺序返回所有任务ID（调度器按此顺序做确定性的就绪裁决）
	TaskIDs() []string
	// Task 获取指定ID的任务
	Task(id string) (*workflow.Task, error)
	// Children 获取直接下游任务ID列表（依赖当前任务的任务）
	Children(id string) ([]string, error)
	// Parents 获取直接上游任务ID列表（当前任务依赖的任务）
	Parents(id string) ([]string, error)
	// Descendants 获取可达的全部下游任务ID集合（失败传播的波及范围）
	Descendants(id string) map[string]bool
	// Waves 返回Kahn分层结果，每一层内的任务互相无依赖，可并行执行（用于并行度诊断）
	Waves() [][]string
}
