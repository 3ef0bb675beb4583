package workflow

import (
	"time"
)

// TaskStatus 任务状态（对外导出）
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "Pending"
	TaskStatusSkipped   TaskStatus = "Skipped"
	TaskStatusRunning   TaskStatus = "Running"
	TaskStatusSucceeded TaskStatus = "Succeeded"
	TaskStatusFailed    TaskStatus = "Failed"
)

// IsTerminal 判断是否为终态（对外导出）
// 终态：Succeeded、Failed、Skipped，进入终态后不再发生状态迁移
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusSkipped
}

// SkipCause 跳过原因（对外导出）
// 区分“条件为假的主动跳过”和“上游失败传播导致的跳过”，二者对最终状态聚合的影响不同
type SkipCause string

const (
	// SkipCauseNone 未跳过
	SkipCauseNone SkipCause = ""
	// SkipCauseCondition 条件表达式求值为假，属于正常流转
	SkipCauseCondition SkipCause = "condition_false"
	// SkipCauseUpstreamFailed 依赖任务失败后传播而来，计入失败侧
	SkipCauseUpstreamFailed SkipCause = "upstream_failed"
)

// TaskState 任务的运行时状态记录（对外导出）
// 由持有该任务的Runner和失败传播逻辑独占修改，整个执行上下文在产出WorkflowResult后即被丢弃
type TaskState struct {
	Status     TaskStatus             `json:"status"`
	Attempts   int                    `json:"attempts"`             // 已执行的尝试次数（不超过retry_count+1）
	Output     map[string]interface{} `json:"output,omitempty"`     // 仅Succeeded时存在
	Error      error                  `json:"-"`                    // 仅Failed时存在
	ErrorMsg   string                 `json:"error,omitempty"`      // Error的字符串形式（用于序列化）
	SkipCause  SkipCause              `json:"skip_cause,omitempty"` // 仅Skipped时存在
	Wave       int                    `json:"wave"`                 // 就绪波次索引（用于并行度诊断）
	StartedAt  time.Time              `json:"started_at,omitempty"`
	FinishedAt time.Time              `json:"finished_at,omitempty"`
}

// WorkflowStatus 工作流整体状态（对外导出）
type WorkflowStatus string

const (
	// WorkflowStatusSuccess 所有任务成功或因条件为假被主动跳过
	WorkflowStatusSuccess WorkflowStatus = "Success"
	// WorkflowStatusPartial 至少一个任务成功，且至少一个任务失败或被失败传播跳过
	WorkflowStatusPartial WorkflowStatus = "Partial"
	// WorkflowStatusFailed 没有任务成功（全部失败或被失败传播跳过）
	WorkflowStatusFailed WorkflowStatus = "Failed"
)

// WorkflowResult 工作流最终结果快照（对外导出）
type WorkflowResult struct {
	RunID        string                `json:"run_id"`
	WorkflowName string                `json:"workflow_name"`
	Status       WorkflowStatus        `json:"status"`
	Tasks        map[string]*TaskState `json:"tasks"` // 任务ID -> 最终TaskState
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}
