package dto

import (
	"time"

	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// ValidateResult 工作流校验结果
type ValidateResult struct {
	Valid     bool       `json:"valid"`
	Workflow  string     `json:"workflow,omitempty"`
	TaskCount int        `json:"task_count,omitempty"`
	Waves     [][]string `json:"waves,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TaskResultView 单任务执行结果视图
type TaskResultView struct {
	TaskID     string                 `json:"task_id"`
	Status     string                 `json:"status"`
	SkipCause  string                 `json:"skip_cause,omitempty"`
	Attempts   int                    `json:"attempts"`
	Wave       int                    `json:"wave"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// RunResultView 工作流执行结果视图
type RunResultView struct {
	RunID        string           `json:"run_id"`
	WorkflowName string           `json:"workflow_name"`
	Status       string           `json:"status"`
	Duration     string           `json:"duration"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Tasks        []TaskResultView `json:"tasks"`
}

// RunSummary 执行历史摘要
type RunSummary struct {
	RunID        string    `json:"run_id"`
	WorkflowName string    `json:"workflow_name"`
	Status       string    `json:"status"`
	Duration     string    `json:"duration"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// FromResult 将执行结果转换为响应视图
func FromResult(result *workflow.WorkflowResult, taskOrder []string) RunResultView {
	view := RunResultView{
		RunID:        result.RunID,
		WorkflowName: result.WorkflowName,
		Status:       string(result.Status),
		Duration:     result.FinishedAt.Sub(result.StartedAt).String(),
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}

	for _, id := range taskOrder {
		st, exists := result.Tasks[id]
		if !exists {
			continue
		}
		tv := TaskResultView{
			TaskID:    id,
			Status:    string(st.Status),
			SkipCause: string(st.SkipCause),
			Attempts:  st.Attempts,
			Wave:      st.Wave,
			Output:    st.Output,
			Error:     st.ErrorMsg,
		}
		if !st.StartedAt.IsZero() {
			t := st.StartedAt
			tv.StartedAt = &t
		}
		if !st.FinishedAt.IsZero() {
			t := st.FinishedAt
			tv.FinishedAt = &t
		}
		view.Tasks = append(view.Tasks, tv)
	}
	return view
}
