package dao

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// RunRecord 工作流执行记录（对外导出）
type RunRecord struct {
	RunID        string    `db:"run_id" json:"run_id"`
	WorkflowName string    `db:"workflow_name" json:"workflow_name"`
	Status       string    `db:"status" json:"status"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`

	// 任务明细不落在运行表，单独存task_run表
	Tasks []*TaskRunRecord `db:"-" json:"tasks,omitempty"`
}

// TaskRunRecord 单任务执行记录（对外导出）
type TaskRunRecord struct {
	RunID      string    `db:"run_id" json:"run_id"`
	TaskID     string    `db:"task_id" json:"task_id"`
	Status     string    `db:"status" json:"status"`
	SkipCause  string    `db:"skip_cause" json:"skip_cause,omitempty"`
	Attempts   int       `db:"attempts" json:"attempts"`
	Wave       int       `db:"wave" json:"wave"`
	Output     string    `db:"output" json:"output,omitempty"`
	ErrorMsg   string    `db:"error_msg" json:"error_msg,omitempty"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}

// FromResult 将执行结果转换为存储记录（对外导出）
func FromResult(result *workflow.WorkflowResult) (*RunRecord, error) {
	if result == nil {
		return nil, fmt.Errorf("执行结果不能为空")
	}

	record := &RunRecord{
		RunID:        result.RunID,
		WorkflowName: result.WorkflowName,
		Status:       string(result.Status),
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}

	for taskID, st := range result.Tasks {
		tr := &TaskRunRecord{
			RunID:      result.RunID,
			TaskID:     taskID,
			Status:     string(st.Status),
			SkipCause:  string(st.SkipCause),
			Attempts:   st.Attempts,
			Wave:       st.Wave,
			ErrorMsg:   st.ErrorMsg,
			StartedAt:  st.StartedAt,
			FinishedAt: st.FinishedAt,
		}
		if st.Output != nil {
			data, err := json.Marshal(st.Output)
			if err != nil {
				return nil, fmt.Errorf("序列化任务 %s 的输出失败: %w", taskID, err)
			}
			tr.Output = string(data)
		}
		record.Tasks = append(record.Tasks, tr)
	}
	return record, nil
}

// DecodeOutput 解码任务输出JSON（对外导出）
func (t *TaskRunRecord) DecodeOutput() (map[string]interface{}, error) {
	if t.Output == "" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(t.Output), &out); err != nil {
		return nil, fmt.Errorf("解码任务 %s 的输出失败: %w", t.TaskID, err)
	}
	return out, nil
}
