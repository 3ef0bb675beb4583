package dto

// ValidateWorkflowRequest 校验工作流请求（YAML内容）
type ValidateWorkflowRequest struct {
	Content string `json:"content" binding:"required"`
}

// RunWorkflowRequest 执行工作流请求（YAML内容）
type RunWorkflowRequest struct {
	Content string `json:"content" binding:"required"`
}

// HistoryQueryRequest 执行历史查询请求
type HistoryQueryRequest struct {
	Workflow string `form:"workflow" binding:"omitempty"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetDefaultLimit 获取默认limit
func (r *HistoryQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
