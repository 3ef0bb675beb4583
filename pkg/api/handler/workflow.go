package handler

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/toolflow/pkg/api/dto"
	"github.com/LENAX/toolflow/pkg/config"
	"github.com/LENAX/toolflow/pkg/core/engine"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/storage"
	"github.com/LENAX/toolflow/pkg/storage/dao"
)

// WorkflowHandler 工作流API处理器
type WorkflowHandler struct {
	engine   *engine.Engine
	executor executor.ToolExecutor
	repo     storage.RunRepository // 可为nil，历史接口返回503
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine, exec executor.ToolExecutor, repo storage.RunRepository) *WorkflowHandler {
	return &WorkflowHandler{engine: eng, executor: exec, repo: repo}
}

// Validate 校验工作流定义
// POST /api/v1/workflows/validate
func (h *WorkflowHandler) Validate(c *gin.Context) {
	var req dto.ValidateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	def, err := config.ParseWorkflow([]byte(req.Content))
	if err != nil {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ValidateResult{
			Valid: false,
			Error: err.Error(),
		}))
		return
	}

	graph, err := h.engine.Validate(def)
	if err != nil {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ValidateResult{
			Valid:    false,
			Workflow: def.Name,
			Error:    err.Error(),
		}))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ValidateResult{
		Valid:     true,
		Workflow:  def.Name,
		TaskCount: len(def.Tasks),
		Waves:     graph.Waves(),
	}))
}

// Run 执行工作流并同步返回结果
// POST /api/v1/workflows/run
func (h *WorkflowHandler) Run(c *gin.Context) {
	var req dto.RunWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	def, err := config.ParseWorkflow([]byte(req.Content))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("工作流定义非法: %v", err)))
		return
	}

	graph, err := h.engine.Validate(def)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("工作流校验失败: %v", err)))
		return
	}

	result, err := h.engine.Run(c.Request.Context(), graph, h.executor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("执行失败: %v", err)))
		return
	}

	// 历史落库失败不影响本次结果返回
	if h.repo != nil {
		if record, convErr := dao.FromResult(result); convErr == nil {
			if saveErr := h.repo.SaveRun(c.Request.Context(), record); saveErr != nil {
				log.Printf("⚠️  [历史落库失败] RunID=%s, Error=%v", result.RunID, saveErr)
			}
		}
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromResult(result, graph.TaskIDs())))
}

// ListRuns 列出执行历史
// GET /api/v1/runs
func (h *WorkflowHandler) ListRuns(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "存储未配置"))
		return
	}

	var query dto.HistoryQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	records, err := h.repo.ListRuns(c.Request.Context(), query.Workflow, query.GetDefaultLimit())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询历史失败: %v", err)))
		return
	}

	summaries := make([]dto.RunSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, dto.RunSummary{
			RunID:        r.RunID,
			WorkflowName: r.WorkflowName,
			Status:       r.Status,
			Duration:     r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(summaries))
}

// GetRun 查询单次执行记录
// GET /api/v1/runs/:id
func (h *WorkflowHandler) GetRun(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "存储未配置"))
		return
	}

	runID := c.Param("id")
	record, err := h.repo.GetRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(record))
}
