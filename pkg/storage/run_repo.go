// Package storage 定义执行历史的持久化接口
// 引擎本身不依赖持久化，历史落库由调用方（CLI/服务端）在Run结束后完成
package storage

import (
	"context"

	"github.com/LENAX/toolflow/pkg/storage/dao"
)

// RunRepository 执行历史Repository接口（对外导出）
type RunRepository interface {
	// SaveRun 保存一次完整的执行记录（含任务明细）
	SaveRun(ctx context.Context, record *dao.RunRecord) error
	// GetRun 按RunID查询执行记录，附带任务明细
	GetRun(ctx context.Context, runID string) (*dao.RunRecord, error)
	// ListRuns 按工作流名称倒序列出执行记录（不含任务明细）
	// workflowName为空表示不过滤，limit<=0表示使用默认条数
	ListRuns(ctx context.Context, workflowName string, limit int) ([]*dao.RunRecord, error)
	// Close 关闭底层数据库连接
	Close() error
}

// DefaultListLimit 历史查询的默认返回条数（对外导出）
const DefaultListLimit = 50
