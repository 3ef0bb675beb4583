package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/toolflow/pkg/storage"
	"github.com/LENAX/toolflow/pkg/storage/dao"
)

// RunRepo 执行历史Repository的MySQL实现（对外导出）
type RunRepo struct {
	db *sqlx.DB
}

// NewRunRepo 基于已有连接创建Repository实例（对外导出）
func NewRunRepo(db *sqlx.DB) (*RunRepo, error) {
	repo := &RunRepo{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// NewRunRepoFromDSN 通过DSN创建Repository实例（对外导出）
// DSN需带parseTime=true，否则时间字段无法扫描
func NewRunRepoFromDSN(dsn string) (*RunRepo, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	return NewRunRepo(db)
}

// Close 关闭数据库连接（对外导出）
func (r *RunRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
func (r *RunRepo) initSchema() error {
	createRunSQL := `
	CREATE TABLE IF NOT EXISTS workflow_run (
		run_id VARCHAR(64) PRIMARY KEY,
		workflow_name VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		started_at DATETIME(3) NOT NULL,
		finished_at DATETIME(3) NOT NULL,
		INDEX idx_workflow_run_name (workflow_name, started_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	createTaskRunSQL := `
	CREATE TABLE IF NOT EXISTS task_run (
		run_id VARCHAR(64) NOT NULL,
		task_id VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		skip_cause VARCHAR(32) NOT NULL DEFAULT '',
		attempts INT NOT NULL DEFAULT 0,
		wave INT NOT NULL DEFAULT -1,
		output MEDIUMTEXT,
		error_msg TEXT,
		started_at DATETIME(3) NULL,
		finished_at DATETIME(3) NULL,
		PRIMARY KEY (run_id, task_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	for _, stmt := range []string{createRunSQL, createTaskRunSQL} {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun 保存一次完整的执行记录（对外导出）
func (r *RunRepo) SaveRun(ctx context.Context, record *dao.RunRecord) error {
	if record == nil {
		return fmt.Errorf("执行记录不能为空")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	insertRunSQL := `
	REPLACE INTO workflow_run (run_id, workflow_name, status, started_at, finished_at)
	VALUES (:run_id, :workflow_name, :status, :started_at, :finished_at)
	`
	if _, err := tx.NamedExecContext(ctx, insertRunSQL, record); err != nil {
		return fmt.Errorf("写入运行记录失败: %w", err)
	}

	insertTaskSQL := `
	REPLACE INTO task_run
		(run_id, task_id, status, skip_cause, attempts, wave, output, error_msg, started_at, finished_at)
	VALUES
		(:run_id, :task_id, :status, :skip_cause, :attempts, :wave, :output, :error_msg, :started_at, :finished_at)
	`
	for _, task := range record.Tasks {
		if _, err := tx.NamedExecContext(ctx, insertTaskSQL, task); err != nil {
			return fmt.Errorf("写入任务记录 %s 失败: %w", task.TaskID, err)
		}
	}

	return tx.Commit()
}

// GetRun 按RunID查询执行记录（对外导出）
func (r *RunRepo) GetRun(ctx context.Context, runID string) (*dao.RunRecord, error) {
	var record dao.RunRecord
	err := r.db.GetContext(ctx, &record,
		"SELECT run_id, workflow_name, status, started_at, finished_at FROM workflow_run WHERE run_id = ?", runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("执行记录 %s 不存在", runID)
		}
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}

	err = r.db.SelectContext(ctx, &record.Tasks,
		"SELECT run_id, task_id, status, skip_cause, attempts, wave, output, error_msg, started_at, finished_at FROM task_run WHERE run_id = ? ORDER BY wave, task_id", runID)
	if err != nil {
		return nil, fmt.Errorf("查询任务记录失败: %w", err)
	}
	return &record, nil
}

// ListRuns 按工作流名称倒序列出执行记录（对外导出）
func (r *RunRepo) ListRuns(ctx context.Context, workflowName string, limit int) ([]*dao.RunRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	var records []*dao.RunRecord
	var err error
	if workflowName == "" {
		err = r.db.SelectContext(ctx, &records,
			"SELECT run_id, workflow_name, status, started_at, finished_at FROM workflow_run ORDER BY started_at DESC LIMIT ?", limit)
	} else {
		err = r.db.SelectContext(ctx, &records,
			"SELECT run_id, workflow_name, status, started_at, finished_at FROM workflow_run WHERE workflow_name = ? ORDER BY started_at DESC LIMIT ?", workflowName, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("查询运行记录列表失败: %w", err)
	}
	return records, nil
}
