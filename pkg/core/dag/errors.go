package dag

import (
	"fmt"
	"strings"
)

// ReferenceError 依赖引用错误（对外导出）
// depends_on中引用了工作流内不存在的任务ID，属于执行前的致命错误
type ReferenceError struct {
	TaskID     string // 声明依赖的任务ID
	MissingDep string // 不存在的依赖ID
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("任务 %s 依赖的任务 %s 不存在", e.TaskID, e.MissingDep)
}

// CycleError 循环依赖错误（对外导出）
// 依赖图中存在环，属于执行前的致命错误；Path携带完整环路径（首尾为同一任务ID）
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("检测到循环依赖: %s", strings.Join(e.Path, "→"))
}

// DuplicateIDError 任务ID重复错误（对外导出）
type DuplicateIDError struct {
	TaskID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("任务ID重复: %s", e.TaskID)
}
