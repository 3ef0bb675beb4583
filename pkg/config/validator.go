package config

import (
	"fmt"

	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// ValidateDefinition 对工作流定义做结构校验（对外导出）
// 只检查字段取值合法性，依赖引用存在性和环检测由dag.Build负责
func ValidateDefinition(def *workflow.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("工作流定义不能为空")
	}
	if def.Name == "" {
		return fmt.Errorf("工作流名称不能为空")
	}
	if len(def.Tasks) == 0 {
		return fmt.Errorf("工作流 %s 未定义任何任务", def.Name)
	}
	if def.ParallelExecution && def.MaxParallel < 0 {
		return fmt.Errorf("工作流 %s 的max_parallel不能为负数", def.Name)
	}
	if def.TimeoutSeconds < 0 {
		return fmt.Errorf("工作流 %s 的timeout_seconds不能为负数", def.Name)
	}

	for i, task := range def.Tasks {
		if task.Name == "" {
			return fmt.Errorf("工作流 %s 的第%d个任务缺少name", def.Name, i+1)
		}
		if task.RetryCount < 0 {
			return fmt.Errorf("任务 %s 的retry_count不能为负数", task.EffectiveID())
		}
		if task.TimeoutSeconds < 0 {
			return fmt.Errorf("任务 %s 的timeout_seconds不能为负数", task.EffectiveID())
		}
		for _, dep := range task.DependsOn {
			if dep == "" {
				return fmt.Errorf("任务 %s 的depends_on包含空ID", task.EffectiveID())
			}
			if dep == task.EffectiveID() {
				return fmt.Errorf("任务 %s 不能依赖自身", task.EffectiveID())
			}
		}
	}
	return nil
}
