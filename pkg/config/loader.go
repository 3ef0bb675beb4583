package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// LoadFramework 加载框架配置文件（对外导出）
// 文件不存在时返回带默认值的配置，解析失败才报错
func LoadFramework(path string) (*FrameworkConfig, error) {
	var cfg FrameworkConfig

	data, err := os.ReadFile(path)
	if err != nil {
		cfg.ApplyDefaults()
		return &cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析框架配置失败: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadWorkflow 从YAML文件加载工作流定义（对外导出）
func LoadWorkflow(path string) (*workflow.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取工作流文件失败: %w", err)
	}
	return ParseWorkflow(data)
}

// ParseWorkflow 解析YAML格式的工作流定义（对外导出）
// 解析后立即做结构校验，依赖引用和环检测由dag.Build完成
func ParseWorkflow(data []byte) (*workflow.WorkflowDefinition, error) {
	var def workflow.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("解析工作流定义失败: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}
