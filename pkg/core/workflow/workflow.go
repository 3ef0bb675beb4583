package workflow

// Task 工作流中的单个任务节点（对外导出）
// 一个Task对应一次工具调用：Name指定要调用的工具，Config为透传给执行器的配置
type Task struct {
	ID             string                 `json:"id" yaml:"id"`                           // 任务唯一ID（为空时默认使用Name）
	Name           string                 `json:"name" yaml:"name"`                       // 工具名称（执行器按此分发）
	Config         map[string]interface{} `json:"config" yaml:"config"`                   // 工具配置（引擎不解析内容，原样透传）
	DependsOn      []string               `json:"depends_on" yaml:"depends_on"`           // 依赖的前置任务ID列表
	Condition      string                 `json:"condition" yaml:"condition"`             // 条件表达式（点路径布尔表达式，为空表示无条件执行）
	RetryCount     int                    `json:"retry_count" yaml:"retry_count"`         // 失败后的额外重试次数（0表示不重试）
	TimeoutSeconds int                    `json:"timeout_seconds" yaml:"timeout_seconds"` // 单任务超时（0表示继承工作流级超时）
}

// EffectiveID 获取任务的有效ID（对外导出）
// ID未指定时回退到Name
func (t *Task) EffectiveID() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Name
}

// WorkflowDefinition 工作流定义（对外导出）
// 一组带依赖关系的Task及其执行策略，作为已解析的结构化数据被引擎消费
type WorkflowDefinition struct {
	Name              string `json:"name" yaml:"name"`
	ParallelExecution bool   `json:"parallel_execution" yaml:"parallel_execution"` // false时强制串行执行
	MaxParallel       int    `json:"max_parallel" yaml:"max_parallel"`             // 并发任务数上限（1表示完全串行）
	TimeoutSeconds    int    `json:"timeout_seconds" yaml:"timeout_seconds"`       // 工作流级墙钟时间预算（0表示不限制）
	Tasks             []Task `json:"tools" yaml:"tools"`
}

// EffectiveMaxParallel 获取有效并发上限（对外导出）
// parallel_execution为false时无论配置值如何都按1处理
func (d *WorkflowDefinition) EffectiveMaxParallel() int {
	if !d.ParallelExecution {
		return 1
	}
	if d.MaxParallel < 1 {
		return 1
	}
	return d.MaxParallel
}

// TaskByID 根据有效ID查找Task（对外导出）
func (d *WorkflowDefinition) TaskByID(id string) (*Task, bool) {
	for i := range d.Tasks {
		if d.Tasks[i].EffectiveID() == id {
			return &d.Tasks[i], true
		}
	}
	return nil, false
}
