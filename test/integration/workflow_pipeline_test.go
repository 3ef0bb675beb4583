package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/toolflow/pkg/config"
	"github.com/LENAX/toolflow/pkg/core/engine"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	"github.com/LENAX/toolflow/pkg/core/workflow"
	"github.com/LENAX/toolflow/pkg/tools"
)

// TestPipeline_YAMLToResult 测试从YAML定义到执行结果的完整链路
// 场景：采集 -> 提取 -> 条件上报，覆盖输入解析和条件跳过
func TestPipeline_YAMLToResult(t *testing.T) {
	yamlDef := `
name: intel-pipeline
parallel_execution: true
max_parallel: 2
timeout_seconds: 30
tools:
  - name: collect
  - name: analyze
    depends_on: [collect]
    retry_count: 2
  - name: escalate
    depends_on: [analyze]
    condition: analyze.result.confidence > 0.8
  - name: archive
    depends_on: [analyze]
`
	def, err := config.ParseWorkflow([]byte(yamlDef))
	require.NoError(t, err)

	reg := executor.NewToolRegistry()
	require.NoError(t, reg.Register("collect", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"samples": 64}, nil
	}, "采集"))

	var analyzeInput map[string]interface{}
	var mu sync.Mutex
	require.NoError(t, reg.Register("analyze", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		mu.Lock()
		analyzeInput = input
		mu.Unlock()
		return map[string]interface{}{
			"result": map[string]interface{}{"confidence": 0.45},
		}, nil
	}, "分析"))

	executed := make(map[string]bool)
	for _, name := range []string{"escalate", "archive"} {
		toolName := name
		require.NoError(t, reg.Register(toolName, func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			mu.Lock()
			executed[toolName] = true
			mu.Unlock()
			return nil, nil
		}, toolName))
	}

	eng := engine.NewEngine(engine.WithRetryBackoff(time.Millisecond))
	result, err := eng.RunDefinition(context.Background(), def, reg)
	require.NoError(t, err)

	// 低置信度：escalate被条件跳过，archive正常执行
	assert.Equal(t, workflow.WorkflowStatusSuccess, result.Status)
	assert.Equal(t, workflow.TaskStatusSkipped, result.Tasks["escalate"].Status)
	assert.Equal(t, workflow.SkipCauseCondition, result.Tasks["escalate"].SkipCause)
	assert.Equal(t, workflow.TaskStatusSucceeded, result.Tasks["archive"].Status)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, executed["escalate"], "条件不满足时不应执行escalate")
	assert.True(t, executed["archive"])

	// analyze的输入应挂载collect的输出
	upstream, ok := analyzeInput["collect"].(map[string]interface{})
	require.True(t, ok, "上游输出应按任务ID挂载: %v", analyzeInput)
	assert.Equal(t, 64, upstream["samples"])
}

// TestPipeline_FailurePropagationWithProgress 测试失败传播和进度事件总线
func TestPipeline_FailurePropagationWithProgress(t *testing.T) {
	def := &workflow.WorkflowDefinition{
		Name:              "failure-chain",
		ParallelExecution: true,
		MaxParallel:       4,
		Tasks: []workflow.Task{
			{Name: "source", RetryCount: 1},
			{Name: "transform", DependsOn: []string{"source"}},
			{Name: "load", DependsOn: []string{"transform"}},
			{Name: "audit"},
		},
	}

	reg := executor.NewToolRegistry()
	require.NoError(t, reg.Register("source", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, fmt.Errorf("数据源不可用")
	}, "失败的数据源"))
	for _, name := range []string{"transform", "load", "audit"} {
		require.NoError(t, reg.Register(name, func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
			return nil, nil
		}, name))
	}

	bus := progress.NewBus(false)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	received := make(map[string][]workflow.TaskStatus)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			mu.Lock()
			received[ev.TaskID] = append(received[ev.TaskID], ev.Status)
			total := 0
			for _, seq := range received {
				total += len(seq)
			}
			mu.Unlock()
			// source两次尝试后失败，transform/load被跳过，audit成功
			// 事件总数：source(Running,Failed) + transform(Skipped) + load(Skipped) + audit(Running,Succeeded)
			if total >= 6 {
				return
			}
		}
	}()

	eng := engine.NewEngine(
		engine.WithRetryBackoff(time.Millisecond),
		engine.WithProgressCallback(bus.Callback()),
	)
	result, err := eng.RunDefinition(context.Background(), def, reg)
	require.NoError(t, err)

	assert.Equal(t, workflow.WorkflowStatusPartial, result.Status)
	assert.Equal(t, workflow.TaskStatusFailed, result.Tasks["source"].Status)
	assert.Equal(t, 2, result.Tasks["source"].Attempts)
	for _, id := range []string{"transform", "load"} {
		assert.Equal(t, workflow.TaskStatusSkipped, result.Tasks[id].Status)
		assert.Equal(t, workflow.SkipCauseUpstreamFailed, result.Tasks[id].SkipCause)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("等待进度事件超时")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, received["source"], workflow.TaskStatusFailed)
	assert.Contains(t, received["transform"], workflow.TaskStatusSkipped)
	assert.Contains(t, received["audit"], workflow.TaskStatusSucceeded)
}

// TestPipeline_BuiltinTools 测试内置工具在工作流中的串联
func TestPipeline_BuiltinTools(t *testing.T) {
	yamlDef := `
name: builtin-chain
parallel_execution: false
tools:
  - name: echo
    id: seed
    config:
      message: "来自上游"
  - name: template
    id: render
    depends_on: [seed]
    config:
      template: "{{.seed.message}}"
`
	def, err := config.ParseWorkflow([]byte(yamlDef))
	require.NoError(t, err)

	reg := executor.NewToolRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg))

	eng := engine.NewEngine(engine.WithRetryBackoff(time.Millisecond))
	result, err := eng.RunDefinition(context.Background(), def, reg)
	require.NoError(t, err)

	require.Equal(t, workflow.WorkflowStatusSuccess, result.Status)
	assert.Equal(t, "来自上游", result.Tasks["render"].Output["rendered"])
}

// TestCronScheduler_TriggersRuns 测试定时调度器按表达式触发执行
func TestCronScheduler_TriggersRuns(t *testing.T) {
	def := &workflow.WorkflowDefinition{
		Name:              "cron-wf",
		ParallelExecution: false,
		Tasks:             []workflow.Task{{Name: "tick"}},
	}

	var mu sync.Mutex
	runs := 0
	reg := executor.NewToolRegistry()
	require.NoError(t, reg.Register("tick", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	}, "计数"))

	eng := engine.NewEngine(engine.WithRetryBackoff(time.Millisecond))
	cs := engine.NewCronScheduler(eng, reg, func(result *workflow.WorkflowResult) {
		mu.Lock()
		runs++
		mu.Unlock()
		assert.Equal(t, workflow.WorkflowStatusSuccess, result.Status)
	})

	require.NoError(t, cs.RegisterWorkflow(def, "* * * * * *")) // 每秒触发
	assert.Equal(t, []string{"cron-wf"}, cs.RegisteredWorkflows())

	cs.Start()
	time.Sleep(2500 * time.Millisecond)
	cs.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, runs, 2, "2.5秒内每秒触发应至少执行2次")

	require.NoError(t, cs.UnregisterWorkflow("cron-wf"))
	assert.Error(t, cs.UnregisterWorkflow("cron-wf"))
}

// TestCronScheduler_RejectsInvalidWorkflow 测试注册时的校验
func TestCronScheduler_RejectsInvalidWorkflow(t *testing.T) {
	cyclic := &workflow.WorkflowDefinition{
		Name: "cyclic",
		Tasks: []workflow.Task{
			{Name: "a", DependsOn: []string{"b"}},
			{Name: "b", DependsOn: []string{"a"}},
		},
	}

	reg := executor.NewToolRegistry()
	eng := engine.NewEngine()
	cs := engine.NewCronScheduler(eng, reg, nil)

	assert.Error(t, cs.RegisterWorkflow(cyclic, "* * * * * *"))
	assert.Empty(t, cs.RegisteredWorkflows())
}
