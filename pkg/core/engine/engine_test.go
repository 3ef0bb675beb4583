package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/toolflow/pkg/core/dag"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// recordingExecutor 测试用执行器，记录调用顺序并按工具名分发
type recordingExecutor struct {
	mu      sync.Mutex
	calls   []string
	running int
	maxRun  int
	fn      func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error)
}

func (r *recordingExecutor) Execute(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
	r.mu.Lock()
	r.calls = append(r.calls, toolName)
	r.running++
	if r.running > r.maxRun {
		r.maxRun = r.running
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running--
		r.mu.Unlock()
	}()

	if r.fn != nil {
		return r.fn(ctx, toolName, input)
	}
	return map[string]interface{}{"tool": toolName}, nil
}

func (r *recordingExecutor) callIndex(toolName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, name := range r.calls {
		if name == toolName {
			return i
		}
	}
	return -1
}

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithRetryBackoff(time.Millisecond)}, opts...)
	return NewEngine(opts...)
}

func simpleDef(name string, tasks ...workflow.Task) *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		Name:              name,
		ParallelExecution: true,
		MaxParallel:       4,
		Tasks:             tasks,
	}
}

func TestRun_LinearChainOrder(t *testing.T) {
	def := simpleDef("linear",
		workflow.Task{Name: "A"},
		workflow.Task{Name: "B", DependsOn: []string{"A"}},
		workflow.Task{Name: "C", DependsOn: []string{"B"}},
	)

	exec := &recordingExecutor{}
	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if result.Status != workflow.WorkflowStatusSuccess {
		t.Errorf("期望状态Success，实际%s", result.Status)
	}

	for i, name := range []string{"A", "B", "C"} {
		if exec.callIndex(name) != i {
			t.Errorf("任务%s的执行位置错误: %v", name, exec.calls)
		}
	}
}

func TestRun_LayeredExample(t *testing.T) {
	def := simpleDef("layered",
		workflow.Task{Name: "A"},
		workflow.Task{Name: "B"},
		workflow.Task{Name: "C", DependsOn: []string{"A", "B"}},
		workflow.Task{Name: "D", DependsOn: []string{"C"}},
		workflow.Task{Name: "E", DependsOn: []string{"B"}},
	)

	exec := &recordingExecutor{}
	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if result.Status != workflow.WorkflowStatusSuccess {
		t.Fatalf("期望状态Success，实际%s", result.Status)
	}

	// 拓扑约束：A、B先于C，C先于D，B先于E
	constraints := [][2]string{{"A", "C"}, {"B", "C"}, {"C", "D"}, {"B", "E"}}
	for _, c := range constraints {
		if exec.callIndex(c[0]) > exec.callIndex(c[1]) {
			t.Errorf("任务%s应先于%s执行: %v", c[0], c[1], exec.calls)
		}
	}

	for _, id := range []string{"A", "B", "C", "D", "E"} {
		if result.Tasks[id].Status != workflow.TaskStatusSucceeded {
			t.Errorf("任务%s期望Succeeded，实际%s", id, result.Tasks[id].Status)
		}
	}
}

func TestRun_SequentialWaves(t *testing.T) {
	def := &workflow.WorkflowDefinition{
		Name:              "waves",
		ParallelExecution: false,
		Tasks: []workflow.Task{
			{Name: "A"},
			{Name: "B"},
			{Name: "C", DependsOn: []string{"A", "B"}},
			{Name: "D", DependsOn: []string{"C"}},
			{Name: "E", DependsOn: []string{"B"}},
		},
	}

	exec := &recordingExecutor{}
	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if exec.maxRun > 1 {
		t.Errorf("串行模式下出现并发执行: maxRun=%d", exec.maxRun)
	}

	expected := map[string]int{"A": 0, "B": 0, "C": 1, "E": 1, "D": 2}
	for id, wave := range expected {
		if result.Tasks[id].Wave != wave {
			t.Errorf("任务%s期望批次%d，实际%d", id, wave, result.Tasks[id].Wave)
		}
	}
}

func TestRun_ParallelSpeedup(t *testing.T) {
	const sleep = 100 * time.Millisecond
	def := simpleDef("parallel",
		workflow.Task{Name: "A"},
		workflow.Task{Name: "B"},
		workflow.Task{Name: "C"},
	)

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			time.Sleep(sleep)
			return nil, nil
		},
	}

	start := time.Now()
	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if result.Status != workflow.WorkflowStatusSuccess {
		t.Errorf("期望状态Success，实际%s", result.Status)
	}
	if elapsed >= 3*sleep {
		t.Errorf("三个独立任务未并行执行: 耗时%v", elapsed)
	}
	if exec.maxRun < 2 {
		t.Errorf("期望观测到并发执行，实际最大并发%d", exec.maxRun)
	}
}

func TestRun_MaxParallelBound(t *testing.T) {
	def := &workflow.WorkflowDefinition{
		Name:              "bounded",
		ParallelExecution: true,
		MaxParallel:       2,
		Tasks: []workflow.Task{
			{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}, {Name: "E"},
		},
	}

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		},
	}

	if _, err := newTestEngine().RunDefinition(context.Background(), def, exec); err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if exec.maxRun > 2 {
		t.Errorf("并发数超过max_parallel限制: maxRun=%d", exec.maxRun)
	}
}

func TestRun_RetrySuccess(t *testing.T) {
	def := simpleDef("retry",
		workflow.Task{Name: "flaky", RetryCount: 3},
	)

	var attempts int
	var mu sync.Mutex
	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n < 3 {
				return nil, fmt.Errorf("瞬时故障 #%d", n)
			}
			return map[string]interface{}{"ok": true}, nil
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	st := result.Tasks["flaky"]
	if st.Status != workflow.TaskStatusSucceeded {
		t.Errorf("期望Succeeded，实际%s", st.Status)
	}
	if st.Attempts != 3 {
		t.Errorf("期望attempts==3，实际%d", st.Attempts)
	}
	if result.Status != workflow.WorkflowStatusSuccess {
		t.Errorf("期望状态Success，实际%s", result.Status)
	}
}

func TestRun_RetryExhaustionPropagation(t *testing.T) {
	def := simpleDef("exhaust",
		workflow.Task{Name: "broken", RetryCount: 1},
		workflow.Task{Name: "dependent", DependsOn: []string{"broken"}},
		workflow.Task{Name: "grandchild", DependsOn: []string{"dependent"}},
		workflow.Task{Name: "unrelated"},
	)

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			if toolName == "broken" {
				return nil, errors.New("持续故障")
			}
			return nil, nil
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	broken := result.Tasks["broken"]
	if broken.Status != workflow.TaskStatusFailed {
		t.Errorf("broken期望Failed，实际%s", broken.Status)
	}
	if broken.Attempts != 2 {
		t.Errorf("broken期望attempts==2，实际%d", broken.Attempts)
	}

	for _, id := range []string{"dependent", "grandchild"} {
		st := result.Tasks[id]
		if st.Status != workflow.TaskStatusSkipped {
			t.Errorf("%s期望Skipped，实际%s", id, st.Status)
		}
		if st.SkipCause != workflow.SkipCauseUpstreamFailed {
			t.Errorf("%s期望跳过原因upstream_failed，实际%s", id, st.SkipCause)
		}
		if st.Attempts != 0 {
			t.Errorf("%s不应被尝试执行，实际attempts=%d", id, st.Attempts)
		}
	}

	if result.Tasks["unrelated"].Status != workflow.TaskStatusSucceeded {
		t.Errorf("unrelated期望Succeeded，实际%s", result.Tasks["unrelated"].Status)
	}
	if result.Status != workflow.WorkflowStatusPartial {
		t.Errorf("期望状态Partial，实际%s", result.Status)
	}
}

func TestRun_AllFailedStatus(t *testing.T) {
	def := simpleDef("allfail",
		workflow.Task{Name: "broken"},
		workflow.Task{Name: "dependent", DependsOn: []string{"broken"}},
	)

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("持续故障")
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if result.Status != workflow.WorkflowStatusFailed {
		t.Errorf("期望状态Failed，实际%s", result.Status)
	}
}

func TestRun_TaskTimeout(t *testing.T) {
	def := simpleDef("timeout",
		workflow.Task{Name: "fast"},
		workflow.Task{Name: "slow"},
	)

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			if toolName == "slow" {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(5 * time.Second):
					return nil, nil
				}
			}
			return map[string]interface{}{"value": 42}, nil
		},
	}

	engine := newTestEngine(WithDefaultTimeout(50 * time.Millisecond))
	result, err := engine.RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	slow := result.Tasks["slow"]
	if slow.Status != workflow.TaskStatusFailed {
		t.Fatalf("slow期望Failed，实际%s", slow.Status)
	}
	var timeoutErr *executor.TimeoutError
	if !errors.As(slow.Error, &timeoutErr) {
		t.Errorf("slow期望TimeoutError，实际%v", slow.Error)
	}

	// 超时任务不影响已完成任务的输出
	fast := result.Tasks["fast"]
	if fast.Status != workflow.TaskStatusSucceeded {
		t.Fatalf("fast期望Succeeded，实际%s", fast.Status)
	}
	if fast.Output["value"] != 42 {
		t.Errorf("fast的输出被破坏: %v", fast.Output)
	}
	if result.Status != workflow.WorkflowStatusPartial {
		t.Errorf("期望状态Partial，实际%s", result.Status)
	}
}

func TestRun_GlobalTimeout(t *testing.T) {
	def := &workflow.WorkflowDefinition{
		Name:              "global-timeout",
		ParallelExecution: false,
		TimeoutSeconds:    1,
		Tasks: []workflow.Task{
			{Name: "stuck"},
			{Name: "starved", DependsOn: []string{"stuck"}},
		},
	}

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	for _, id := range []string{"stuck", "starved"} {
		st := result.Tasks[id]
		if st.Status != workflow.TaskStatusFailed {
			t.Errorf("%s期望Failed，实际%s", id, st.Status)
		}
		var timeoutErr *executor.TimeoutError
		if !errors.As(st.Error, &timeoutErr) {
			t.Errorf("%s期望TimeoutError，实际%v", id, st.Error)
		}
	}
	if result.Status != workflow.WorkflowStatusFailed {
		t.Errorf("期望状态Failed，实际%s", result.Status)
	}
}

func TestRun_GlobalTimeoutDependentsNotSkipped(t *testing.T) {
	// 全局超时打断Running任务时，其下游Pending任务必须按超时失败收尾，
	// 不能被当作上游失败传播成Skipped
	def := &workflow.WorkflowDefinition{
		Name:              "global-timeout-chain",
		ParallelExecution: false,
		TimeoutSeconds:    1,
		Tasks: []workflow.Task{
			{Name: "stuck"},
			{Name: "downstream", DependsOn: []string{"stuck"}},
			{Name: "tail", DependsOn: []string{"downstream"}},
		},
	}

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	for _, id := range []string{"stuck", "downstream", "tail"} {
		st := result.Tasks[id]
		if st.Status != workflow.TaskStatusFailed {
			t.Errorf("%s期望Failed，实际%s", id, st.Status)
		}
		if st.SkipCause != "" {
			t.Errorf("%s不应带跳过原因，实际%s", id, st.SkipCause)
		}
		var timeoutErr *executor.TimeoutError
		if !errors.As(st.Error, &timeoutErr) {
			t.Errorf("%s期望TimeoutError，实际%v", id, st.Error)
		}
	}
	if result.Status != workflow.WorkflowStatusFailed {
		t.Errorf("期望状态Failed，实际%s", result.Status)
	}
}

func TestRun_ConditionalSkip(t *testing.T) {
	def := simpleDef("conditional",
		workflow.Task{Name: "decide"},
		workflow.Task{
			Name:      "escalate",
			DependsOn: []string{"decide"},
			Condition: "decide.result.confidence > 0.8",
		},
		workflow.Task{Name: "report", DependsOn: []string{"escalate"}},
	)

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			if toolName == "decide" {
				return map[string]interface{}{
					"result": map[string]interface{}{"confidence": 0.4},
				}, nil
			}
			return nil, nil
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	for _, id := range []string{"escalate", "report"} {
		st := result.Tasks[id]
		if st.Status != workflow.TaskStatusSkipped {
			t.Errorf("%s期望Skipped，实际%s", id, st.Status)
		}
		if st.SkipCause != workflow.SkipCauseCondition {
			t.Errorf("%s期望跳过原因condition_false，实际%s", id, st.SkipCause)
		}
	}

	// 条件跳过不算失败
	if result.Status != workflow.WorkflowStatusSuccess {
		t.Errorf("期望状态Success，实际%s", result.Status)
	}
	if exec.callIndex("escalate") != -1 {
		t.Errorf("escalate不应被执行: %v", exec.calls)
	}
}

func TestRun_ConditionTrueRuns(t *testing.T) {
	def := simpleDef("conditional-true",
		workflow.Task{Name: "decide"},
		workflow.Task{
			Name:      "escalate",
			DependsOn: []string{"decide"},
			Condition: "decide.result.confidence > 0.8",
		},
	)

	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			if toolName == "decide" {
				return map[string]interface{}{
					"result": map[string]interface{}{"confidence": 0.95},
				}, nil
			}
			return nil, nil
		},
	}

	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if result.Tasks["escalate"].Status != workflow.TaskStatusSucceeded {
		t.Errorf("escalate期望Succeeded，实际%s", result.Tasks["escalate"].Status)
	}
}

func TestRun_MalformedConditionFails(t *testing.T) {
	def := simpleDef("bad-condition",
		workflow.Task{Name: "A"},
		workflow.Task{Name: "B", DependsOn: []string{"A"}, Condition: "A.value >"},
	)

	exec := &recordingExecutor{}
	result, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if result.Tasks["B"].Status != workflow.TaskStatusFailed {
		t.Errorf("B期望Failed，实际%s", result.Tasks["B"].Status)
	}
	if result.Status != workflow.WorkflowStatusPartial {
		t.Errorf("期望状态Partial，实际%s", result.Status)
	}
}

func TestRun_InputResolution(t *testing.T) {
	def := simpleDef("input",
		workflow.Task{Name: "producer"},
		workflow.Task{
			Name:      "consumer",
			DependsOn: []string{"producer"},
			Config:    map[string]interface{}{"mode": "fast", "producer": "override"},
		},
	)

	var got map[string]interface{}
	var mu sync.Mutex
	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			if toolName == "producer" {
				return map[string]interface{}{"value": 42}, nil
			}
			mu.Lock()
			got = input
			mu.Unlock()
			return nil, nil
		},
	}

	if _, err := newTestEngine().RunDefinition(context.Background(), def, exec); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	if got["mode"] != "fast" {
		t.Errorf("任务配置未并入输入: %v", got)
	}
	// 同名键以任务自身配置为准
	if got["producer"] != "override" {
		t.Errorf("配置覆盖优先级错误: %v", got)
	}
}

func TestRun_InputCarriesDependencyOutput(t *testing.T) {
	def := simpleDef("dep-output",
		workflow.Task{Name: "producer"},
		workflow.Task{Name: "consumer", DependsOn: []string{"producer"}},
	)

	var got map[string]interface{}
	var mu sync.Mutex
	exec := &recordingExecutor{
		fn: func(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error) {
			if toolName == "producer" {
				return map[string]interface{}{"value": 42}, nil
			}
			mu.Lock()
			got = input
			mu.Unlock()
			return nil, nil
		},
	}

	if _, err := newTestEngine().RunDefinition(context.Background(), def, exec); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	out, ok := got["producer"].(map[string]interface{})
	if !ok {
		t.Fatalf("上游输出未按任务ID挂载: %v", got)
	}
	if out["value"] != 42 {
		t.Errorf("上游输出内容错误: %v", out)
	}
}

func TestValidate_CycleRejected(t *testing.T) {
	def := simpleDef("cycle",
		workflow.Task{Name: "A", DependsOn: []string{"B"}},
		workflow.Task{Name: "B", DependsOn: []string{"A"}},
	)

	exec := &recordingExecutor{}
	_, err := newTestEngine().RunDefinition(context.Background(), def, exec)
	if err == nil {
		t.Fatal("期望循环依赖校验失败")
	}
	var cycleErr *dag.CycleError
	if !errors.As(err, &cycleErr) {
		t.Errorf("期望CycleError，实际%v", err)
	}
	if len(exec.calls) != 0 {
		t.Errorf("校验失败时不应执行任何任务: %v", exec.calls)
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	def := simpleDef("progress-events",
		workflow.Task{Name: "A"},
		workflow.Task{Name: "B", DependsOn: []string{"A"}},
	)

	var mu sync.Mutex
	statuses := make(map[string][]workflow.TaskStatus)
	engine := newTestEngine(WithProgressCallback(func(ev progress.Event) {
		mu.Lock()
		statuses[ev.TaskID] = append(statuses[ev.TaskID], ev.Status)
		mu.Unlock()
	}))

	exec := &recordingExecutor{}
	result, err := engine.RunDefinition(context.Background(), def, exec)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"A", "B"} {
		seq := statuses[id]
		if len(seq) != 2 || seq[0] != workflow.TaskStatusRunning || seq[1] != workflow.TaskStatusSucceeded {
			t.Errorf("任务%s的状态事件序列错误: %v", id, seq)
		}
	}
	if result.RunID == "" {
		t.Error("RunID不应为空")
	}
}
