package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LENAX/toolflow/pkg/core/condition"
	"github.com/LENAX/toolflow/pkg/core/dag"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// scheduler 单次执行的调度器（内部结构）
// 基于并发槽位控制并行度，任务终态提交后立即尝试派发新就绪的任务
type scheduler struct {
	engine   *Engine
	graph    dag.Graph
	executor executor.ToolExecutor
	rc       *runContext
	slots    int
}

// taskDone 任务执行完毕的通知（内部结构）
type taskDone struct {
	taskID string
	ready  []string // 该任务终态提交后新就绪的任务
}

// run 调度主循环（内部方法）
// 按声明顺序派发就绪任务，阻塞等待完成通知；ctx到期视为工作流全局超时
func (s *scheduler) run(ctx context.Context) {
	doneCh := make(chan taskDone)
	queue := s.rc.eligibleTasks()
	running := 0
	timedOut := false

	for {
		for !timedOut && running < s.slots && len(queue) > 0 {
			taskID := queue[0]
			queue = queue[1:]
			running++
			go func(id string) {
				ready := s.runTask(ctx, id)
				doneCh <- taskDone{taskID: id, ready: ready}
			}(taskID)
		}

		if running == 0 {
			// 队列已空且无在途任务；失败/跳过传播保证了此时不会再有Pending任务
			return
		}

		select {
		case d := <-doneCh:
			running--
			if !timedOut {
				queue = append(queue, d.ready...)
			}
		case <-ctx.Done():
			if !timedOut {
				timedOut = true
				queue = nil
				log.Printf("⏱️  [工作流超时] RunID=%s, 剩余任务将按超时失败处理", s.rc.runID)
				s.rc.failPendingByTimeout()
			}
		}
	}
}

// runTask 执行单个任务的完整生命周期（内部方法）
// 条件判断在Pending态进行，不满足时直接跳过不进入Running
func (s *scheduler) runTask(ctx context.Context, taskID string) []string {
	task, err := s.graph.Task(taskID)
	if err != nil {
		return s.rc.commitFailure(taskID, err)
	}

	if task.Condition != "" {
		ok, err := condition.Evaluate(task.Condition, s.rc.outputs())
		if err != nil {
			log.Printf("❌ [条件求值失败] RunID=%s, Task=%s, Condition=%q, Error=%v",
				s.rc.runID, taskID, task.Condition, err)
			return s.rc.commitFailure(taskID, fmt.Errorf("条件表达式求值失败: %w", err))
		}
		if !ok {
			log.Printf("⏭️  [任务跳过] RunID=%s, Task=%s, Condition=%q 不满足",
				s.rc.runID, taskID, task.Condition)
			return s.rc.commitSkip(taskID)
		}
	}

	s.rc.markRunning(taskID)
	log.Printf("▶️  [任务开始] RunID=%s, Task=%s, Tool=%s", s.rc.runID, taskID, task.Name)

	input := s.resolveInput(task)
	maxAttempts := task.RetryCount + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.rc.beginAttempt(taskID)

		output, err := s.executeAttempt(ctx, task, input)
		if err == nil {
			log.Printf("✅ [任务完成] RunID=%s, Task=%s, Attempts=%d", s.rc.runID, taskID, attempt)
			return s.rc.commitSuccess(taskID, output)
		}
		lastErr = err

		// 工作流全局超时不再重试，按超时失败提交并连带清算未终态的任务
		if ctx.Err() != nil {
			log.Printf("⏱️  [任务被终止] RunID=%s, Task=%s", s.rc.runID, taskID)
			return s.rc.commitTimeout(taskID)
		}

		if attempt < maxAttempts {
			backoff := s.retryDelay(attempt)
			log.Printf("🔄 [任务重试] RunID=%s, Task=%s, Attempt=%d/%d, Error=%v, 等待=%v",
				s.rc.runID, taskID, attempt, maxAttempts, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return s.rc.commitTimeout(taskID)
			}
		}
	}

	log.Printf("❌ [任务失败] RunID=%s, Task=%s, Attempts=%d, Error=%v",
		s.rc.runID, taskID, maxAttempts, lastErr)
	return s.rc.commitFailure(taskID, lastErr)
}

// executeAttempt 执行一次尝试并分类错误（内部方法）
func (s *scheduler) executeAttempt(ctx context.Context, task *workflow.Task, input map[string]interface{}) (map[string]interface{}, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	timeout := s.taskTimeout(task)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := s.executor.Execute(attemptCtx, task.Name, input)
	if err == nil {
		return output, nil
	}

	// 任务级超时：本次尝试的deadline到期而工作流整体未超时
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &executor.TimeoutError{
			TaskID:         task.EffectiveID(),
			TimeoutSeconds: int(timeout / time.Second),
		}
	}

	var execErr *executor.ExecutorError
	if errors.As(err, &execErr) {
		return nil, err
	}
	return nil, &executor.ExecutorError{
		TaskID:   task.EffectiveID(),
		ToolName: task.Name,
		Err:      err,
	}
}

// taskTimeout 计算任务级超时时长（内部方法）
// 任务未指定时回落到引擎默认值，0表示不限制
func (s *scheduler) taskTimeout(task *workflow.Task) time.Duration {
	if task.TimeoutSeconds > 0 {
		return time.Duration(task.TimeoutSeconds) * time.Second
	}
	return s.engine.defaultTimeout
}

// retryDelay 计算第attempt次失败后的重试等待时长（内部方法）
func (s *scheduler) retryDelay(attempt int) time.Duration {
	if s.engine.retryBackoff <= 0 {
		return 0
	}
	d := s.engine.retryBackoff << uint(attempt-1)
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}

// resolveInput 构造任务输入（内部方法）
// 上游输出以上游任务ID为键挂载，再叠加任务自身配置；同名键以配置为准
func (s *scheduler) resolveInput(task *workflow.Task) map[string]interface{} {
	input := make(map[string]interface{})
	outputs := s.rc.outputs()
	parents, _ := s.graph.Parents(task.EffectiveID())
	for _, dep := range parents {
		if out, exists := outputs[dep]; exists {
			input[dep] = out
		}
	}
	for k, v := range task.Config {
		input[k] = v
	}
	return input
}

// sleepCtx 可被ctx中断的等待（内部方法），正常等完返回true
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
