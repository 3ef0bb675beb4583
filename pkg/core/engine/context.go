package engine

import (
	"sync"
	"time"

	"github.com/LENAX/toolflow/pkg/core/dag"
	"github.com/LENAX/toolflow/pkg/core/executor"
	"github.com/LENAX/toolflow/pkg/core/progress"
	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// runContext 单次工作流执行的共享状态（内部结构）
// 所有状态迁移都在mu保护下完成，终态提交和失败传播是同一次加锁内的原子操作
type runContext struct {
	mu sync.Mutex

	runID string
	graph dag.Graph

	states     map[string]*workflow.TaskState
	dispatched map[string]bool // 已交给调度器的任务（避免重复派发）

	waveCounter int // 就绪批次计数器，每轮产生新就绪任务时递增

	onProgress func(progress.Event)
}

// newRunContext 创建执行上下文（内部方法）
func newRunContext(runID string, g dag.Graph, onProgress func(progress.Event)) *runContext {
	states := make(map[string]*workflow.TaskState, len(g.TaskIDs()))
	for _, id := range g.TaskIDs() {
		states[id] = &workflow.TaskState{
			Status: workflow.TaskStatusPending,
			Wave:   -1,
		}
	}
	return &runContext{
		runID:      runID,
		graph:      g,
		states:     states,
		dispatched: make(map[string]bool),
		onProgress: onProgress,
	}
}

// emit 发送进度事件（内部方法，必须在锁外调用）
func (rc *runContext) emit(events []progress.Event) {
	if rc.onProgress == nil {
		return
	}
	for _, ev := range events {
		rc.onProgress(ev)
	}
}

// eventLocked 构造当前任务状态的进度事件（内部方法，调用方持锁）
func (rc *runContext) eventLocked(taskID string) progress.Event {
	st := rc.states[taskID]
	ev := progress.Event{
		RunID:     rc.runID,
		TaskID:    taskID,
		Status:    st.Status,
		SkipCause: st.SkipCause,
		Attempts:  st.Attempts,
		Wave:      st.Wave,
		Timestamp: time.Now(),
	}
	if st.ErrorMsg != "" {
		ev.Error = st.ErrorMsg
	}
	return ev
}

// eligibleTasks 按声明顺序收集新就绪的任务（内部方法）
// 就绪定义：Pending、未派发、且所有依赖已Succeeded或因条件不满足被跳过。
// 本轮有新就绪任务时分配同一个批次号，即使因并发槽不足未能立即启动
func (rc *runContext) eligibleTasks() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.eligibleTasksLocked()
}

func (rc *runContext) eligibleTasksLocked() []string {
	var ready []string
	for _, id := range rc.graph.TaskIDs() {
		if rc.dispatched[id] || rc.states[id].Status != workflow.TaskStatusPending {
			continue
		}
		if rc.depsSatisfiedLocked(id) {
			ready = append(ready, id)
		}
	}
	if len(ready) > 0 {
		for _, id := range ready {
			rc.dispatched[id] = true
			rc.states[id].Wave = rc.waveCounter
		}
		rc.waveCounter++
	}
	return ready
}

// depsSatisfiedLocked 判断任务的全部依赖是否都已满足（内部方法，调用方持锁）
func (rc *runContext) depsSatisfiedLocked(id string) bool {
	parents, err := rc.graph.Parents(id)
	if err != nil {
		return false
	}
	for _, dep := range parents {
		if rc.states[dep].Status != workflow.TaskStatusSucceeded {
			return false
		}
	}
	return true
}

// markRunning 将任务置为Running（内部方法）
func (rc *runContext) markRunning(taskID string) {
	rc.mu.Lock()
	st := rc.states[taskID]
	st.Status = workflow.TaskStatusRunning
	st.StartedAt = time.Now()
	ev := rc.eventLocked(taskID)
	rc.mu.Unlock()
	rc.emit([]progress.Event{ev})
}

// beginAttempt 记录一次执行尝试（内部方法）
func (rc *runContext) beginAttempt(taskID string) int {
	rc.mu.Lock()
	st := rc.states[taskID]
	st.Attempts++
	attempt := st.Attempts
	rc.mu.Unlock()
	return attempt
}

// commitSuccess 提交任务成功终态并返回新就绪任务（内部方法）
func (rc *runContext) commitSuccess(taskID string, output map[string]interface{}) []string {
	rc.mu.Lock()
	st := rc.states[taskID]
	st.Status = workflow.TaskStatusSucceeded
	st.Output = output
	st.FinishedAt = time.Now()
	events := []progress.Event{rc.eventLocked(taskID)}
	ready := rc.eligibleTasksLocked()
	rc.mu.Unlock()
	rc.emit(events)
	return ready
}

// commitFailure 提交任务失败终态，并在同一次加锁内将所有下游传播为Skipped（内部方法）
func (rc *runContext) commitFailure(taskID string, err error) []string {
	rc.mu.Lock()
	st := rc.states[taskID]
	st.Status = workflow.TaskStatusFailed
	st.Error = err
	st.ErrorMsg = err.Error()
	st.FinishedAt = time.Now()
	events := []progress.Event{rc.eventLocked(taskID)}
	events = append(events, rc.propagateSkipLocked(taskID, workflow.SkipCauseUpstreamFailed)...)
	ready := rc.eligibleTasksLocked()
	rc.mu.Unlock()
	rc.emit(events)
	return ready
}

// commitSkip 提交条件跳过终态，下游按条件跳过原因级联（内部方法）
// 条件跳过的下游同样不执行（上游输出不存在），但不计入失败
func (rc *runContext) commitSkip(taskID string) []string {
	rc.mu.Lock()
	st := rc.states[taskID]
	st.Status = workflow.TaskStatusSkipped
	st.SkipCause = workflow.SkipCauseCondition
	st.FinishedAt = time.Now()
	events := []progress.Event{rc.eventLocked(taskID)}
	events = append(events, rc.propagateSkipLocked(taskID, workflow.SkipCauseCondition)...)
	ready := rc.eligibleTasksLocked()
	rc.mu.Unlock()
	rc.emit(events)
	return ready
}

// propagateSkipLocked 将taskID的全部后代中仍为Pending的任务置为Skipped（内部方法，调用方持锁）
func (rc *runContext) propagateSkipLocked(taskID string, cause workflow.SkipCause) []progress.Event {
	var events []progress.Event
	descendants := rc.graph.Descendants(taskID)
	for _, id := range rc.graph.TaskIDs() {
		if !descendants[id] {
			continue
		}
		st := rc.states[id]
		if st.Status != workflow.TaskStatusPending {
			continue
		}
		st.Status = workflow.TaskStatusSkipped
		st.SkipCause = cause
		st.FinishedAt = time.Now()
		rc.dispatched[id] = true
		events = append(events, rc.eventLocked(id))
	}
	return events
}

// commitTimeout 提交被全局超时终止的Running任务的失败终态（内部方法）
// 下游Pending任务在同一次加锁内按超时失败处理而不是传播为Skipped，
// 保证全局超时后所有未终态的任务都以超时失败收尾
func (rc *runContext) commitTimeout(taskID string) []string {
	rc.mu.Lock()
	st := rc.states[taskID]
	err := &executor.TimeoutError{TaskID: taskID}
	st.Status = workflow.TaskStatusFailed
	st.Error = err
	st.ErrorMsg = err.Error()
	st.FinishedAt = time.Now()
	events := []progress.Event{rc.eventLocked(taskID)}
	events = append(events, rc.failPendingByTimeoutLocked()...)
	rc.mu.Unlock()
	rc.emit(events)
	return nil
}

// failPendingByTimeout 工作流全局超时：所有未进入终态的Pending任务按超时失败（内部方法）
func (rc *runContext) failPendingByTimeout() {
	rc.mu.Lock()
	events := rc.failPendingByTimeoutLocked()
	rc.mu.Unlock()
	rc.emit(events)
}

func (rc *runContext) failPendingByTimeoutLocked() []progress.Event {
	var events []progress.Event
	for _, id := range rc.graph.TaskIDs() {
		st := rc.states[id]
		if st.Status != workflow.TaskStatusPending {
			continue
		}
		err := &executor.TimeoutError{TaskID: id}
		st.Status = workflow.TaskStatusFailed
		st.Error = err
		st.ErrorMsg = err.Error()
		st.FinishedAt = time.Now()
		rc.dispatched[id] = true
		events = append(events, rc.eventLocked(id))
	}
	return events
}

// allTerminal 判断全部任务是否已进入终态（内部方法）
func (rc *runContext) allTerminal() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, st := range rc.states {
		if !st.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// outputs 获取当前已成功任务的输出快照（内部方法）
// 供条件求值和输入解析使用，返回副本引用（输出本身视为只读）
func (rc *runContext) outputs() map[string]map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]map[string]interface{})
	for id, st := range rc.states {
		if st.Status == workflow.TaskStatusSucceeded {
			out[id] = st.Output
		}
	}
	return out
}

// buildResult 汇总执行结果（内部方法）
// 判定规则：无失败且无因上游失败的跳过为Success；否则有任一成功为Partial；否则Failed
func (rc *runContext) buildResult(workflowName string, startedAt time.Time) *workflow.WorkflowResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var succeeded, failed, upstreamSkipped int
	for _, st := range rc.states {
		switch st.Status {
		case workflow.TaskStatusSucceeded:
			succeeded++
		case workflow.TaskStatusFailed:
			failed++
		case workflow.TaskStatusSkipped:
			if st.SkipCause == workflow.SkipCauseUpstreamFailed {
				upstreamSkipped++
			}
		}
	}

	status := workflow.WorkflowStatusFailed
	switch {
	case failed == 0 && upstreamSkipped == 0:
		status = workflow.WorkflowStatusSuccess
	case succeeded > 0:
		status = workflow.WorkflowStatusPartial
	}

	return &workflow.WorkflowResult{
		RunID:        rc.runID,
		WorkflowName: workflowName,
		Status:       status,
		Tasks:        rc.states,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}
}
