package dag

import (
	"fmt"

	godag "github.com/begmaroman/go-dag"

	"github.com/LENAX/toolflow/pkg/core/workflow"
)

// taskNode go-dag节点封装（内部结构，实现go-dag的Identifiable接口）
type taskNode struct {
	id   string
	task *workflow.Task
}

// ID 实现Identifiable接口
func (n *taskNode) ID() string {
	return n.id
}

// Hash 实现Hashable接口，以任务ID作为节点哈希
// 默认哈希走json序列化，非导出字段会让所有节点序列化成相同结果而互相冲突
func (n *taskNode) Hash() (godag.VHash, error) {
	return godag.ToHash(n.id)
}

// graphImpl Graph实现（内部结构）
// 环检测在构建期一次性完成，之后go-dag实例只读，库本身线程安全
type graphImpl struct {
	def   *workflow.WorkflowDefinition
	dag   *godag.DAG[*taskNode]
	order []string // 任务ID的声明顺序
	tasks map[string]*workflow.Task
}

// Build 从WorkflowDefinition构建依赖图（对外导出）
// 校验顺序：任务ID唯一性 -> 依赖引用可解析性 -> 无环。任一失败即快速返回，不执行任何任务
func Build(def *workflow.WorkflowDefinition) (Graph, error) {
	if def == nil {
		return nil, fmt.Errorf("工作流定义不能为空")
	}
	if len(def.Tasks) == 0 {
		return nil, fmt.Errorf("工作流 %s 不包含任何任务", def.Name)
	}

	// 1. 任务ID唯一性检查，同时记录声明顺序
	order := make([]string, 0, len(def.Tasks))
	tasks := make(map[string]*workflow.Task, len(def.Tasks))
	for i := range def.Tasks {
		t := &def.Tasks[i]
		id := t.EffectiveID()
		if _, exists := tasks[id]; exists {
			return nil, &DuplicateIDError{TaskID: id}
		}
		tasks[id] = t
		order = append(order, id)
	}

	// 2. 依赖引用检查（逐边的集合成员测试，先于环检测执行）
	for _, id := range order {
		for _, dep := range tasks[id].DependsOn {
			if _, exists := tasks[dep]; !exists {
				return nil, &ReferenceError{TaskID: id, MissingDep: dep}
			}
		}
	}

	// 3. 构建邻接表并一次性检测循环
	// 先在临时图上用DFS检测，避免go-dag在每次AddEdge时的递归检查开销
	adjacency := make(map[string][]string, len(order))
	for _, id := range order {
		adjacency[id] = nil
	}
	for _, id := range order {
		for _, dep := range tasks[id].DependsOn {
			// 边方向：前置任务 -> 后置任务
			adjacency[dep] = append(adjacency[dep], id)
		}
	}
	if cycle := detectCycle(order, adjacency); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	// 4. 创建go-dag实例并添加节点和边（已确认无环，AddEdge不会失败）
	d := godag.NewDAG[*taskNode]()
	for _, id := range order {
		if _, err := d.AddVertex(&taskNode{id: id, task: tasks[id]}); err != nil {
			return nil, fmt.Errorf("添加节点失败: TaskID=%s, Error=%w", id, err)
		}
	}
	for _, id := range order {
		for _, dep := range tasks[id].DependsOn {
			if err := d.AddEdge(dep, id); err != nil {
				return nil, fmt.Errorf("添加边失败: %s -> %s, Error=%w", dep, id, err)
			}
		}
	}

	return &graphImpl{
		def:   def,
		dag:   d,
		order: order,
		tasks: tasks,
	}, nil
}

// detectCycle 使用DFS检测图中是否存在循环（内部方法）
// 三色标记法：0=白色（未访问），1=灰色（在递归栈上），2=黑色（已访问完毕）
// 发现指向灰色节点的后向边即存在环，通过回放递归栈还原有序的环路径。
// 邻接表的边是执行方向（前置->后置），回放后反转，使报告的路径沿depends_on方向
func detectCycle(order []string, adjacency map[string][]string) []string {
	color := make(map[string]int, len(order))
	stack := make([]string, 0, len(order))
	var cycle []string

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		color[nodeID] = 1
		stack = append(stack, nodeID)

		for _, childID := range adjacency[nodeID] {
			switch color[childID] {
			case 0:
				if dfs(childID) {
					return true
				}
			case 1:
				// 后向边，从递归栈上首次出现childID的位置开始回放，闭合成环
				start := 0
				for i, id := range stack {
					if id == childID {
						start = i
						break
					}
				}
				cycle = append(cycle, stack[start:]...)
				cycle = append(cycle, childID)
				return true
			}
		}

		stack = stack[:len(stack)-1]
		color[nodeID] = 2
		return false
	}

	// 按声明顺序遍历，保证报告的环路径可复现
	for _, nodeID := range order {
		if color[nodeID] == 0 {
			if dfs(nodeID) {
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
		}
	}
	return nil
}

// Definition 获取原始工作流定义（实现Graph接口）
func (g *graphImpl) Definition() *workflow.WorkflowDefinition {
	return g.def
}

// TaskIDs 按声明顺序返回所有任务ID（实现Graph接口）
func (g *graphImpl) TaskIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Task 获取指定ID的任务（实现Graph接口）
func (g *graphImpl) Task(id string) (*workflow.Task, error) {
	t, exists := g.tasks[id]
	if !exists {
		return nil, fmt.Errorf("任务 %s 不存在", id)
	}
	return t, nil
}

// Children 获取直接下游任务ID列表（实现Graph接口）
func (g *graphImpl) Children(id string) ([]string, error) {
	children, err := g.dag.GetChildren(id)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(children))
	// 按声明顺序返回，保证遍历结果确定
	for _, taskID := range g.order {
		if _, ok := children[taskID]; ok {
			result = append(result, taskID)
		}
	}
	return result, nil
}

// Parents 获取直接上游任务ID列表（实现Graph接口）
func (g *graphImpl) Parents(id string) ([]string, error) {
	parents, err := g.dag.GetParents(id)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(parents))
	for _, taskID := range g.order {
		if _, ok := parents[taskID]; ok {
			result = append(result, taskID)
		}
	}
	return result, nil
}

// Descendants 获取可达的全部下游任务ID集合（实现Graph接口）
// 沿出边做BFS，结果用于失败传播时批量标记下游任务
func (g *graphImpl) Descendants(id string) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := g.dag.GetChildren(current)
		if err != nil {
			continue
		}
		for childID := range children {
			if !visited[childID] {
				visited[childID] = true
				queue = append(queue, childID)
			}
		}
	}
	return visited
}

// Waves 返回Kahn分层结果（实现Graph接口）
// 每一层是一个就绪波次：层内任务互相无依赖，可并行执行
func (g *graphImpl) Waves() [][]string {
	// 1. 计算每个节点的入度
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.tasks[id].DependsOn)
	}

	// 2. 找出所有入度为0的节点（按声明顺序）
	queue := make([]string, 0)
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	// 3. 逐层移除入度为0的节点，并更新其子节点的入度
	waves := make([][]string, 0)
	for len(queue) > 0 {
		currentWave := make([]string, 0, len(queue))
		nextQueue := make([]string, 0)

		for _, nodeID := range queue {
			currentWave = append(currentWave, nodeID)
			children, _ := g.Children(nodeID)
			for _, childID := range children {
				inDegree[childID]--
				if inDegree[childID] == 0 {
					nextQueue = append(nextQueue, childID)
				}
			}
		}

		waves = append(waves, currentWave)
		queue = nextQueue
	}

	return waves
}
