package pipeline

import (
	"container/heap"
)

// taskGraph is the validated dependency structure of a task set, indexed by
// registration order.
type taskGraph struct {
	names      []string
	dependents [][]int // by index, ascending
	indeg      []int   // distinct dependencies per task
}

// ComputeOrder returns a topological order of the task names.
//
// Among tasks that are ready at the same time, the one registered first runs first,
// so the order is fully determined by the registration sequence. It fails with a
// *ConfigurationError for duplicate names or unknown dependencies, and with a
// *CycleError when no order exists. No partial order is ever returned.
func ComputeOrder(tasks []*Task) ([]string, error) {
	g, err := newTaskGraph(tasks)
	if err != nil {
		return nil, err
	}

	order := g.kahn()
	if len(order) != len(g.names) {
		return nil, &CycleError{Cycle: g.findCycle(order)}
	}

	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.names[idx])
	}

	return names, nil
}

func newTaskGraph(tasks []*Task) (*taskGraph, error) {
	index := make(map[string]int, len(tasks))
	names := make([]string, 0, len(tasks))

	for i, t := range tasks {
		if t.name == "" {
			return nil, &ConfigurationError{Task: t.name, Reason: "has an empty name"}
		}

		if _, exists := index[t.name]; exists {
			return nil, &ConfigurationError{Task: t.name, Reason: "is registered more than once"}
		}

		index[t.name] = i
		names = append(names, t.name)
	}

	g := &taskGraph{
		names:      names,
		dependents: make([][]int, len(tasks)),
		indeg:      make([]int, len(tasks)),
	}

	for i, t := range tasks {
		seen := make(map[int]struct{}, len(t.dependsOn))

		for _, dep := range t.dependsOn {
			from, ok := index[dep]
			if !ok {
				return nil, &ConfigurationError{Task: t.name, Dependency: dep, Reason: "depends on unknown task"}
			}

			if _, dup := seen[from]; dup {
				continue
			}

			seen[from] = struct{}{}
			g.dependents[from] = append(g.dependents[from], i)
			g.indeg[i]++
		}
	}

	// Dependents are appended in ascending task index already.
	return g, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}

// kahn returns the processed task indices. The ready set is a min-heap on
// registration index.
func (g *taskGraph) kahn() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)

		for _, m := range g.dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}

	return out
}

// findCycle extracts one cycle among the tasks Kahn could not process.
// Every unprocessed task either sits on a cycle or depends on one, so a DFS along
// dependent edges restricted to them always closes a loop.
func (g *taskGraph) findCycle(processed []int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.names))
	for _, idx := range processed {
		color[idx] = black
	}

	parent := make([]int, len(g.names))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray

		for _, v := range g.dependents[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back edge u -> v closes v -> ... -> u -> v.
				path := []int{u}
				for cur := u; cur != v; {
					cur = parent[cur]
					path = append(path, cur)
				}

				for i := len(path) - 1; i >= 0; i-- {
					cycle = append(cycle, path[i])
				}

				cycle = append(cycle, v)

				return true
			}
		}

		color[u] = black

		return false
	}

	for i := range g.names {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for _, idx := range cycle {
		out = append(out, g.names[idx])
	}

	return out
}
