package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/SacredTexts/huly/internal/model"
)

// ReachabilityWarning flags a state graph shape that is legal but likely
// a mistake: states no execution can enter, and states an execution can
// never leave towards completion.
type ReachabilityWarning struct {
	Process string   `json:"process"`
	Path    []string `json:"path"`    // offending states; a loop repeats its first state
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeReachability inspects the state graph of p.
//
//  1. States not reachable from the initial state are reported.
//  2. Among reachable states, every strongly connected component with no
//     edge leaving it and no terminal state is a trap: executions entering
//     it never complete. Single sink states and closed loops are both
//     reported.
//
// Warnings are returned in state order so output is stable.
func AnalyzeReachability(p model.Process) []ReachabilityWarning {
	if len(p.States) == 0 {
		return []ReachabilityWarning{}
	}

	graph := buildStateGraph(p)
	initial := p.InitialState
	if initial == "" {
		initial = p.States[0].ID
	}

	warnings := []ReachabilityWarning{}

	reachable := reachableFrom(initial, graph)
	for _, s := range p.States {
		if !reachable[s.ID] {
			warnings = append(warnings, ReachabilityWarning{
				Process: p.ID,
				Path:    []string{s.ID},
				Message: fmt.Sprintf("state %q is unreachable from %q", s.ID, initial),
				Level:   "warning",
			})
		}
	}

	terminal := map[string]bool{}
	for _, s := range p.States {
		terminal[s.ID] = s.Terminal
	}

	sub := stateGraph{}
	for node := range reachable {
		for _, next := range graph[node] {
			if reachable[next] {
				sub[node] = append(sub[node], next)
			}
		}
		if sub[node] == nil {
			sub[node] = []string{}
		}
	}

	for _, scc := range tarjanSCC(sub) {
		if slices.ContainsFunc(scc, func(s string) bool { return terminal[s] }) {
			continue
		}
		if leavesComponent(scc, sub) {
			continue
		}
		warnings = append(warnings, trapWarning(p.ID, scc, sub))
	}

	slices.SortStableFunc(warnings, func(a, b ReachabilityWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// stateGraph maps a state to the states its transitions lead to.
type stateGraph map[string][]string

func buildStateGraph(p model.Process) stateGraph {
	graph := stateGraph{}
	for _, s := range p.States {
		graph[s.ID] = []string{}
	}
	for _, t := range p.Transitions {
		if _, ok := graph[t.From]; !ok {
			continue
		}
		if !slices.Contains(graph[t.From], t.To) {
			graph[t.From] = append(graph[t.From], t.To)
		}
	}
	return graph
}

func reachableFrom(start string, graph stateGraph) map[string]bool {
	seen := map[string]bool{}
	if _, ok := graph[start]; !ok {
		return seen
	}
	queue := []string{start}
	seen[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range graph[cur] {
			if _, known := graph[next]; known && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func leavesComponent(scc []string, graph stateGraph) bool {
	for _, node := range scc {
		for _, next := range graph[node] {
			if !slices.Contains(scc, next) {
				return true
			}
		}
	}
	return false
}

func trapWarning(process string, scc []string, graph stateGraph) ReachabilityWarning {
	slices.Sort(scc)
	if len(scc) == 1 {
		state := scc[0]
		msg := fmt.Sprintf("state %q is not terminal and has no way out", state)
		if slices.Contains(graph[state], state) {
			msg = fmt.Sprintf("state %q only transitions to itself and never completes", state)
		}
		return ReachabilityWarning{Process: process, Path: []string{state}, Message: msg, Level: "warning"}
	}
	path := reconstructLoopPath(scc, graph)
	return ReachabilityWarning{
		Process: process,
		Path:    path,
		Message: fmt.Sprintf("states loop without reaching a terminal state: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph stateGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range sortedNames(graph) {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructLoopPath walks the component from its smallest member until
// it returns to it.
func reconstructLoopPath(scc []string, graph stateGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := map[string]bool{}

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if slices.Contains(scc, neighbor) && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
