package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// CycleWarning represents a cycle in the block reference graph.
//
// Cycles are warnings here: the engine does not validate them up front, it
// fails the request that re-enters a block with engine.CycleError.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["A", "B", "A"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles performs static cycle analysis on a block registry.
//
// The algorithm:
//  1. Build the parent -> child graph from childBlocks (unknown children
//     are skipped; Validate reports them)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-reference as a warning
//
// Warnings are ordered by the first block of their path.
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(registry ir.BlockRegistry) []CycleWarning {
	if len(registry) == 0 {
		return []CycleWarning{}
	}

	graph := buildBlockGraph(registry)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Path[0] < warnings[j].Path[0]
	})
	return warnings
}

// blockGraph maps block name -> child block names, in declaration order.
type blockGraph map[string][]string

func buildBlockGraph(registry ir.BlockRegistry) blockGraph {
	graph := make(blockGraph, len(registry))
	for _, name := range registry.Names() {
		graph[name] = []string{}
		for _, child := range registry[name].ChildBlocks {
			if _, ok := registry[child]; ok {
				graph[name] = append(graph[name], child)
			}
		}
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph blockGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in sorted order so results are deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph blockGraph) [][]string {
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

		// v is a root node: pop the stack and emit an SCC
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

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
// The path starts at the SCC's smallest name.
func cycleSCCToWarning(scc []string, graph blockGraph) CycleWarning {
	sorted := append([]string(nil), scc...)
	sort.Strings(sorted)

	if len(sorted) == 1 {
		name := sorted[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Block references itself: %s -> %s", name, name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(sorted, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Block cycle detected: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the first node, follow edges to other SCC members,
// continue until we return to the start node.
func reconstructCyclePath(scc []string, graph blockGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
