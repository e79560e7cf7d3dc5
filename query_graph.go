package trellis

import (
	"fmt"
	"sort"

	"github.com/jward/trellis/internal/store"
)

// dependencyEdgeTypes are the relationship types the dependency graph
// traverses.
var dependencyEdgeTypes = []string{"calls", "depends_on", "imports"}

// DependencyNode is a block reachable in the dependency graph with its
// BFS distance from the root.
type DependencyNode struct {
	Block *store.Block
	Depth int
}

// DependencyEdge is one traversed relationship.
type DependencyEdge struct {
	SourceID int64
	TargetID int64
	Type     string
}

// DependencyGraph is the transitive closure over calls, depends_on, and
// imports edges from a root block. Cycles are allowed and reported as
// block-id paths that start and end on the same block.
type DependencyGraph struct {
	Root   int64
	Nodes  []DependencyNode
	Edges  []DependencyEdge
	Cycles [][]int64
	Depth  int
}

// graphData holds bulk-loaded adjacency for the dependency edge types.
// Edges are loaded once and traversed in memory, avoiding N+1 queries.
type graphData struct {
	forward map[int64][]DependencyEdge
}

func (q *QueryBuilder) buildDependencyData() (*graphData, error) {
	data := &graphData{forward: make(map[int64][]DependencyEdge)}
	for _, t := range dependencyEdgeTypes {
		rels, err := q.store.RelationshipsByType(t)
		if err != nil {
			return nil, fmt.Errorf("dependency graph: load %s: %w", t, err)
		}
		for _, r := range rels {
			if r.TargetBlockID == nil {
				continue // unresolved edges are not traversable
			}
			edge := DependencyEdge{SourceID: r.SourceBlockID, TargetID: *r.TargetBlockID, Type: r.Type}
			data.forward[r.SourceBlockID] = append(data.forward[r.SourceBlockID], edge)
		}
	}
	// Deterministic traversal order.
	for id := range data.forward {
		edges := data.forward[id]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].TargetID != edges[j].TargetID {
				return edges[i].TargetID < edges[j].TargetID
			}
			return edges[i].Type < edges[j].Type
		})
	}
	return data, nil
}

// DependencyGraph returns the transitive dependency closure of a block
// up to depth. A negative depth is unbounded. Returns nil when the block
// does not exist.
func (q *QueryBuilder) DependencyGraph(blockID int64, depth int) (*DependencyGraph, error) {
	root, err := q.store.BlockByID(blockID)
	if err != nil {
		return nil, fmt.Errorf("dependency graph: %w", err)
	}
	if root == nil {
		return nil, nil
	}

	data, err := q.buildDependencyData()
	if err != nil {
		return nil, err
	}

	graph := &DependencyGraph{
		Root:  blockID,
		Nodes: []DependencyNode{{Block: root, Depth: 0}},
	}

	visited := map[int64]int{blockID: 0}
	queue := []int64{blockID}
	var edges []DependencyEdge

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		curDepth := visited[current]
		if depth >= 0 && curDepth >= depth {
			continue
		}
		for _, edge := range data.forward[current] {
			edges = append(edges, edge)
			if _, seen := visited[edge.TargetID]; !seen {
				visited[edge.TargetID] = curDepth + 1
				if curDepth+1 > graph.Depth {
					graph.Depth = curDepth + 1
				}
				queue = append(queue, edge.TargetID)
			}
		}
	}

	// Bulk-load reached blocks, root excluded (already present).
	var ids []int64
	for id := range visited {
		if id != blockID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b, err := q.store.BlockByID(id)
		if err != nil {
			return nil, fmt.Errorf("dependency graph: load block %d: %w", id, err)
		}
		if b != nil {
			graph.Nodes = append(graph.Nodes, DependencyNode{Block: b, Depth: visited[id]})
		}
	}

	// Dedupe edges within the visited subgraph.
	seenEdge := make(map[DependencyEdge]bool)
	for _, e := range edges {
		if _, ok := visited[e.TargetID]; !ok {
			continue
		}
		if !seenEdge[e] {
			seenEdge[e] = true
			graph.Edges = append(graph.Edges, e)
		}
	}

	graph.Cycles = findCycles(visited, data)
	return graph, nil
}

// findCycles runs a DFS over the visited subgraph and reports each cycle
// once as a path closing on its smallest member.
func findCycles(visited map[int64]int, data *graphData) [][]int64 {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int, len(visited))
	var stack []int64
	var cycles [][]int64
	seen := make(map[string]bool)

	var dfs func(id int64)
	dfs = func(id int64) {
		color[id] = gray
		stack = append(stack, id)
		for _, edge := range data.forward[id] {
			next := edge.TargetID
			if _, inGraph := visited[next]; !inGraph {
				continue
			}
			switch color[next] {
			case white:
				dfs(next)
			case gray:
				// Back edge: slice the cycle out of the stack.
				start := len(stack) - 1
				for start >= 0 && stack[start] != next {
					start--
				}
				if start >= 0 {
					cycle := append(append([]int64{}, stack[start:]...), next)
					cycle = canonicalCycle(cycle)
					key := fmt.Sprint(cycle)
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, cycle)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}

	var roots []int64
	for id := range visited {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	for _, id := range roots {
		if color[id] == white {
			dfs(id)
		}
	}
	return cycles
}

// canonicalCycle rotates a cycle so it starts (and ends) on its smallest
// block id, making reports stable across traversal orders.
func canonicalCycle(cycle []int64) []int64 {
	body := cycle[:len(cycle)-1]
	minIdx := 0
	for i, id := range body {
		if id < body[minIdx] {
			minIdx = i
		}
	}
	rotated := append(append([]int64{}, body[minIdx:]...), body[:minIdx]...)
	return append(rotated, rotated[0])
}

// CouplingMetrics are the efferent/afferent counts and instability of
// one block.
type CouplingMetrics struct {
	BlockID     int64   `json:"block_id"`
	Efferent    int     `json:"efferent"`
	Afferent    int     `json:"afferent"`
	Instability float64 `json:"instability"`
}

// Coupling computes efferent and afferent coupling for a block over its
// distinct typed edges. Instability is efferent/(efferent+afferent),
// defined as 0 when the block has no edges at all.
func (q *QueryBuilder) Coupling(blockID int64) (*CouplingMetrics, error) {
	outbound, err := q.store.RelationshipsBySource(blockID)
	if err != nil {
		return nil, fmt.Errorf("coupling: %w", err)
	}
	inbound, err := q.store.RelationshipsByTarget(blockID)
	if err != nil {
		return nil, fmt.Errorf("coupling: %w", err)
	}

	m := &CouplingMetrics{
		BlockID:  blockID,
		Efferent: len(outbound),
		Afferent: len(inbound),
	}
	if total := m.Efferent + m.Afferent; total > 0 {
		m.Instability = float64(m.Efferent) / float64(total)
	}
	return m, nil
}
