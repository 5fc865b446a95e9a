package transaction

import "sort"

// DeadlockDetector finds cycles in the cluster-wide waits-for graph and
// picks a victim to abort. Grounded directly on
// original_source/transaction/deadlock_detector.py: has_cycle is a plain
// DFS probe from each node rather than a full Tarjan SCC pass (the
// teacher's WaitForGraphAnalyzer in advanced/concurrency/rwlock.go takes
// the same DFS-per-node approach), and detect() selects the cycle
// participant with the greatest start timestamp as the victim.
type DeadlockDetector struct{}

// graph is an adjacency list over transaction ids: graph[a] contains b
// whenever a is blocked waiting on a lock held by b.
type graph map[string][]string

func buildGraph(edges []waitEdge) graph {
	g := make(graph)
	for _, e := range edges {
		g[e.From] = appendUnique(g[e.From], e.To)
	}
	return g
}

func appendUnique(ss []string, s string) []string {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// hasCycle reports whether a path exists from start back to start,
// mirroring original_source/transaction/deadlock_detector.py's
// has_cycle(start, end, visited) recursive DFS.
func hasCycle(g graph, start string) bool {
	visited := make(map[string]bool)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		for _, next := range g[node] {
			if next == start {
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(start)
}

// Detect scans the union of every site's local waits-for edges for a
// cycle and, if one exists, returns the id of the victim to abort: the
// cycle participant with the greatest Start tick, ties broken by the
// lexicographically greatest id (spec.md §4.5's "deterministic tie
// break", resolved per SPEC_FULL.md's Open Question Decisions).
func (DeadlockDetector) Detect(edges []waitEdge, txns map[string]*Transaction) (victim string, found bool) {
	g := buildGraph(edges)

	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes) // deterministic scan order

	var cycleNodes []string
	for _, n := range nodes {
		if hasCycle(g, n) {
			cycleNodes = append(cycleNodes, n)
		}
	}
	if len(cycleNodes) == 0 {
		return "", false
	}

	best := ""
	bestStart := -1
	for _, n := range cycleNodes {
		txn, ok := txns[n]
		if !ok {
			continue
		}
		switch {
		case txn.Start > bestStart:
			bestStart = txn.Start
			best = n
		case txn.Start == bestStart && n > best:
			best = n
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
