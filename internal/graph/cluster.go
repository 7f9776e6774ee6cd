package graph

import (
	"sort"
	"strings"
)

// Cluster is a group of classes connected by resolved calls.
type Cluster struct {
	Name     string   `json:"name"`
	Classes  []string `json:"classes"`
	Cohesion float64  `json:"cohesion"`
}

// ComputeClusters finds connected components in the class-to-class call
// graph of h (resolved calls only, direction ignored).
//
// Algorithm:
//  1. Build an undirected adjacency list over class names from resolved calls.
//  2. Find connected components via BFS.
//  3. For each component with >= 2 classes, compute a cohesion score.
//
// Clusters are ordered by name.
func ComputeClusters(h *Hierarchy) []Cluster {
	adj := buildAdjacency(h)

	names := make([]string, 0, len(adj))
	for n := range adj {
		names = append(names, n)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(names))
	var clusters []Cluster
	for _, n := range names {
		if visited[n] {
			continue
		}
		component := bfsComponent(n, adj, visited)
		if len(component) < 2 {
			continue
		}
		sort.Strings(component)
		clusters = append(clusters, Cluster{
			Name:     clusterName(h, component),
			Classes:  component,
			Cohesion: computeCohesion(h, component),
		})
	}
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters
}

// buildAdjacency constructs a bidirectional adjacency list from resolved
// calls in a single pass. Self-calls are ignored.
func buildAdjacency(h *Hierarchy) map[string]map[string]bool {
	adj := make(map[string]map[string]bool, len(h.Classes))
	for _, c := range h.Classes {
		if adj[c.Name] == nil {
			adj[c.Name] = make(map[string]bool)
		}
	}
	for _, c := range h.Classes {
		for _, m := range c.Methods {
			for _, call := range m.Calls {
				if !call.Resolved || call.TargetClass == c.Name {
					continue
				}
				if adj[call.TargetClass] == nil {
					adj[call.TargetClass] = make(map[string]bool)
				}
				adj[c.Name][call.TargetClass] = true
				adj[call.TargetClass][c.Name] = true
			}
		}
	}
	return adj
}

// bfsComponent performs BFS from start on the adjacency list and returns
// all reachable nodes. It marks visited nodes as it goes.
func bfsComponent(start string, adj map[string]map[string]bool, visited map[string]bool) []string {
	var component []string
	queue := []string{start}
	visited[start] = true

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		for neighbor := range adj[node] {
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}
	return component
}

// computeCohesion is the share of the members' outgoing calls that land on
// another member. Unresolved calls count as leaving the cluster.
func computeCohesion(h *Hierarchy, component []string) float64 {
	members := make(map[string]bool, len(component))
	for _, m := range component {
		members[m] = true
	}
	internal, total := 0, 0
	for _, c := range h.Classes {
		if !members[c.Name] {
			continue
		}
		for _, m := range c.Methods {
			for _, call := range m.Calls {
				total++
				if call.Resolved && members[call.TargetClass] {
					internal++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(internal) / float64(total)
}

// clusterName is the common directory of the members' files, or the first
// member's name when they share none.
func clusterName(h *Hierarchy, component []string) string {
	members := make(map[string]bool, len(component))
	for _, m := range component {
		members[m] = true
	}
	var paths []string
	for _, c := range h.Classes {
		if members[c.Name] && c.FilePath != "" {
			paths = append(paths, c.FilePath)
		}
	}
	sort.Strings(paths)
	if prefix := longestCommonPrefix(paths); prefix != "" && prefix != "/" {
		return prefix
	}
	return component[0]
}

// longestCommonPrefix finds the longest common directory prefix among a set
// of file paths. Returns an empty string if no common prefix is found.
func longestCommonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			trimmed := strings.TrimRight(prefix, "/")
			idx := strings.LastIndex(trimmed, "/")
			if idx < 0 {
				return ""
			}
			prefix = trimmed[:idx+1]
		}
	}
	// Ensure prefix ends at a directory boundary.
	if !strings.HasSuffix(prefix, "/") {
		idx := strings.LastIndex(prefix, "/")
		if idx < 0 {
			return ""
		}
		prefix = prefix[:idx+1]
	}
	return prefix
}
