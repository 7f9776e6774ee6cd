package export

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// GenerateMermaid produces a Mermaid flowchart of h. Classes are nodes,
// grouped into subgraphs by cluster; each resolved call between two
// different classes becomes an arrow labelled with the callee. Unresolved
// calls are not drawn.
func GenerateMermaid(h *graph.Hierarchy, clusters []graph.Cluster) string {
	// Build class -> ID mapping for Mermaid (alphanumeric only).
	nodeIDs := make(map[string]string)
	var order []string
	for _, c := range h.Classes {
		if _, ok := nodeIDs[c.Name]; ok {
			continue
		}
		nodeIDs[c.Name] = fmt.Sprintf("C%d", len(nodeIDs))
		order = append(order, c.Name)
	}
	getID := func(name string) string {
		if id, ok := nodeIDs[name]; ok {
			return id
		}
		id := fmt.Sprintf("C%d", len(nodeIDs))
		nodeIDs[name] = id
		order = append(order, name)
		return id
	}

	var sb strings.Builder
	sb.WriteString("flowchart LR\n")

	clustered := make(map[string]bool)
	for i, c := range clusters {
		if len(c.Classes) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  subgraph K%d[\"%s\"]\n", i, escape(shortPath(c.Name)))
		for _, member := range c.Classes {
			clustered[member] = true
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", getID(member), escape(member))
		}
		sb.WriteString("  end\n")
	}
	for _, name := range order {
		if !clustered[name] {
			fmt.Fprintf(&sb, "  %s[\"%s\"]\n", nodeIDs[name], escape(name))
		}
	}

	type arrow struct{ from, to, label string }
	seen := make(map[arrow]bool)
	var arrows []arrow
	for _, c := range h.Classes {
		for _, m := range c.Methods {
			for _, call := range m.Calls {
				if !call.Resolved || call.TargetClass == c.Name {
					continue
				}
				a := arrow{c.Name, call.TargetClass, m.Name + " → " + call.CalleeName}
				if !seen[a] {
					seen[a] = true
					arrows = append(arrows, a)
				}
			}
		}
	}
	sort.Slice(arrows, func(i, j int) bool {
		if arrows[i].from != arrows[j].from {
			return arrows[i].from < arrows[j].from
		}
		if arrows[i].to != arrows[j].to {
			return arrows[i].to < arrows[j].to
		}
		return arrows[i].label < arrows[j].label
	})
	for _, a := range arrows {
		fmt.Fprintf(&sb, "  %s -->|\"%s\"| %s\n", getID(a.from), escape(a.label), getID(a.to))
	}
	return sb.String()
}

// escape replaces characters Mermaid treats as syntax inside quoted labels.
func escape(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "<", "#lt;", ">", "#gt;").Replace(s)
}

// shortPath returns the last 2 path segments for readability.
func shortPath(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) <= 2 {
		return p
	}
	return path.Join(parts[len(parts)-2:]...) + "/"
}
