// Package export renders a stored call graph as JSON or Mermaid.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// Document is the top-level JSON export structure.
type Document struct {
	ExportedAt string           `json:"exportedAt"`
	Backend    string           `json:"backend"`
	Stats      graph.GraphStats `json:"stats"`
	Hierarchy  *graph.Hierarchy `json:"hierarchy"`
	Clusters   []graph.Cluster  `json:"clusters"`
}

// Build reads the named classes (all when empty) from b and assembles a
// Document.
func Build(ctx context.Context, b graph.Backend, classNames []string) (*Document, error) {
	stats, err := b.FetchStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch statistics: %w", err)
	}
	h, err := graph.BuildHierarchy(ctx, b, classNames)
	if err != nil {
		return nil, fmt.Errorf("build hierarchy: %w", err)
	}
	clusters := graph.ComputeClusters(h)
	if clusters == nil {
		clusters = []graph.Cluster{}
	}
	return &Document{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Backend:    string(b.Kind()),
		Stats:      *stats,
		Hierarchy:  h,
		Clusters:   clusters,
	}, nil
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
