// Package diagram defines the values that flow through the render pipeline:
// compiled artifacts, their structural summary and the derived insights
// shown next to a preview.
package diagram

import (
	"strings"
	"time"
)

// Artifact is a successfully compiled diagram.
type Artifact struct {
	// SVG is the engine output, exported verbatim as diagram.svg.
	SVG []byte `json:"svg"`

	// Engine names the engine that produced SVG.
	Engine string `json:"engine"`

	// RequestID is the render request that produced this artifact.
	RequestID uint64 `json:"request_id"`

	CompiledAt time.Time `json:"compiled_at"`
}

// Node is one entry of a diagram's structure outline.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Summary is the structural outline extracted from an artifact.
type Summary struct {
	Nodes     []Node `json:"nodes"`
	EdgeCount int    `json:"edge_count"`
}

// Complexity buckets.
const (
	ComplexityLow    = "Low"
	ComplexityMedium = "Medium"
	ComplexityHigh   = "High"
)

// Stats are the insights shown for the current diagram.
type Stats struct {
	Type       string `json:"type"`
	Complexity string `json:"complexity"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
}

// ComplexityFor buckets a node count.
func ComplexityFor(nodes int) string {
	switch {
	case nodes <= 5:
		return ComplexityLow
	case nodes <= 15:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// Insights derives Stats from the source text and its summary.
func Insights(source string, s Summary) Stats {
	return Stats{
		Type:       DetectType(source),
		Complexity: ComplexityFor(len(s.Nodes)),
		NodeCount:  len(s.Nodes),
		EdgeCount:  s.EdgeCount,
	}
}

// Diagram types reported by DetectType.
const (
	TypeFlowchart = "Flowchart"
	TypeSequence  = "Sequence"
	TypeClass     = "Class"
	TypeState     = "State"
	TypeER        = "ER"
	TypeGantt     = "Gantt"
	TypePie       = "Pie"
	TypeGitGraph  = "Git Graph"
	TypeGraphviz  = "Graphviz"
	TypeUnknown   = "Unknown"
)

var typePrefixes = []struct {
	prefix string
	kind   string
}{
	{"flowchart", TypeFlowchart},
	{"graph", TypeFlowchart},
	{"sequencediagram", TypeSequence},
	{"classdiagram", TypeClass},
	{"statediagram", TypeState},
	{"erdiagram", TypeER},
	{"gantt", TypeGantt},
	{"pie", TypePie},
	{"gitgraph", TypeGitGraph},
	{"digraph", TypeGraphviz},
	{"strict", TypeGraphviz},
}

// DetectType classifies source by its header line. Blank lines and %%
// comments before the header are skipped.
func DetectType(source string) string {
	header := HeaderLine(source)
	if header == "" {
		return TypeUnknown
	}
	lower := strings.ToLower(header)

	// "graph {" and "graph name {" are DOT, "graph TD" is a flowchart.
	if strings.HasPrefix(lower, "graph") && strings.Contains(lower, "{") {
		return TypeGraphviz
	}
	for _, p := range typePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.kind
		}
	}
	return TypeUnknown
}

// HeaderLine returns the first line of source that is neither blank nor a
// %% comment, trimmed.
func HeaderLine(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		return line
	}
	return ""
}
