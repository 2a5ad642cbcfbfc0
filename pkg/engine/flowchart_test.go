package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/diagramcraft/pkg/diagram"
)

func TestParseFlowchart_Basic(t *testing.T) {
	chart, err := ParseFlowchart("flowchart TB\nA-->B")
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}
	if len(chart.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(chart.Nodes))
	}
	if len(chart.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(chart.Edges))
	}
	e := chart.Edges[0]
	if e.From != "A" || e.To != "B" || e.Head != "arrow" || e.Style != "solid" {
		t.Errorf("edge = %+v", e)
	}
}

func TestParseFlowchart_Directions(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"flowchart TB", "TB"},
		{"flowchart TD", "TB"},
		{"flowchart LR", "LR"},
		{"graph RL", "RL"},
		{"graph bt", "BT"},
		{"flowchart", "TB"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			chart, err := ParseFlowchart(tt.header + "\nA")
			if err != nil {
				t.Fatalf("ParseFlowchart() error: %v", err)
			}
			if chart.Direction != tt.want {
				t.Errorf("Direction = %q, want %q", chart.Direction, tt.want)
			}
		})
	}
}

func TestParseFlowchart_Shapes(t *testing.T) {
	tests := []struct {
		stmt      string
		wantShape string
		wantLabel string
	}{
		{"A", ShapeRect, "A"},
		{"A[Box]", ShapeRect, "Box"},
		{"A(Rounded)", ShapeRound, "Rounded"},
		{"A([Stadium])", ShapeStadium, "Stadium"},
		{"A{Choice}", ShapeDiamond, "Choice"},
		{"A((Circle))", ShapeCircle, "Circle"},
		{"A{{Hex}}", ShapeHexagon, "Hex"},
		{"A[/Input/]", ShapeParallelogram, "Input"},
		{"A[\\Top/]", ShapeTrapezoid, "Top"},
		{"A[/Bottom\\]", ShapeInvTrapezoid, "Bottom"},
		{"A>Flag]", ShapeFlag, "Flag"},
		{`A["Quoted label"]`, ShapeRect, "Quoted label"},
		{"A[Two<br/>lines]", ShapeRect, "Two\nlines"},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			chart, err := ParseFlowchart("flowchart TB\n" + tt.stmt)
			if err != nil {
				t.Fatalf("ParseFlowchart() error: %v", err)
			}
			if len(chart.Nodes) != 1 {
				t.Fatalf("nodes = %d, want 1", len(chart.Nodes))
			}
			n := chart.Nodes[0]
			if n.Shape != tt.wantShape {
				t.Errorf("Shape = %q, want %q", n.Shape, tt.wantShape)
			}
			if n.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", n.Label, tt.wantLabel)
			}
		})
	}
}

func TestParseFlowchart_Links(t *testing.T) {
	tests := []struct {
		stmt      string
		wantStyle string
		wantHead  string
		wantLabel string
		wantBoth  bool
	}{
		{"A --> B", "solid", "arrow", "", false},
		{"A --- B", "solid", "none", "", false},
		{"A -.-> B", "dotted", "arrow", "", false},
		{"A ==> B", "thick", "arrow", "", false},
		{"A --x B", "solid", "cross", "", false},
		{"A --o B", "solid", "circle", "", false},
		{"A <--> B", "solid", "arrow", "", true},
		{"A -->|yes| B", "solid", "arrow", "yes", false},
		{"A -- maybe --> B", "solid", "arrow", "maybe", false},
		{"A == strong ==> B", "thick", "arrow", "strong", false},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			chart, err := ParseFlowchart("flowchart LR\n" + tt.stmt)
			if err != nil {
				t.Fatalf("ParseFlowchart() error: %v", err)
			}
			if len(chart.Edges) != 1 {
				t.Fatalf("edges = %d, want 1", len(chart.Edges))
			}
			e := chart.Edges[0]
			if e.Style != tt.wantStyle || e.Head != tt.wantHead || e.Label != tt.wantLabel || e.Both != tt.wantBoth {
				t.Errorf("edge = %+v, want style=%s head=%s label=%q both=%v",
					e, tt.wantStyle, tt.wantHead, tt.wantLabel, tt.wantBoth)
			}
		})
	}
}

func TestParseFlowchart_ChainsAndGroups(t *testing.T) {
	chart, err := ParseFlowchart("flowchart TB\nA --> B --> C\nD & E --> F")
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}
	if len(chart.Nodes) != 6 {
		t.Errorf("nodes = %d, want 6", len(chart.Nodes))
	}

	var got []string
	for _, e := range chart.Edges {
		got = append(got, e.From+"->"+e.To)
	}
	want := "A->B B->C D->F E->F"
	if strings.Join(got, " ") != want {
		t.Errorf("edges = %v, want %s", got, want)
	}
}

func TestParseFlowchart_RedeclarationKeepsShape(t *testing.T) {
	chart, err := ParseFlowchart("flowchart TB\nA --> B\nB{Decide} --> C\nB --> D")
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}
	var b *ChartNode
	for _, n := range chart.Nodes {
		if n.ID == "B" {
			b = n
		}
	}
	if b == nil {
		t.Fatal("node B missing")
	}
	if b.Shape != ShapeDiamond || b.Label != "Decide" {
		t.Errorf("B = %+v, want diamond labelled Decide", b)
	}
}

func TestParseFlowchart_DefaultSource(t *testing.T) {
	src := "flowchart TB\nA[Sensing Layer] --> B[Edge Layer]\nB --> C[Communication Layer]\nC --> D[Cloud Layer]\nD --> E[Application Layer]\nE --> B"
	chart, err := ParseFlowchart(src)
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}
	if len(chart.Nodes) != 5 || len(chart.Edges) != 5 {
		t.Errorf("nodes=%d edges=%d, want 5 and 5", len(chart.Nodes), len(chart.Edges))
	}
}

func TestParseFlowchart_Subgraphs(t *testing.T) {
	src := `flowchart TB
subgraph edge [Edge Tier]
  S1 --> G
  subgraph inner
    G2
  end
end
G --> Cloud`
	chart, err := ParseFlowchart(src)
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}
	if len(chart.Clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(chart.Clusters))
	}
	outer, inner := chart.Clusters[0], chart.Clusters[1]
	if outer.ID != "edge" || outer.Title != "Edge Tier" {
		t.Errorf("outer = %+v", outer)
	}
	if inner.Parent != outer {
		t.Error("inner cluster should be nested in outer")
	}
	if strings.Join(outer.Nodes, ",") != "S1,G" {
		t.Errorf("outer nodes = %v, want [S1 G]", outer.Nodes)
	}

	dot := chart.DOT(Options{})
	if !strings.Contains(dot, `subgraph "cluster_edge"`) {
		t.Error("DOT() missing outer cluster")
	}
	if !strings.Contains(dot, `subgraph "cluster_inner"`) {
		t.Error("DOT() missing inner cluster")
	}
}

func TestParseFlowchart_IgnoredStatements(t *testing.T) {
	src := `flowchart LR
%% a comment
A --> B; B --> C
classDef hot fill:#f00
class A hot
style B stroke:#333
click A callback`
	chart, err := ParseFlowchart(src)
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}
	if len(chart.Nodes) != 3 || len(chart.Edges) != 2 {
		t.Errorf("nodes=%d edges=%d, want 3 and 2", len(chart.Nodes), len(chart.Edges))
	}
}

func TestParseFlowchart_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr []string
	}{
		{"empty", "", []string{"diagram source is empty"}},
		{"comments only", "%% nothing\n\n", []string{"diagram source is empty"}},
		{"dangling link", "flowchart TB\nA-->", []string{"line 2", `expected a node after "-->"`}},
		{"bad header", "sequenceDiagram\nA->>B: hi", []string{"line 1", "flowchart"}},
		{"bad direction", "flowchart XY\nA", []string{"line 1", "unknown direction"}},
		{"unterminated shape", "flowchart TB\nA[open", []string{"line 2", "unterminated shape"}},
		{"stray end", "flowchart TB\nend", []string{"line 2", "without matching subgraph"}},
		{"open subgraph", "flowchart TB\nsubgraph one\nA", []string{"missing \"end\""}},
		{"bad link", "flowchart TB\nA ~~ B", []string{"line 2", "expected a link"}},
		{"unterminated label", "flowchart TB\nA -->|yes B", []string{"line 2", "unterminated link label"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFlowchart(tt.source)
			if err == nil {
				t.Fatal("ParseFlowchart() expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}

func TestChartDOT(t *testing.T) {
	chart, err := ParseFlowchart("flowchart LR\nA[Start \"here\"] -.->|maybe| B((End))")
	if err != nil {
		t.Fatalf("ParseFlowchart() error: %v", err)
	}

	dot := chart.DOT(Options{Theme: ThemeDark, FontSize: 12})

	for _, want := range []string{
		"digraph G {",
		"rankdir=LR;",
		`"A" [label="Start \"here\"", shape=box];`,
		`"B" [label="End", shape=circle];`,
		`"A" -> "B" [label="maybe", style=dashed];`,
		`fillcolor="#1f2020"`,
		"fontsize=12",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT() missing %q\n%s", want, dot)
		}
	}
}

func TestFlowchartRender(t *testing.T) {
	f := NewFlowchart(NewGraphviz(Options{}), Options{})
	defer f.Close()

	svg, err := f.Render(context.Background(), "diagram_1_1", "flowchart TB\nA[Sensing Layer]-->B")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	s := diagram.Summarize(svg)
	if len(s.Nodes) != 2 {
		t.Errorf("summary nodes = %d, want 2", len(s.Nodes))
	}
	if s.EdgeCount != 1 {
		t.Errorf("summary edges = %d, want 1", s.EdgeCount)
	}
	if s.Nodes[0].Label != "Sensing Layer" {
		t.Errorf("first label = %q, want Sensing Layer", s.Nodes[0].Label)
	}
}
