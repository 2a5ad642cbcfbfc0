package templates

import (
	"strings"
	"testing"

	"github.com/matzehuels/diagramcraft/pkg/diagram"
	"github.com/matzehuels/diagramcraft/pkg/engine"
	"github.com/matzehuels/diagramcraft/pkg/errors"
)

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 8 {
		t.Fatalf("All() = %d templates, want 8", len(all))
	}

	wantTypes := map[string]string{
		"flowchart":    diagram.TypeFlowchart,
		"sequence":     diagram.TypeSequence,
		"classDiagram": diagram.TypeClass,
		"stateDiagram": diagram.TypeState,
		"erDiagram":    diagram.TypeER,
		"gantt":        diagram.TypeGantt,
		"pie":          diagram.TypePie,
		"gitGraph":     diagram.TypeGitGraph,
	}
	for _, tpl := range all {
		if tpl.Source == "" || tpl.Name == "" || tpl.Description == "" {
			t.Errorf("template %q is incomplete: %+v", tpl.Key, tpl)
		}
		if strings.HasSuffix(tpl.Source, "\n") {
			t.Errorf("template %q keeps a trailing newline", tpl.Key)
		}
		if got := diagram.DetectType(tpl.Source); got != wantTypes[tpl.Key] {
			t.Errorf("DetectType(%s) = %q, want %q", tpl.Key, got, wantTypes[tpl.Key])
		}
	}
}

func TestGet(t *testing.T) {
	tpl, err := Get("FLOWCHART")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if tpl.Key != "flowchart" || len(tpl.Shapes) != 8 {
		t.Errorf("Get() = %+v", tpl)
	}

	if _, err := Get("mindmap"); !errors.Is(err, errors.ErrCodeTemplateNotFound) {
		t.Errorf("Get(mindmap) error = %v, want TEMPLATE_NOT_FOUND", err)
	}
}

func TestDefaultSource(t *testing.T) {
	src := DefaultSource()
	if !strings.HasPrefix(src, "flowchart TB\nA[Sensing Layer] --> B[Edge Layer]") {
		t.Errorf("DefaultSource() = %q", src)
	}
}

func TestFlowchartTemplatesParse(t *testing.T) {
	for _, src := range []string{DefaultSource(), mustGet(t, "flowchart").Source} {
		if _, err := engine.ParseFlowchart(src); err != nil {
			t.Errorf("ParseFlowchart() error: %v\n%s", err, src)
		}
	}
}

func TestShapeAndArrowSyntaxParse(t *testing.T) {
	for _, s := range FlowchartShapes {
		if _, err := engine.ParseFlowchart("flowchart TB\n" + s.Syntax); err != nil {
			t.Errorf("shape %s: %v", s.Name, err)
		}
	}
	for _, a := range Arrows {
		chart, err := engine.ParseFlowchart("flowchart TB\n" + a.Syntax)
		if err != nil {
			t.Errorf("arrow %q: %v", a.Syntax, err)
			continue
		}
		if len(chart.Edges) != 1 {
			t.Errorf("arrow %q: %d edges", a.Syntax, len(chart.Edges))
		}
	}
}

func mustGet(t *testing.T, key string) Template {
	t.Helper()
	tpl, err := Get(key)
	if err != nil {
		t.Fatal(err)
	}
	return tpl
}
