package engine

import (
	"context"
	"errors"

	"github.com/matzehuels/diagramcraft/pkg/diagram"
)

// Auto picks an engine from the source's header line:
//   - DOT ("digraph", "graph {", "strict ...") goes to graphviz
//   - mermaid flowcharts go to the built-in flowchart engine
//   - every other mermaid diagram goes to mermaid-cli
//
// When the built-in flowchart engine rejects a flowchart and mermaid-cli is
// installed, the source is retried there since the built-in engine only
// covers a subset of the syntax.
type Auto struct {
	dot       *Graphviz
	flowchart *Flowchart
	mermaid   *Mermaid
}

// NewAuto returns an auto-routing engine. Graphviz and flowchart share one
// graphviz runtime.
func NewAuto(opts Options) *Auto {
	dot := NewGraphviz(opts)
	return &Auto{
		dot:       dot,
		flowchart: NewFlowchart(dot, opts),
		mermaid:   NewMermaid(opts),
	}
}

// Name implements Engine.
func (a *Auto) Name() string { return NameAuto }

// Route returns the engine that would handle source.
func (a *Auto) Route(source string) Engine {
	switch diagram.DetectType(source) {
	case diagram.TypeGraphviz:
		return a.dot
	case diagram.TypeFlowchart:
		return a.flowchart
	}
	return a.mermaid
}

// Render implements Engine.
func (a *Auto) Render(ctx context.Context, id, source string) ([]byte, error) {
	e := a.Route(source)
	svg, err := e.Render(ctx, id, source)
	if err != nil && e == Engine(a.flowchart) && a.mermaid.Available() && !isContextErr(err) {
		if full, ferr := a.mermaid.Render(ctx, id, source); ferr == nil {
			return full, nil
		}
	}
	return svg, err
}

// Close releases the shared graphviz runtime.
func (a *Auto) Close() error {
	return a.dot.Close()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
