// Package engine adapts diagram compilers to a single interface.
//
// An [Engine] turns diagram source text into SVG markup or a descriptive
// error. The available engines are:
//   - graphviz: DOT source rendered in-process with go-graphviz
//   - flowchart: the flowchart subset of the mermaid language, translated to
//     DOT and rendered through graphviz (no external tools needed)
//   - mermaid: the full mermaid language through the mermaid-cli (mmdc) binary
//   - auto: picks one of the above from the source's header line
//
// Engine configuration is built once at startup from [Options] and injected
// wherever an engine is needed. Engines are immutable after construction and
// safe for concurrent use.
package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/diagramcraft/pkg/cache"
	"github.com/matzehuels/diagramcraft/pkg/errors"
)

// Engine names accepted by New.
const (
	NameAuto      = "auto"
	NameFlowchart = "flowchart"
	NameGraphviz  = "graphviz"
	NameMermaid   = "mermaid"
)

// Names lists every engine name accepted by New.
var Names = []string{NameAuto, NameFlowchart, NameGraphviz, NameMermaid}

// Themes shared by all engines. They follow mermaid's theme names.
const (
	ThemeDefault = "default"
	ThemeDark    = "dark"
	ThemeForest  = "forest"
	ThemeNeutral = "neutral"
)

// Themes lists the accepted theme names.
var Themes = []string{ThemeDefault, ThemeDark, ThemeForest, ThemeNeutral}

// Engine compiles diagram source into SVG.
type Engine interface {
	// Name identifies the engine in logs and cache keys.
	Name() string

	// Render compiles source. id is unique per call and may be embedded in
	// the output (mermaid uses it as the SVG element id). A returned error
	// describes why the source was rejected.
	Render(ctx context.Context, id, source string) ([]byte, error)

	// Close releases engine resources.
	Close() error
}

// Options is the process-wide engine configuration.
type Options struct {
	// Theme is one of Themes. Empty means ThemeDefault.
	Theme string

	// Background is a CSS/Graphviz color, e.g. "transparent" or "white".
	Background string

	// FontSize is the base font size in points for graphviz-backed engines.
	FontSize int

	// MermaidBin is the mermaid-cli executable. Empty means "mmdc" on PATH.
	MermaidBin string

	Logger *log.Logger
}

// WithDefaults returns a copy of o with empty fields filled in.
func (o Options) WithDefaults() Options {
	if o.Theme == "" {
		o.Theme = ThemeDefault
	}
	if o.Background == "" {
		o.Background = "transparent"
	}
	if o.FontSize <= 0 {
		o.FontSize = 14
	}
	if o.MermaidBin == "" {
		o.MermaidBin = "mmdc"
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Validate reports unsupported option values.
func (o Options) Validate() error {
	if o.Theme != "" && !slices.Contains(Themes, o.Theme) {
		return errors.New(errors.ErrCodeInvalidInput, "unknown theme %q (want one of %s)", o.Theme, strings.Join(Themes, ", "))
	}
	return nil
}

// CacheOpts returns the options that change an engine's output, for use in
// artifact cache keys.
func (o Options) CacheOpts() cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{Theme: o.Theme, Background: o.Background, FontSize: o.FontSize}
}

// New constructs the named engine.
func New(name string, opts Options) (Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	switch name {
	case NameGraphviz:
		return NewGraphviz(opts), nil
	case NameFlowchart:
		return NewFlowchart(NewGraphviz(opts), opts), nil
	case NameMermaid:
		return NewMermaid(opts), nil
	case NameAuto, "":
		return NewAuto(opts), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidEngine, "unknown engine %q (want one of %s)", name, strings.Join(Names, ", "))
}

// UniqueID returns the id passed to Render for a render request.
func UniqueID(requestID uint64, nanos int64) string {
	return fmt.Sprintf("diagram_%d_%d", requestID, nanos)
}
