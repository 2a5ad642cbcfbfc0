package engine

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/goccy/go-graphviz"
)

// Graphviz renders DOT source in-process.
//
// The graphviz runtime is created on first use and reused for every render
// until Close. Renders are serialized on it.
type Graphviz struct {
	opts Options

	once    sync.Once
	initErr error
	mu      sync.Mutex
	gv      *graphviz.Graphviz
}

// NewGraphviz returns a DOT engine. The runtime is not started until the
// first Render.
func NewGraphviz(opts Options) *Graphviz {
	return &Graphviz{opts: opts.WithDefaults()}
}

// Name implements Engine.
func (g *Graphviz) Name() string { return NameGraphviz }

func (g *Graphviz) init(ctx context.Context) error {
	g.once.Do(func() {
		gv, err := graphviz.New(ctx)
		if err != nil {
			g.initErr = fmt.Errorf("init graphviz: %w", err)
			return
		}
		g.gv = gv
	})
	return g.initErr
}

// Render implements Engine. The id is not used by graphviz output.
func (g *Graphviz) Render(ctx context.Context, _ string, source string) ([]byte, error) {
	if err := g.init(ctx); err != nil {
		return nil, err
	}

	graph, err := graphviz.ParseBytes([]byte(source))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	if graph == nil {
		return nil, fmt.Errorf("parse DOT: no graph found")
	}
	defer graph.Close()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gv == nil {
		return nil, fmt.Errorf("graphviz engine is closed")
	}

	var buf bytes.Buffer
	if err := g.gv.Render(ctx, graph, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

// Close releases the graphviz runtime. The runtime reports the last parse
// error it saw on close; that belongs to an earlier Render and is only
// logged.
func (g *Graphviz) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gv == nil {
		return nil
	}
	if err := g.gv.Close(); err != nil {
		g.opts.Logger.Debug("graphviz runtime closed", "last_error", err)
	}
	g.gv = nil
	return nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces graphviz's pt-sized root element with a plain
// viewBox plus pixel width and height, so browsers and rasterizers agree on
// the intrinsic size.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	replaced := false
	return svgTagRe.ReplaceAllFunc(svg, func(tag []byte) []byte {
		if replaced {
			return tag
		}
		replaced = true
		return []byte(root)
	})
}
