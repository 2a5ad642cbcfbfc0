// Package gateway turns diagram source into a render outcome.
//
// The gateway is the only place that talks to a diagram engine. Whatever the
// engine does (return SVG, return an error, panic, hang past a configured
// timeout) the caller receives an [Outcome]: either an artifact with its
// structural summary, or a human-readable failure message. Compile never
// returns an error value.
//
// Successful SVG output is memoized in a [cache.Cache] keyed by engine,
// engine options and a hash of the source, so re-rendering unchanged text is
// free. Failures are never cached.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/diagramcraft/pkg/cache"
	"github.com/matzehuels/diagramcraft/pkg/diagram"
	"github.com/matzehuels/diagramcraft/pkg/engine"
	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/observability"
)

// MsgEmptySource is the failure message for blank source text.
const MsgEmptySource = "diagram source is empty"

// Outcome is the result of one compile.
type Outcome struct {
	RequestID uint64            `json:"request_id"`
	Artifact  *diagram.Artifact `json:"-"`
	Summary   diagram.Summary   `json:"summary"`
	Stats     diagram.Stats     `json:"stats"`

	// Message describes why compilation failed. Empty on success.
	Message string `json:"message,omitempty"`

	Duration time.Duration `json:"duration"`
	Cached   bool          `json:"cached"`
}

// Failed reports whether the compile produced no artifact.
func (o Outcome) Failed() bool { return o.Artifact == nil }

// Compiler is implemented by Gateway. The render session depends on this
// interface so tests can substitute scripted outcomes.
type Compiler interface {
	Compile(ctx context.Context, source string, requestID uint64) Outcome
}

// Config configures a Gateway.
type Config struct {
	// Engine compiles the source. Required.
	Engine engine.Engine

	// KeyOpts are the engine options folded into artifact cache keys.
	KeyOpts cache.ArtifactKeyOpts

	// Cache memoizes SVG output. Nil disables caching.
	Cache cache.Cache

	// Keyer builds cache keys. Nil uses cache.DefaultKeyer.
	Keyer cache.Keyer

	// Timeout bounds a single engine call. Zero means no timeout.
	Timeout time.Duration

	Logger *log.Logger
}

// Gateway compiles diagram source through one engine.
// It is stateless apart from its cache and safe for concurrent use.
type Gateway struct {
	engine  engine.Engine
	keyOpts cache.ArtifactKeyOpts
	cache   cache.Cache
	keyer   cache.Keyer
	timeout time.Duration
	logger  *log.Logger
}

// New creates a gateway. A nil cache disables caching and a nil logger
// uses log.Default().
func New(cfg Config) *Gateway {
	g := &Gateway{
		engine:  cfg.Engine,
		keyOpts: cfg.KeyOpts,
		cache:   cfg.Cache,
		keyer:   cfg.Keyer,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if g.cache == nil {
		g.cache = cache.NewNullCache()
	}
	if g.keyer == nil {
		g.keyer = cache.NewDefaultKeyer()
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	return g
}

// Engine returns the engine the gateway compiles with.
func (g *Gateway) Engine() engine.Engine { return g.engine }

// Compile renders source and reports the outcome for requestID.
func (g *Gateway) Compile(ctx context.Context, source string, requestID uint64) (out Outcome) {
	start := time.Now()
	out.RequestID = requestID
	defer func() { out.Duration = time.Since(start) }()

	if strings.TrimSpace(source) == "" {
		out.Message = MsgEmptySource
		return out
	}
	if g.engine == nil {
		out.Message = "no diagram engine configured"
		return out
	}

	name := g.engineName(source)
	key := g.keyer.ArtifactKey(g.engine.Name(), cache.HashSource(source), g.keyOpts)

	if data, hit, err := g.cache.Get(ctx, key); err == nil && hit && len(data) > 0 {
		observability.Cache().OnCacheHit(ctx, "artifact")
		g.logger.Debug("artifact cache hit", "request", requestID, "engine", name)
		out.Cached = true
		g.fill(&out, source, name, data)
		return out
	}
	observability.Cache().OnCacheMiss(ctx, "artifact")

	observability.Compile().OnCompileStart(ctx, name, requestID)
	svg, err := g.render(ctx, source, requestID)
	observability.Compile().OnCompileComplete(ctx, name, requestID, time.Since(start), err)

	if err != nil {
		out.Message = failureMessage(err, g.timeout)
		g.logger.Debug("compile failed", "request", requestID, "engine", name, "error", out.Message)
		return out
	}

	if err := g.cache.Set(ctx, key, svg, cache.TTLArtifact); err == nil {
		observability.Cache().OnCacheSet(ctx, "artifact", len(svg))
	} else {
		g.logger.Debug("artifact cache write failed", "error", err)
	}

	g.fill(&out, source, name, svg)
	g.logger.Debug("compiled diagram",
		"request", requestID,
		"engine", name,
		"nodes", out.Stats.NodeCount,
		"duration", time.Since(start))
	return out
}

func (g *Gateway) fill(out *Outcome, source, engineName string, svg []byte) {
	out.Artifact = &diagram.Artifact{
		SVG:        svg,
		Engine:     engineName,
		RequestID:  out.RequestID,
		CompiledAt: time.Now(),
	}
	out.Summary = diagram.Summarize(svg)
	out.Stats = diagram.Insights(source, out.Summary)
}

// render calls the engine, converting a panic into an error.
func (g *Gateway) render(ctx context.Context, source string, requestID uint64) (svg []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			svg = nil
			err = fmt.Errorf("diagram engine crashed: %v", r)
		}
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	svg, err = g.engine.Render(ctx, engine.UniqueID(requestID, time.Now().UnixNano()), source)
	if err == nil && len(svg) == 0 {
		err = errors.New("diagram engine produced no output")
	}
	return svg, err
}

// engineName resolves auto-routing so artifacts record the engine that
// actually ran.
func (g *Gateway) engineName(source string) string {
	if r, ok := g.engine.(interface{ Route(string) engine.Engine }); ok {
		return r.Route(source).Name()
	}
	return g.engine.Name()
}

func failureMessage(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if timeout > 0 {
			return fmt.Sprintf("rendering took longer than %s", timeout)
		}
		return "rendering timed out"
	case errors.Is(err, context.Canceled):
		return "rendering was cancelled"
	}
	msg := strings.TrimSpace(derrors.UserMessage(err))
	if msg == "" {
		return "diagram could not be rendered"
	}
	return msg
}
