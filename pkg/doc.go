// Package pkg provides the core libraries for DiagramCraft diagram authoring.
//
// # Overview
//
// DiagramCraft turns a textual diagram description (mermaid flowcharts, the
// rest of the mermaid DSL through mermaid-cli, or graphviz DOT) into SVG, and
// keeps named projects with a short version history. The pkg directory is
// organized into these areas:
//
//  1. [engine] and [gateway] - compile source text into an SVG artifact
//  2. [session] - the live working copy and its asynchronous render state
//  3. [project] - persisted projects, versions and the active pointer
//  4. [controller] - binds the session to the active project
//  5. [export] - SVG passthrough and PNG/PDF rasterization
//  6. [cache], [errors], [observability], [templates] - supporting code
//
// # Architecture
//
// The data flow for one render:
//
//	text edit
//	    ↓
//	[session] (RequestRender assigns a request id)
//	    ↓
//	[gateway] (cache lookup, engine call, failure normalization)
//	    ↓
//	[engine] (graphviz in-process, flowchart → DOT, or mmdc)
//	    ↓
//	Rendered / Failed; results of older request ids are discarded
//
// # Quick Start
//
//	eng, _ := engine.New("flowchart", engine.Options{})
//	defer eng.Close()
//
//	sess := session.New(gateway.New(gateway.Config{Engine: eng}), session.Options{})
//	sess.EditSource("flowchart LR\n  A --> B")
//	ticket := sess.RequestRender(ctx)
//	ticket.Wait(ctx)
//
//	if art, ok := sess.CurrentArtifact(); ok {
//	    os.WriteFile("diagram.svg", art.SVG, 0o644)
//	}
//
// # Main Packages
//
// [engine] - Diagram compilers behind one Engine interface. The graphviz
// engine uses goccy/go-graphviz; the flowchart engine translates the mermaid
// flowchart subset to DOT; the mermaid engine shells out to mmdc; auto routes
// by the source header.
//
// [gateway] - Compile never returns an error: engine errors, timeouts and
// panics all become a failed Outcome with a message. Successful SVGs are
// memoized through [cache].
//
// [session] - Idle → Rendering → Rendered | Failed. Each render request gets
// a monotonically increasing id; only the latest id may change the visible
// outcome. After a failure the last good artifact is retained by default.
//
// [project] - Store over a Backend (memory, file, redis, sqlite, mongo).
// Names are trimmed and must be non-empty; List is ordered most recently
// updated first.
//
// [controller] - Select loads a project's stored source into the session and
// renders it; Commit writes the working copy back. Edits are debounced.
//
// [export] - Reads the session's current artifact; never recompiles.
//
// [diagram] - Shared value types: Artifact, Summary (structural outline
// parsed from SVG) and Stats (type and complexity insights).
package pkg
