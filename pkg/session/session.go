// Package session holds the transient working copy of the diagram being
// edited and the state of its most recent render.
//
// A [Session] owns one source text and drives it through the render state
// machine:
//
//	Idle → Rendering → Rendered | Failed → Rendering → ...
//
// Renders run asynchronously. Every call to [Session.RequestRender] takes a
// new, strictly increasing request id; when a compile finishes, its outcome
// is applied only if no newer request has been issued since. Overlapping
// renders therefore never regress the visible state: once the latest request
// completes, its outcome is what the session shows, regardless of the order
// in which earlier compiles finish. Compiles are never cancelled; stale
// results are dropped.
//
// The mutex inside Session only guards memory. Ordering comes entirely from
// the request id comparison.
//
// # Failure retention
//
// With [RetainLastGood] (the default) a failed render keeps the previously
// rendered artifact available through [Session.CurrentArtifact], so exports
// still work while the user fixes a typo. [DiscardOnFailure] drops it.
// [Session.Load] always drops it, so an artifact never outlives the project
// it was rendered from.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/diagramcraft/pkg/diagram"
	"github.com/matzehuels/diagramcraft/pkg/gateway"
)

// ErrClosed is reported by tickets issued after Close.
var ErrClosed = errors.New("render session is closed")

// State is the render state of a session.
type State int

const (
	Idle State = iota
	Rendering
	Rendered
	Failed
)

var stateNames = [...]string{"idle", "rendering", "rendered", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Policy decides what CurrentArtifact returns after a failed render.
type Policy int

const (
	// RetainLastGood keeps the last successful artifact after a failure.
	RetainLastGood Policy = iota
	// DiscardOnFailure drops the artifact when a render fails.
	DiscardOnFailure
)

// Options configures a Session.
type Options struct {
	Policy Policy
	Logger *log.Logger
}

// Snapshot is an immutable view of a session.
type Snapshot struct {
	State   State  `json:"state"`
	Source  string `json:"source"`
	Message string `json:"message,omitempty"`

	// Artifact is the artifact CurrentArtifact would return.
	Artifact *diagram.Artifact `json:"-"`
	Summary  diagram.Summary   `json:"summary"`
	Stats    diagram.Stats     `json:"stats"`

	// LastRequestID is the most recently issued request.
	LastRequestID uint64 `json:"last_request_id"`
	// AppliedRequestID is the request whose outcome is shown.
	AppliedRequestID uint64 `json:"applied_request_id"`

	Duration time.Duration `json:"duration"`
	Cached   bool          `json:"cached"`
}

// HasArtifact reports whether an artifact is available for export.
func (s Snapshot) HasArtifact() bool { return s.Artifact != nil }

// Ticket identifies one render request.
type Ticket struct {
	ID   uint64
	Done <-chan struct{}

	session *Session
	err     error
}

// Wait blocks until the request's compile has finished (whether or not its
// outcome was applied) and returns the session state at that point.
func (t *Ticket) Wait(ctx context.Context) (Snapshot, error) {
	if t.err != nil {
		return Snapshot{}, t.err
	}
	select {
	case <-t.Done:
		return t.session.Snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Session is a single working copy plus its render state.
type Session struct {
	compiler gateway.Compiler
	policy   Policy
	logger   *log.Logger

	mu            sync.Mutex
	source        string
	state         State
	message       string
	artifact      *diagram.Artifact
	summary       diagram.Summary
	stats         diagram.Stats
	lastRequestID uint64
	appliedID     uint64
	duration      time.Duration
	cached        bool
	onChange      func(Snapshot)
	closed        bool

	inflight sync.WaitGroup
}

// New creates an idle session with empty source.
func New(compiler gateway.Compiler, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Session{
		compiler: compiler,
		policy:   opts.Policy,
		logger:   opts.Logger,
	}
}

// OnChange registers fn to be called after every applied render outcome.
// fn runs on the compile goroutine without the session lock held.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// EditSource replaces the working source. It never compiles.
func (s *Session) EditSource(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = text
}

// Source returns the working source.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Load replaces the working copy with text from a newly selected project.
// The session becomes Idle, the retained artifact is dropped and every
// in-flight request is invalidated.
func (s *Session) Load(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = text
	s.state = Idle
	s.message = ""
	s.artifact = nil
	s.summary = diagram.Summary{}
	s.stats = diagram.Stats{}
	s.duration = 0
	s.cached = false
	// Bump the counter so late outcomes for the previous project are stale.
	s.lastRequestID++
	s.appliedID = s.lastRequestID
}

// RequestRender starts compiling the current source and returns at once.
func (s *Session) RequestRender(ctx context.Context) *Ticket {
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(done)
		return &Ticket{Done: done, session: s, err: ErrClosed}
	}
	s.lastRequestID++
	id := s.lastRequestID
	source := s.source
	s.state = Rendering
	s.inflight.Add(1)
	s.mu.Unlock()

	s.logger.Debug("render requested", "request", id)

	// The compile outlives the caller's request scope.
	cctx := context.WithoutCancel(ctx)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		out := s.compiler.Compile(cctx, source, id)
		out.RequestID = id
		s.complete(out)
	}()

	return &Ticket{ID: id, Done: done, session: s}
}

func (s *Session) complete(out gateway.Outcome) {
	s.mu.Lock()
	if out.RequestID < s.lastRequestID || out.RequestID <= s.appliedID {
		latest := s.lastRequestID
		s.mu.Unlock()
		s.logger.Debug("discarding stale render", "request", out.RequestID, "latest", latest)
		return
	}

	s.appliedID = out.RequestID
	s.duration = out.Duration
	s.cached = out.Cached
	if out.Failed() {
		s.state = Failed
		s.message = out.Message
		if s.policy == DiscardOnFailure {
			s.artifact = nil
			s.summary = diagram.Summary{}
			s.stats = diagram.Stats{}
		}
	} else {
		s.state = Rendered
		s.message = ""
		s.artifact = out.Artifact
		s.summary = out.Summary
		s.stats = out.Stats
	}
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	if snap.State == Failed {
		s.logger.Debug("render failed", "request", out.RequestID, "message", snap.Message)
	} else {
		s.logger.Debug("render applied", "request", out.RequestID, "nodes", snap.Stats.NodeCount, "cached", snap.Cached)
	}
	if fn != nil {
		fn(snap)
	}
}

// CurrentArtifact returns the artifact available for export, if any.
func (s *Session) CurrentArtifact() (*diagram.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact, s.artifact != nil
}

// State returns the current render state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the full session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:            s.state,
		Source:           s.source,
		Message:          s.message,
		Artifact:         s.artifact,
		Summary:          s.summary,
		Stats:            s.stats,
		LastRequestID:    s.lastRequestID,
		AppliedRequestID: s.appliedID,
		Duration:         s.duration,
		Cached:           s.cached,
	}
}

// Wait blocks until every in-flight compile has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close rejects further render requests and waits for in-flight compiles.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.inflight.Wait()
}
