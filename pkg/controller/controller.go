// Package controller coordinates the project store and the render session.
//
// A [Controller] owns exactly one [session.Session], the working copy of the
// active project. Selecting a project loads its stored source into the
// session and renders it; edits stay in the session until [Controller.Commit]
// writes them back. The studio, the HTTP API and the CLI all drive the same
// controller operations.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/project"
	"github.com/matzehuels/diagramcraft/pkg/session"
)

// Viewport zoom bounds.
const (
	MinZoom     = 0.25
	MaxZoom     = 4.0
	ZoomStep    = 0.25
	DefaultZoom = 1.0
)

// Options configures a Controller.
type Options struct {
	// Debounce delays the automatic render after an edit. Each edit restarts
	// the delay. Zero disables automatic renders.
	Debounce time.Duration

	// DiscardOnSwitch drops uncommitted edits when another project is
	// selected. By default they are committed to the project being left.
	DiscardOnSwitch bool

	Logger *log.Logger
}

// Status is the controller state shown by the studio and the API.
type Status struct {
	ActiveID string           `json:"active_id,omitempty"`
	Dirty    bool             `json:"dirty"`
	Zoom     float64          `json:"zoom"`
	Session  session.Snapshot `json:"session"`
}

// Controller ties one Session to a Store.
type Controller struct {
	store           *project.Store
	session         *session.Session
	debounce        time.Duration
	discardOnSwitch bool
	logger          *log.Logger

	mu       sync.Mutex
	activeID string
	dirty    bool
	// deselected is set when the active project was deleted; rendering
	// stays blocked until a project is selected again.
	deselected bool
	zoom       float64
	timer      *time.Timer
	closed     bool
}

// New creates a controller. The caller keeps ownership of store; the
// controller owns sess and closes it in Close.
func New(store *project.Store, sess *session.Session, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Controller{
		store:           store,
		session:         sess,
		debounce:        opts.Debounce,
		discardOnSwitch: opts.DiscardOnSwitch,
		logger:          opts.Logger,
		zoom:            DefaultZoom,
	}
}

// Store returns the project store.
func (c *Controller) Store() *project.Store { return c.store }

// Session returns the render session.
func (c *Controller) Session() *session.Session { return c.session }

// =============================================================================
// Project selection
// =============================================================================

// Open restores the persisted active project, if any, and renders it.
// It returns a nil ticket when no project is active.
func (c *Controller) Open(ctx context.Context) (*session.Ticket, error) {
	p, err := c.store.Active(ctx)
	if derrors.Is(err, derrors.ErrCodeNoActiveProject) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.load(ctx, p), nil
}

// Select makes id the active project and renders its stored source.
// Uncommitted edits to the previously active project are committed first
// unless DiscardOnSwitch is set. Selecting the project that is already
// active keeps the working copy, edits included, and renders it again.
func (c *Controller) Select(ctx context.Context, id string) (*session.Ticket, error) {
	c.mu.Lock()
	prev, dirty := c.activeID, c.dirty
	c.mu.Unlock()

	if prev != "" && prev == id {
		if _, err := c.store.Select(ctx, id); err != nil {
			return nil, err
		}
		c.logger.Debug("re-rendering active project", "id", id, "dirty", dirty)
		return c.Render(ctx)
	}

	if dirty && prev != "" && !c.discardOnSwitch {
		source := c.session.Source()
		_, err := c.store.UpdateSource(ctx, prev, source)
		switch {
		case derrors.Is(err, derrors.ErrCodeProjectNotFound):
			c.logger.Warn("previous project disappeared, dropping edits", "id", prev)
		case err != nil:
			return nil, err
		default:
			c.logger.Debug("committed edits on switch", "id", prev)
			c.mu.Lock()
			if c.activeID == prev && c.session.Source() == source {
				c.dirty = false
			}
			c.mu.Unlock()
		}
	}

	p, err := c.store.Select(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.load(ctx, p), nil
}

func (c *Controller) load(ctx context.Context, p *project.Project) *session.Ticket {
	c.mu.Lock()
	c.stopTimerLocked()
	c.activeID = p.ID
	c.dirty = false
	c.deselected = false
	c.mu.Unlock()

	c.session.Load(p.SourceText)
	c.logger.Debug("loaded project", "id", p.ID, "name", p.Name)
	return c.session.RequestRender(ctx)
}

// Active returns the active project.
func (c *Controller) Active(ctx context.Context) (*project.Project, error) {
	id := c.ActiveID()
	if id == "" {
		return nil, derrors.New(derrors.ErrCodeNoActiveProject, "no project selected")
	}
	p, err := c.store.Get(ctx, id)
	if derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		c.forget(id)
		return nil, derrors.New(derrors.ErrCodeNoActiveProject, "no project selected")
	}
	return p, err
}

// ActiveID returns the id of the loaded project, or "".
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// =============================================================================
// Editing
// =============================================================================

// Edit replaces the working source. With a debounce configured, a render is
// scheduled once edits pause.
func (c *Controller) Edit(text string) {
	c.session.EditSource(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	if c.debounce <= 0 || c.closed {
		return
	}
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.debounce, c.debouncedRender)
}

func (c *Controller) debouncedRender() {
	c.mu.Lock()
	c.timer = nil
	blocked := c.closed || c.deselected
	c.mu.Unlock()
	if blocked {
		return
	}
	c.session.RequestRender(context.Background())
}

// Render compiles the working source now. Rendering without a selected
// project is allowed, except after the active project has been deleted.
func (c *Controller) Render(ctx context.Context) (*session.Ticket, error) {
	c.mu.Lock()
	c.stopTimerLocked()
	deselected := c.deselected
	c.mu.Unlock()

	if deselected {
		return nil, derrors.New(derrors.ErrCodeNoActiveProject, "select a project to continue")
	}
	return c.session.RequestRender(ctx), nil
}

// Commit writes the working source to the active project.
func (c *Controller) Commit(ctx context.Context) (*project.Project, error) {
	id := c.ActiveID()
	if id == "" {
		return nil, derrors.New(derrors.ErrCodeNoActiveProject, "no project selected")
	}
	source := c.session.Source()
	p, err := c.store.UpdateSource(ctx, id, source)
	if derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		c.forget(id)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// A later edit keeps the copy dirty.
	if c.activeID == id && c.session.Source() == source {
		c.dirty = false
	}
	c.mu.Unlock()
	return p, nil
}

// Dirty reports whether the working source has uncommitted edits.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// =============================================================================
// Project management
// =============================================================================

// Create adds a project with the store's default source.
func (c *Controller) Create(ctx context.Context, name string) (*project.Project, error) {
	return c.store.Create(ctx, name)
}

// CreateWithSource adds a project starting from source, typically a template.
func (c *Controller) CreateWithSource(ctx context.Context, name, source string) (*project.Project, error) {
	return c.store.CreateWithSource(ctx, name, source)
}

// Rename changes a project's name.
func (c *Controller) Rename(ctx context.Context, id, name string) (*project.Project, error) {
	return c.store.Rename(ctx, id, name)
}

// Restore commits an earlier version. When id is the loaded project the
// session is reloaded with the restored source and rendered.
func (c *Controller) Restore(ctx context.Context, id string, version int) (*project.Project, *session.Ticket, error) {
	p, err := c.store.Restore(ctx, id, version)
	if err != nil {
		return nil, nil, err
	}
	if c.ActiveID() != id {
		return p, nil, nil
	}
	return p, c.load(ctx, p), nil
}

// Delete removes a project. Deleting the loaded project resets the session
// to an empty, idle working copy.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		if derrors.Is(err, derrors.ErrCodeProjectNotFound) {
			c.forget(id)
		}
		return err
	}
	c.forget(id)
	return nil
}

// forget resets the session if id is the loaded project.
func (c *Controller) forget(id string) {
	c.mu.Lock()
	if c.activeID != id {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.activeID = ""
	c.dirty = false
	c.deselected = true
	c.mu.Unlock()

	c.session.Load("")
	c.logger.Debug("active project removed, session reset", "id", id)
}

// =============================================================================
// Viewport
// =============================================================================

// Zoom returns the viewport zoom factor.
func (c *Controller) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// ZoomIn increases the zoom by one step and returns the new factor.
func (c *Controller) ZoomIn() float64 { return c.setZoom(func(z float64) float64 { return z + ZoomStep }) }

// ZoomOut decreases the zoom by one step and returns the new factor.
func (c *Controller) ZoomOut() float64 { return c.setZoom(func(z float64) float64 { return z - ZoomStep }) }

// ResetZoom restores the default zoom.
func (c *Controller) ResetZoom() float64 { return c.setZoom(func(float64) float64 { return DefaultZoom }) }

// SetZoom sets the zoom, clamped to [MinZoom, MaxZoom].
func (c *Controller) SetZoom(z float64) float64 { return c.setZoom(func(float64) float64 { return z }) }

func (c *Controller) setZoom(f func(float64) float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zoom = min(max(f(c.zoom), MinZoom), MaxZoom)
	return c.zoom
}

// =============================================================================
// Lifecycle
// =============================================================================

// Status returns the controller and session state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{ActiveID: c.activeID, Dirty: c.dirty, Zoom: c.zoom}
	c.mu.Unlock()
	st.Session = c.session.Snapshot()
	return st
}

// Close stops pending automatic renders and waits for in-flight compiles.
// The store is left open.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()
	c.session.Close()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
