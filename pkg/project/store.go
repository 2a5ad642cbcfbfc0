package project

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/observability"
)

// Options configures a Store.
type Options struct {
	// DefaultSource is the source text of projects created by Create.
	DefaultSource string

	// HistoryLimit caps the number of versions kept per project.
	// Zero or negative uses DefaultHistoryLimit.
	HistoryLimit int

	Logger *log.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store manages projects on top of a Backend.
//
// Read-modify-write operations are serialized with a mutex, so a Store must
// be the only writer to its backend within a process.
type Store struct {
	backend       Backend
	defaultSource string
	historyLimit  int
	logger        *log.Logger
	now           func() time.Time

	mu        sync.Mutex
	last      time.Time
	clockInit bool
}

// NewStore creates a store over backend.
func NewStore(backend Backend, opts Options) *Store {
	s := &Store{
		backend:       backend,
		defaultSource: opts.DefaultSource,
		historyLimit:  opts.HistoryLimit,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// =============================================================================
// Mutations
// =============================================================================

// Create adds a project with the default source.
func (s *Store) Create(ctx context.Context, name string) (*Project, error) {
	return s.CreateWithSource(ctx, name, s.defaultSource)
}

// CreateWithSource adds a project with the given initial source, which is
// recorded as version 1.
func (s *Store) CreateWithSource(ctx context.Context, name, source string) (p *Project, err error) {
	defer func() { s.emit(ctx, "create", p, err) }()

	name, err = derrors.ValidateProjectName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.tick(ctx)
	if err != nil {
		return nil, err
	}
	p = &Project{
		ID:         uuid.NewString(),
		Name:       name,
		SourceText: source,
		CreatedAt:  now,
		UpdatedAt:  now,
		Versions:   []Version{{Number: 1, SourceText: source, CommittedAt: now}},
	}
	if err := s.backend.Put(ctx, p); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "save project")
	}
	s.logger.Debug("created project", "id", p.ID, "name", p.Name)
	return p.Clone(), nil
}

// Rename changes a project's display name.
func (s *Store) Rename(ctx context.Context, id, name string) (p *Project, err error) {
	defer func() { s.emit(ctx, "rename", p, err) }()

	name, err = derrors.ValidateProjectName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now, err := s.tick(ctx)
	if err != nil {
		return nil, err
	}
	p.Name = name
	p.UpdatedAt = now
	if err := s.backend.Put(ctx, p); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "save project")
	}
	return p.Clone(), nil
}

// UpdateSource commits text as the project's source. A new version is
// recorded when text differs from the latest version.
func (s *Store) UpdateSource(ctx context.Context, id, text string) (p *Project, err error) {
	defer func() { s.emit(ctx, "update", p, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, id, text)
}

// Restore commits the source of an earlier version as a new version.
func (s *Store) Restore(ctx context.Context, id string, number int) (p *Project, err error) {
	defer func() { s.emit(ctx, "restore", p, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, v := range cur.Versions {
		if v.Number == number {
			return s.commit(ctx, id, v.SourceText)
		}
	}
	return nil, derrors.New(derrors.ErrCodeVersionNotFound, "project %q has no version %d", cur.Name, number)
}

func (s *Store) commit(ctx context.Context, id, text string) (*Project, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now, err := s.tick(ctx)
	if err != nil {
		return nil, err
	}
	p.SourceText = text
	p.UpdatedAt = now

	if n := len(p.Versions); n == 0 || p.Versions[n-1].SourceText != text {
		p.Versions = append(p.Versions, Version{
			Number:      p.LatestVersion() + 1,
			SourceText:  text,
			CommittedAt: now,
		})
		if extra := len(p.Versions) - s.historyLimit; extra > 0 {
			p.Versions = append([]Version(nil), p.Versions[extra:]...)
		}
	}

	if err := s.backend.Put(ctx, p); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "save project")
	}
	s.logger.Debug("committed source", "id", p.ID, "version", p.LatestVersion())
	return p.Clone(), nil
}

// Delete removes a project. The active pointer is cleared if it referenced
// the project.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.emitID(ctx, "delete", id, err) }()

	if err := derrors.ValidateProjectID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.notFound(ctx, id)
		}
		return derrors.Wrap(derrors.ErrCodeStorage, err, "delete project")
	}
	if err := s.clearActiveIf(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("deleted project", "id", id)
	return nil
}

// Select makes id the active project. Only the pointer changes.
func (s *Store) Select(ctx context.Context, id string) (p *Project, err error) {
	defer func() { s.emit(ctx, "select", p, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.backend.SetActive(ctx, id); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "save active project")
	}
	return p.Clone(), nil
}

// =============================================================================
// Queries
// =============================================================================

// Get returns one project.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id)
}

// List returns all projects, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	ps, err := s.backend.List(ctx)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "list projects")
	}
	sortByRecency(ps)
	return ps, nil
}

// Active returns the active project. A pointer to a project that no longer
// exists is cleared.
func (s *Store) Active(ctx context.Context) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.backend.Active(ctx)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "read active project")
	}
	if id == "" {
		return nil, derrors.New(derrors.ErrCodeNoActiveProject, "no project selected")
	}
	p, err := s.load(ctx, id)
	if derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		return nil, derrors.New(derrors.ErrCodeNoActiveProject, "no project selected")
	}
	return p, err
}

// ActiveID returns the active project id, or "" when none is set.
func (s *Store) ActiveID(ctx context.Context) (string, error) {
	id, err := s.backend.Active(ctx)
	if err != nil {
		return "", derrors.Wrap(derrors.ErrCodeStorage, err, "read active project")
	}
	return id, nil
}

// History returns a project's versions, newest first.
func (s *Store) History(ctx context.Context, id string) ([]Version, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Version, len(p.Versions))
	for i, v := range p.Versions {
		out[len(out)-1-i] = v
	}
	return out, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// =============================================================================
// Helpers
// =============================================================================

// load fetches id from the backend. Callers hold s.mu.
func (s *Store) load(ctx context.Context, id string) (*Project, error) {
	if err := derrors.ValidateProjectID(id); err != nil {
		return nil, err
	}
	p, err := s.backend.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.notFound(ctx, id)
		}
		return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "load project")
	}
	return p, nil
}

// notFound clears a stale active pointer and returns PROJECT_NOT_FOUND.
func (s *Store) notFound(ctx context.Context, id string) error {
	if err := s.clearActiveIf(ctx, id); err != nil {
		s.logger.Warn("could not clear stale active project", "id", id, "error", err)
	}
	return derrors.New(derrors.ErrCodeProjectNotFound, "project %s not found", id)
}

func (s *Store) clearActiveIf(ctx context.Context, id string) error {
	active, err := s.backend.Active(ctx)
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeStorage, err, "read active project")
	}
	if active != id {
		return nil
	}
	if err := s.backend.SetActive(ctx, ""); err != nil {
		return derrors.Wrap(derrors.ErrCodeStorage, err, "clear active project")
	}
	return nil
}

// tick returns a timestamp strictly after every timestamp the store has
// issued or found in the backend. Callers hold s.mu.
func (s *Store) tick(ctx context.Context) (time.Time, error) {
	if !s.clockInit {
		ps, err := s.backend.List(ctx)
		if err != nil {
			return time.Time{}, derrors.Wrap(derrors.ErrCodeStorage, err, "list projects")
		}
		for _, p := range ps {
			if p.UpdatedAt.After(s.last) {
				s.last = p.UpdatedAt
			}
		}
		s.clockInit = true
	}

	now := s.now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now, nil
}

func (s *Store) emit(ctx context.Context, op string, p *Project, err error) {
	id := ""
	if p != nil {
		id = p.ID
	}
	s.emitID(ctx, op, id, err)
}

func (s *Store) emitID(ctx context.Context, op, id string, err error) {
	observability.Store().OnProjectMutation(ctx, op, id, err)
}
