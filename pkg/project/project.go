// Package project stores named diagram projects and the active-project
// pointer.
//
// A [Store] enforces the rules every surface relies on: names are trimmed
// and non-empty, ids are stable UUIDs, timestamps strictly increase across
// mutations so recency ordering is total, and each committed source change
// is recorded in a bounded version history. The Store persists through a
// [Backend]:
//
//   - [MemoryBackend]: ephemeral, for tests and scratch sessions
//   - [FileBackend]: one JSON document per project in the user's data dir
//   - [RedisBackend]: shared storage for the HTTP server
//   - [SQLiteBackend]: single-file database
//   - [MongoBackend]: MongoDB collection
//
// Backends are dumb record stores. Validation, timestamps and versioning
// happen in the Store so every backend behaves identically.
package project

import (
	"context"
	"errors"
	"slices"
	"time"
)

// DefaultHistoryLimit bounds Project.Versions when no limit is configured.
const DefaultHistoryLimit = 20

// ErrNotFound is returned by backends when a project does not exist.
var ErrNotFound = errors.New("project not found")

// Project is a named, persisted diagram.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourceText string    `json:"source_text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Versions   []Version `json:"versions,omitempty"`
}

// Version is a committed snapshot of a project's source.
type Version struct {
	Number      int       `json:"number"`
	SourceText  string    `json:"source_text"`
	CommittedAt time.Time `json:"committed_at"`
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Versions = slices.Clone(p.Versions)
	return &c
}

// LatestVersion returns the newest version number, or 0 when there is none.
func (p *Project) LatestVersion() int {
	if len(p.Versions) == 0 {
		return 0
	}
	return p.Versions[len(p.Versions)-1].Number
}

// Backend persists project records and the active-project pointer.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the project with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Project, error)

	// Put creates or replaces a project.
	Put(ctx context.Context, p *Project) error

	// Delete removes a project. Deleting a missing project returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns all projects in no particular order.
	List(ctx context.Context) ([]*Project, error)

	// Active returns the active project id, or "" when none is set.
	Active(ctx context.Context) (string, error)

	// SetActive sets the active project id. "" clears it.
	SetActive(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// sortByRecency orders projects by UpdatedAt, newest first. Ties, which the
// Store never produces itself, fall back to the id for a stable order.
func sortByRecency(ps []*Project) {
	slices.SortFunc(ps, func(a, b *Project) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
