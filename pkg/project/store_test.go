package project

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
)

const defaultSource = "flowchart TB\nA[Start] --> B[End]"

// frozenClock always returns the same instant, so every ordering guarantee
// has to come from the store itself.
func frozenClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewMemoryBackend(), Options{DefaultSource: defaultSource, Now: frozenClock})
}

func mustCreate(t *testing.T, s *Store, name string) *Project {
	t.Helper()
	p, err := s.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("Create(%q) error: %v", name, err)
	}
	return p
}

func TestCreate(t *testing.T) {
	s := newTestStore(t)

	p := mustCreate(t, s, "  My Diagram  ")

	if p.Name != "My Diagram" {
		t.Errorf("Name = %q, want %q", p.Name, "My Diagram")
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", p.ID, err)
	}
	if p.SourceText != defaultSource {
		t.Errorf("SourceText = %q, want default", p.SourceText)
	}
	if !p.CreatedAt.Equal(p.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v", p.CreatedAt, p.UpdatedAt)
	}
	if len(p.Versions) != 1 || p.Versions[0].Number != 1 {
		t.Errorf("Versions = %+v, want initial version 1", p.Versions)
	}
}

func TestCreate_EmptyName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := s.Create(ctx, name)
		if !derrors.Is(err, derrors.ErrCodeEmptyName) {
			t.Errorf("Create(%q) error = %v, want EMPTY_NAME", name, err)
		}
	}

	ps, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 0 {
		t.Errorf("List() = %d projects after rejected creates, want 0", len(ps))
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		p := mustCreate(t, s, "same name")
		if seen[p.ID] {
			t.Fatalf("duplicate id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestCreateWithSource(t *testing.T) {
	s := newTestStore(t)
	p, err := s.CreateWithSource(context.Background(), "Seq", "sequenceDiagram\nA->>B: hi")
	if err != nil {
		t.Fatal(err)
	}
	if p.SourceText != "sequenceDiagram\nA->>B: hi" {
		t.Errorf("SourceText = %q", p.SourceText)
	}
}

func TestList_RecencyOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustCreate(t, s, "P1")
	p2 := mustCreate(t, s, "P2")

	ps, _ := s.List(ctx)
	if len(ps) != 2 || ps[0].ID != p2.ID || ps[1].ID != p1.ID {
		t.Fatalf("List() before update = %v, want [P2 P1]", names(ps))
	}

	if _, err := s.UpdateSource(ctx, p1.ID, "flowchart LR\nX-->Y"); err != nil {
		t.Fatal(err)
	}

	ps, _ = s.List(ctx)
	if ps[0].ID != p1.ID || ps[1].ID != p2.ID {
		t.Errorf("List() after update = %v, want [P1 P2]", names(ps))
	}

	if _, err := s.Rename(ctx, p2.ID, "P2 renamed"); err != nil {
		t.Fatal(err)
	}
	ps, _ = s.List(ctx)
	if ps[0].ID != p2.ID {
		t.Errorf("List() after rename = %v, want P2 first", names(ps))
	}
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustCreate(t, s, "A")
	prev := p.UpdatedAt
	for i := 0; i < 5; i++ {
		u, err := s.UpdateSource(ctx, p.ID, string(rune('a'+i)))
		if err != nil {
			t.Fatal(err)
		}
		if !u.UpdatedAt.After(prev) {
			t.Fatalf("UpdatedAt %v not after %v", u.UpdatedAt, prev)
		}
		prev = u.UpdatedAt
	}
}

func TestClockContinuesFromBackend(t *testing.T) {
	b := NewMemoryBackend()
	future := frozenClock().Add(time.Hour)
	id := uuid.NewString()
	_ = b.Put(context.Background(), &Project{ID: id, Name: "old", CreatedAt: future, UpdatedAt: future})

	s := NewStore(b, Options{Now: frozenClock})
	p := mustCreate(t, s, "new")
	if !p.UpdatedAt.After(future) {
		t.Errorf("UpdatedAt %v should be after persisted %v", p.UpdatedAt, future)
	}
}

func TestRename(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreate(t, s, "Old")

	r, err := s.Rename(ctx, p.ID, "  New  ")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "New" {
		t.Errorf("Name = %q", r.Name)
	}
	if !r.UpdatedAt.After(p.UpdatedAt) {
		t.Error("Rename should refresh UpdatedAt")
	}

	tests := []struct {
		name string
		id   string
		to   string
		want derrors.Code
	}{
		{"empty name", p.ID, " ", derrors.ErrCodeEmptyName},
		{"unknown id", uuid.NewString(), "x", derrors.ErrCodeProjectNotFound},
		{"malformed id", "../etc/passwd", "x", derrors.ErrCodeProjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Rename(ctx, tt.id, tt.to)
			if !derrors.Is(err, tt.want) {
				t.Errorf("Rename() error = %v, want %s", err, tt.want)
			}
		})
	}

	got, _ := s.Get(ctx, p.ID)
	if got.Name != "New" {
		t.Errorf("failed renames changed the name to %q", got.Name)
	}
}

func TestUpdateSource_Versions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreate(t, s, "V")

	if _, err := s.UpdateSource(ctx, p.ID, "v2"); err != nil {
		t.Fatal(err)
	}
	// Unchanged text refreshes UpdatedAt without a new version.
	u, err := s.UpdateSource(ctx, p.ID, "v2")
	if err != nil {
		t.Fatal(err)
	}
	if u.LatestVersion() != 2 {
		t.Errorf("LatestVersion() = %d, want 2", u.LatestVersion())
	}

	if _, err := s.UpdateSource(ctx, p.ID, "v3"); err != nil {
		t.Fatal(err)
	}
	h, err := s.History(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 3 || h[0].Number != 3 || h[0].SourceText != "v3" || h[2].Number != 1 {
		t.Errorf("History() = %+v, want versions 3,2,1", h)
	}
}

func TestUpdateSource_HistoryLimit(t *testing.T) {
	s := NewStore(NewMemoryBackend(), Options{HistoryLimit: 3, Now: frozenClock})
	ctx := context.Background()
	p := mustCreate(t, s, "L")

	for _, src := range []string{"b", "c", "d", "e"} {
		if _, err := s.UpdateSource(ctx, p.ID, src); err != nil {
			t.Fatal(err)
		}
	}
	h, _ := s.History(ctx, p.ID)
	if len(h) != 3 {
		t.Fatalf("History() len = %d, want 3", len(h))
	}
	if h[0].Number != 5 || h[2].Number != 3 {
		t.Errorf("History() = %+v, want versions 5..3", h)
	}
}

func TestRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreate(t, s, "R")
	if _, err := s.UpdateSource(ctx, p.ID, "second"); err != nil {
		t.Fatal(err)
	}

	r, err := s.Restore(ctx, p.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if r.SourceText != defaultSource {
		t.Errorf("SourceText = %q, want version 1's source", r.SourceText)
	}
	if r.LatestVersion() != 3 {
		t.Errorf("LatestVersion() = %d, want 3", r.LatestVersion())
	}

	if _, err := s.Restore(ctx, p.ID, 42); !derrors.Is(err, derrors.ErrCodeVersionNotFound) {
		t.Errorf("Restore(42) error = %v, want VERSION_NOT_FOUND", err)
	}
}

func TestSelectAndActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Active(ctx); !derrors.Is(err, derrors.ErrCodeNoActiveProject) {
		t.Errorf("Active() error = %v, want NO_ACTIVE_PROJECT", err)
	}

	p1 := mustCreate(t, s, "P1")
	p2 := mustCreate(t, s, "P2")

	if _, err := s.Select(ctx, p1.ID); err != nil {
		t.Fatal(err)
	}
	a, err := s.Active(ctx)
	if err != nil || a.ID != p1.ID {
		t.Fatalf("Active() = %v, %v, want P1", a, err)
	}

	// Select does not touch recency.
	ps, _ := s.List(ctx)
	if ps[0].ID != p2.ID {
		t.Errorf("Select changed recency order: %v", names(ps))
	}

	if _, err := s.Select(ctx, uuid.NewString()); !derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		t.Errorf("Select(unknown) error = %v, want PROJECT_NOT_FOUND", err)
	}
	if id, _ := s.ActiveID(ctx); id != p1.ID {
		t.Errorf("failed Select changed the active id to %q", id)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1 := mustCreate(t, s, "P1")
	p2 := mustCreate(t, s, "P2")
	if _, err := s.Select(ctx, p1.ID); err != nil {
		t.Fatal(err)
	}

	// Deleting another project keeps the pointer.
	if err := s.Delete(ctx, p2.ID); err != nil {
		t.Fatal(err)
	}
	if id, _ := s.ActiveID(ctx); id != p1.ID {
		t.Errorf("ActiveID() = %q, want P1", id)
	}

	if err := s.Delete(ctx, p1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Active(ctx); !derrors.Is(err, derrors.ErrCodeNoActiveProject) {
		t.Errorf("Active() after deleting it = %v, want NO_ACTIVE_PROJECT", err)
	}
	if _, err := s.Get(ctx, p1.ID); !derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		t.Errorf("Get() after delete = %v, want PROJECT_NOT_FOUND", err)
	}
	if err := s.Delete(ctx, p1.ID); !derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		t.Errorf("second Delete() = %v, want PROJECT_NOT_FOUND", err)
	}
}

func TestStaleActivePointerIsCleared(t *testing.T) {
	b := NewMemoryBackend()
	s := NewStore(b, Options{Now: frozenClock})
	ctx := context.Background()

	p := mustCreate(t, s, "gone")
	if _, err := s.Select(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	// Another writer removed the record behind the store's back.
	_ = b.Delete(ctx, p.ID)

	if _, err := s.UpdateSource(ctx, p.ID, "x"); !derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		t.Fatalf("UpdateSource() error = %v, want PROJECT_NOT_FOUND", err)
	}
	if id, _ := b.Active(ctx); id != "" {
		t.Errorf("active pointer = %q, want cleared", id)
	}
}

func TestReturnedProjectsAreCopies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreate(t, s, "copy")

	p.Name = "mutated"
	p.Versions[0].SourceText = "mutated"

	got, _ := s.Get(ctx, p.ID)
	if got.Name != "copy" || got.Versions[0].SourceText != defaultSource {
		t.Errorf("store state changed through a returned pointer: %+v", got)
	}
}

func names(ps []*Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}
