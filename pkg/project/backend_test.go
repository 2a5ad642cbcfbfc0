package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// backendFactories returns every backend that can run in this environment.
func backendFactories(t *testing.T) map[string]func(t *testing.T) Backend {
	t.Helper()
	factories := map[string]func(t *testing.T) Backend{
		BackendMemory: func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		BackendFile: func(t *testing.T) Backend {
			b, err := NewFileBackend(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileBackend() error: %v", err)
			}
			return b
		},
		BackendRedis: func(t *testing.T) Backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisBackend(client)
		},
		BackendSQLite: func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "projects.db"))
			if err != nil {
				t.Fatalf("NewSQLiteBackend() error: %v", err)
			}
			return b
		},
	}
	if uri := os.Getenv("DIAGRAMCRAFT_TEST_MONGO_URI"); uri != "" {
		factories[BackendMongo] = func(t *testing.T) Backend {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			b, err := DialMongoBackend(ctx, uri, "diagramcraft_test_"+uuid.NewString()[:8])
			if err != nil {
				t.Fatalf("DialMongoBackend() error: %v", err)
			}
			t.Cleanup(func() { _ = b.projects.Database().Drop(context.Background()) })
			return b
		}
	}
	return factories
}

func sampleProject(name string, updated time.Time) *Project {
	return &Project{
		ID:         uuid.NewString(),
		Name:       name,
		SourceText: "flowchart TB\nA-->B",
		CreatedAt:  updated,
		UpdatedAt:  updated,
		Versions: []Version{
			{Number: 1, SourceText: "flowchart TB\nA-->B", CommittedAt: updated},
		},
	}
}

func TestBackends(t *testing.T) {
	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("roundtrip", func(t *testing.T) {
				b := factory(t)
				defer b.Close()
				ctx := context.Background()

				// Nanosecond precision must survive storage.
				at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
				p := sampleProject("Round", at)
				if err := b.Put(ctx, p); err != nil {
					t.Fatalf("Put() error: %v", err)
				}

				got, err := b.Get(ctx, p.ID)
				if err != nil {
					t.Fatalf("Get() error: %v", err)
				}
				if got.Name != p.Name || got.SourceText != p.SourceText {
					t.Errorf("Get() = %+v, want %+v", got, p)
				}
				if !got.UpdatedAt.Equal(at) || !got.CreatedAt.Equal(at) {
					t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, at)
				}
				if len(got.Versions) != 1 || !got.Versions[0].CommittedAt.Equal(at) {
					t.Errorf("Versions = %+v", got.Versions)
				}

				p.Name = "Renamed"
				if err := b.Put(ctx, p); err != nil {
					t.Fatalf("Put() replace error: %v", err)
				}
				got, _ = b.Get(ctx, p.ID)
				if got.Name != "Renamed" {
					t.Errorf("Name after replace = %q", got.Name)
				}
			})

			t.Run("missing", func(t *testing.T) {
				b := factory(t)
				defer b.Close()
				ctx := context.Background()

				if _, err := b.Get(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get() error = %v, want ErrNotFound", err)
				}
				if err := b.Delete(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
					t.Errorf("Delete() error = %v, want ErrNotFound", err)
				}
			})

			t.Run("list and delete", func(t *testing.T) {
				b := factory(t)
				defer b.Close()
				ctx := context.Background()
				now := time.Now().UTC()

				p1 := sampleProject("one", now)
				p2 := sampleProject("two", now.Add(time.Second))
				for _, p := range []*Project{p1, p2} {
					if err := b.Put(ctx, p); err != nil {
						t.Fatal(err)
					}
				}

				ps, err := b.List(ctx)
				if err != nil {
					t.Fatalf("List() error: %v", err)
				}
				if len(ps) != 2 {
					t.Fatalf("List() = %d projects, want 2", len(ps))
				}

				if err := b.Delete(ctx, p1.ID); err != nil {
					t.Fatalf("Delete() error: %v", err)
				}
				ps, _ = b.List(ctx)
				if len(ps) != 1 || ps[0].ID != p2.ID {
					t.Errorf("List() after delete = %v", names(ps))
				}
			})

			t.Run("active pointer", func(t *testing.T) {
				b := factory(t)
				defer b.Close()
				ctx := context.Background()

				id, err := b.Active(ctx)
				if err != nil || id != "" {
					t.Fatalf("Active() = %q, %v, want empty", id, err)
				}
				want := uuid.NewString()
				if err := b.SetActive(ctx, want); err != nil {
					t.Fatalf("SetActive() error: %v", err)
				}
				if id, _ := b.Active(ctx); id != want {
					t.Errorf("Active() = %q, want %q", id, want)
				}
				if err := b.SetActive(ctx, ""); err != nil {
					t.Fatalf("SetActive(\"\") error: %v", err)
				}
				if id, _ := b.Active(ctx); id != "" {
					t.Errorf("Active() after clear = %q", id)
				}
			})

			t.Run("store", func(t *testing.T) {
				b := factory(t)
				s := NewStore(b, Options{Now: frozenClock})
				defer s.Close()
				ctx := context.Background()

				p1 := mustCreate(t, s, "P1")
				p2 := mustCreate(t, s, "P2")
				if _, err := s.UpdateSource(ctx, p1.ID, "graph LR\nX-->Y"); err != nil {
					t.Fatal(err)
				}
				ps, err := s.List(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if len(ps) != 2 || ps[0].ID != p1.ID || ps[1].ID != p2.ID {
					t.Errorf("List() = %v, want [P1 P2]", names(ps))
				}
			})
		})
	}
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b1, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	s1 := NewStore(b1, Options{})
	p := mustCreate(t, s1, "Persisted")
	if _, err := s1.Select(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	b2, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	s2 := NewStore(b2, Options{})
	a, err := s2.Active(ctx)
	if err != nil {
		t.Fatalf("Active() error: %v", err)
	}
	if a.ID != p.ID || a.Name != "Persisted" {
		t.Errorf("Active() = %+v", a)
	}

	info, err := os.Stat(filepath.Join(dir, p.ID+".json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("project file mode = %o, want 600", perm)
	}
}

func TestFileBackendSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := b.Put(ctx, sampleProject("ok", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}

	ps, err := b.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(ps) != 1 {
		t.Errorf("List() = %d projects, want 1", len(ps))
	}
}

func TestFileBackendRejectsPathIDs(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "projects"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "outside.json"), []byte(`{"id":"outside"}`), 0600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for _, id := range []string{"../outside", "", "..", `a\b`} {
		if _, err := b.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
		if err := b.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(%q) error = %v, want ErrNotFound", id, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.json")); err != nil {
		t.Errorf("file outside the project dir was touched: %v", err)
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{"memory", BackendConfig{Kind: BackendMemory}, false},
		{"file", BackendConfig{Kind: BackendFile, Dir: t.TempDir()}, false},
		{"default is file", BackendConfig{Dir: t.TempDir()}, false},
		{"sqlite in dir", BackendConfig{Kind: BackendSQLite, Dir: t.TempDir()}, false},
		{"unknown", BackendConfig{Kind: "cassandra"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := OpenBackend(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("OpenBackend() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenBackend() error: %v", err)
			}
			b.Close()
		})
	}

	mr := miniredis.RunT(t)
	b, err := OpenBackend(ctx, BackendConfig{Kind: BackendRedis, RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("OpenBackend(redis) error: %v", err)
	}
	b.Close()
}

func TestValidBackend(t *testing.T) {
	for _, name := range BackendNames {
		if !ValidBackend(name) {
			t.Errorf("ValidBackend(%q) = false", name)
		}
	}
	if ValidBackend("postgres") {
		t.Error("ValidBackend(postgres) = true")
	}
}

func TestSQLiteSchemaHasNoSecondaryIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.db")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error: %v", err)
	}
	defer b.Close()

	var n int
	err = b.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'index' AND name NOT LIKE 'sqlite_autoindex_%'`).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if n != 0 {
		t.Errorf("schema has %d secondary indexes, want 0 (List orders in Go)", n)
	}

	// Reopening an existing database keeps working.
	again, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}
