package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const activeFile = "active"

// FileBackend stores projects as JSON files in a directory, one file per
// project, plus an "active" file holding the active project id.
type FileBackend struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileBackend creates a file backend rooted at baseDir.
// If baseDir is empty, defaults to ~/.config/diagramcraft/projects/
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "diagramcraft", "projects")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	return &FileBackend{baseDir: baseDir}, nil
}

func (b *FileBackend) projectPath(id string) string {
	return filepath.Join(b.baseDir, id+".json")
}

// validID rejects ids that would escape the project directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (b *FileBackend) Get(_ context.Context, id string) (*Project, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.read(b.projectPath(id))
}

func (b *FileBackend) read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read project file: %w", err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", filepath.Base(path), err)
	}
	return &p, nil
}

func (b *FileBackend) Put(_ context.Context, p *Project) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	return writeFileAtomic(b.projectPath(p.ID), data)
}

func (b *FileBackend) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.projectPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove project file: %w", err)
	}
	return nil
}

func (b *FileBackend) List(_ context.Context) ([]*Project, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read project dir: %w", err)
	}

	var out []*Project
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		p, err := b.read(filepath.Join(b.baseDir, entry.Name()))
		if err != nil {
			// A half-written or hand-edited file must not hide the others.
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (b *FileBackend) Active(_ context.Context) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(b.baseDir, activeFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read active file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (b *FileBackend) SetActive(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := filepath.Join(b.baseDir, activeFile)
	if id == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove active file: %w", err)
		}
		return nil
	}
	return writeFileAtomic(path, []byte(id+"\n"))
}

func (b *FileBackend) Close() error { return nil }

// Path returns the base directory for project files.
func (b *FileBackend) Path() string {
	return b.baseDir
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

var _ Backend = (*FileBackend)(nil)
