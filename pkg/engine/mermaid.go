package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Mermaid renders the full mermaid language through the mermaid-cli
// executable (mmdc). Every render runs in its own temporary directory.
type Mermaid struct {
	opts Options
}

// NewMermaid returns a mermaid-cli engine.
func NewMermaid(opts Options) *Mermaid {
	return &Mermaid{opts: opts.WithDefaults()}
}

// Name implements Engine.
func (m *Mermaid) Name() string { return NameMermaid }

// Available reports whether the mermaid-cli executable can be found.
func (m *Mermaid) Available() bool {
	_, err := exec.LookPath(m.opts.MermaidBin)
	return err == nil
}

// Render implements Engine. id becomes the id of the root SVG element.
func (m *Mermaid) Render(ctx context.Context, id, source string) ([]byte, error) {
	bin, err := exec.LookPath(m.opts.MermaidBin)
	if err != nil {
		return nil, fmt.Errorf("mermaid rendering requires mermaid-cli (%s). Install with:\n  npm install -g @mermaid-js/mermaid-cli", m.opts.MermaidBin)
	}

	workDir, err := os.MkdirTemp("", "diagramcraft-mmdc-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.mmd")
	output := filepath.Join(workDir, "output.svg")
	if err := os.WriteFile(input, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	args := []string{
		"--input", input,
		"--output", output,
		"--theme", m.opts.Theme,
		"--backgroundColor", m.opts.Background,
		"--quiet",
	}
	if id != "" {
		args = append(args, "--svgId", id)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	m.opts.Logger.Debug("running mermaid-cli", "bin", bin, "id", id)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := mmdcError(stderr.String()); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("mmdc: %w", err)
	}

	svg, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("mmdc produced no SVG: %w", err)
	}
	return svg, nil
}

// mmdcError extracts the parser message from mermaid-cli's stderr, which
// otherwise carries a Node.js stack trace.
func mmdcError(stderr string) string {
	var keep []string
	for _, line := range strings.Split(stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "at ") {
			continue
		}
		keep = append(keep, trimmed)
		if len(keep) == 4 {
			break
		}
	}
	return strings.TrimPrefix(strings.Join(keep, "\n"), "Error: ")
}

// Close does nothing; mermaid-cli processes do not outlive a render.
func (m *Mermaid) Close() error { return nil }
