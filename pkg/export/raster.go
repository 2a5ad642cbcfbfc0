package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
)

// Rasterizer names.
const (
	RasterizerRsvg   = "rsvg"
	RasterizerChrome = "chrome"
)

// RasterizerNames lists every supported rasterizer.
var RasterizerNames = []string{RasterizerRsvg, RasterizerChrome}

// ValidRasterizer reports whether name is a supported rasterizer.
func ValidRasterizer(name string) bool {
	return slices.Contains(RasterizerNames, name)
}

// Rasterizer converts SVG markup to other formats.
type Rasterizer interface {
	Name() string
	// PNG renders svg at scale; 2.0 doubles the resolution.
	PNG(ctx context.Context, svg []byte, scale float64) ([]byte, error)
	PDF(ctx context.Context, svg []byte) ([]byte, error)
}

// RasterizerOptions configures NewRasterizer.
type RasterizerOptions struct {
	RsvgBin    string
	ChromePath string
}

// NewRasterizer returns the named rasterizer.
func NewRasterizer(name string, opts RasterizerOptions) (Rasterizer, error) {
	switch name {
	case RasterizerRsvg, "":
		return NewRsvg(opts.RsvgBin), nil
	case RasterizerChrome:
		return NewChrome(opts.ChromePath), nil
	}
	return nil, derrors.New(derrors.ErrCodeInvalidInput, "unknown rasterizer %q (want one of %s)",
		name, strings.Join(RasterizerNames, ", "))
}

// =============================================================================
// rsvg-convert
// =============================================================================

const rsvgInstallHint = "Install with:\n  macOS:  brew install librsvg\n  Linux:  apt install librsvg2-bin"

// Rsvg shells out to librsvg's rsvg-convert.
type Rsvg struct {
	bin string
}

// NewRsvg returns an rsvg-convert rasterizer. An empty bin uses
// "rsvg-convert" from PATH.
func NewRsvg(bin string) *Rsvg {
	if bin == "" {
		bin = "rsvg-convert"
	}
	return &Rsvg{bin: bin}
}

func (r *Rsvg) Name() string { return RasterizerRsvg }

// Available reports whether the binary can be found.
func (r *Rsvg) Available() bool {
	_, err := exec.LookPath(r.bin)
	return err == nil
}

func (r *Rsvg) PNG(ctx context.Context, svg []byte, scale float64) ([]byte, error) {
	return r.convert(ctx, svg, FormatPNG, "-z", fmt.Sprintf("%.2f", scale))
}

func (r *Rsvg) PDF(ctx context.Context, svg []byte) ([]byte, error) {
	return r.convert(ctx, svg, FormatPDF)
}

func (r *Rsvg) convert(ctx context.Context, svg []byte, format string, extraArgs ...string) ([]byte, error) {
	if !r.Available() {
		return nil, derrors.New(derrors.ErrCodeUnsupported, "%s export requires librsvg. %s", format, rsvgInstallHint)
	}

	args := append([]string{"-f", format}, extraArgs...)
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdin = bytes.NewReader(svg)

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("rsvg-convert: %v: %s", err, strings.TrimSpace(errBuf.String()))
	}
	return out.Bytes(), nil
}
