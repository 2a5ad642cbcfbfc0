// Package cache provides byte-level caching for compiled diagrams and
// rasterized exports.
//
// Two kinds of entries are stored:
//   - Artifacts: SVG markup produced by a diagram engine, keyed by engine,
//     engine options and a hash of the source text.
//   - Rasters: PNG/PDF bytes produced from an SVG, keyed by the SVG hash,
//     format and scale.
//
// Only successful results are cached. A compile failure is never stored, so
// fixing a typo always reaches the engine.
//
// Backends:
//   - [FileCache]: per-user cache directory for the CLI and studio
//   - [RedisCache]: shared cache for the HTTP server
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"fmt"
	"time"
)

// Default time-to-live values per entry kind.
const (
	TTLArtifact = 7 * 24 * time.Hour
	TTLRaster   = 24 * time.Hour
)

// Cache stores opaque byte values under string keys.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value for key and whether it was present.
	// Expired entries are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ArtifactKeyOpts are the engine settings that change the produced SVG.
type ArtifactKeyOpts struct {
	Theme      string `json:"theme,omitempty"`
	Background string `json:"background,omitempty"`
	FontSize   int    `json:"font_size,omitempty"`
}

// Keyer builds cache keys.
type Keyer interface {
	// ArtifactKey returns the key for an engine's SVG output.
	ArtifactKey(engine, sourceHash string, opts ArtifactKeyOpts) string

	// RasterKey returns the key for a converted export of an SVG.
	RasterKey(svgHash, format string, scale float64) string
}

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard Keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ArtifactKey hashes the engine name, options and source hash together.
func (DefaultKeyer) ArtifactKey(engine, sourceHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact:"+engine, sourceHash, opts)
}

// RasterKey is readable since its inputs are already hashed.
func (DefaultKeyer) RasterKey(svgHash, format string, scale float64) string {
	return fmt.Sprintf("raster:%s:%.2f:%s", format, scale, svgHash)
}
