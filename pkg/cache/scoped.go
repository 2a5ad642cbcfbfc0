package cache

// ScopedKeyer wraps a Keyer with a prefix. A shared Redis instance can hold
// several deployments' caches side by side this way.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "diagramcraft:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ArtifactKey generates a prefixed key for compiled SVG caching.
func (k *ScopedKeyer) ArtifactKey(engine, sourceHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(engine, sourceHash, opts)
}

// RasterKey generates a prefixed key for export caching.
func (k *ScopedKeyer) RasterKey(svgHash, format string, scale float64) string {
	return k.prefix + k.inner.RasterKey(svgHash, format, scale)
}
