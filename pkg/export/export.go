// Package export turns the current diagram artifact into downloadable files.
//
// Export never compiles. It reads whatever artifact the render session
// currently holds and encodes it:
//
//	svg  verbatim markup
//	png  rasterized at the viewport zoom times the base scale
//	pdf  vector conversion through rsvg-convert
//
// Raster output is cached by SVG hash, format and scale.
package export

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/diagramcraft/pkg/cache"
	"github.com/matzehuels/diagramcraft/pkg/diagram"
	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/observability"
)

// Export formats.
const (
	FormatSVG = "svg"
	FormatPNG = "png"
	FormatPDF = "pdf"
)

// Formats lists every supported format.
var Formats = []string{FormatSVG, FormatPNG, FormatPDF}

var mimeTypes = map[string]string{
	FormatSVG: "image/svg+xml",
	FormatPNG: "image/png",
	FormatPDF: "application/pdf",
}

// DefaultScale is the base raster scale at zoom 1.
const DefaultScale = 2.0

// MsgNoArtifact is shown when exporting before anything rendered.
const MsgNoArtifact = "render a diagram first"

// ParseFormat normalizes a format name.
func ParseFormat(s string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(s))
	if _, ok := mimeTypes[f]; !ok {
		return "", derrors.New(derrors.ErrCodeInvalidFormat,
			"unsupported export format %q (want one of %s)", s, strings.Join(Formats, ", "))
	}
	return f, nil
}

// Download is one exported file.
type Download struct {
	Filename string
	MIME     string
	Data     []byte
}

// DataURI returns the file as a base64 data URI.
func (d *Download) DataURI() string {
	return "data:" + d.MIME + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

// ArtifactSource supplies the artifact to export. *session.Session
// implements it.
type ArtifactSource interface {
	CurrentArtifact() (*diagram.Artifact, bool)
}

// Static is an ArtifactSource over a fixed artifact. A nil artifact reports
// none.
type Static struct{ Artifact *diagram.Artifact }

func (s Static) CurrentArtifact() (*diagram.Artifact, bool) {
	return s.Artifact, s.Artifact != nil
}

// Config configures a Service.
type Config struct {
	Artifacts ArtifactSource

	// Zoom returns the viewport zoom applied to raster output. Nil means 1.
	Zoom func() float64

	// Scale is the raster scale at zoom 1. Zero uses DefaultScale.
	Scale float64

	// Rasterizer converts SVG to PNG and PDF. Nil uses rsvg-convert.
	Rasterizer Rasterizer

	// Cache stores raster output. Nil disables caching.
	Cache cache.Cache
	Keyer cache.Keyer

	Logger *log.Logger
}

// Service exports the current artifact.
type Service struct {
	artifacts  ArtifactSource
	zoom       func() float64
	scale      float64
	rasterizer Rasterizer
	cache      cache.Cache
	keyer      cache.Keyer
	logger     *log.Logger
}

// New creates an export service.
func New(cfg Config) *Service {
	s := &Service{
		artifacts:  cfg.Artifacts,
		zoom:       cfg.Zoom,
		scale:      cfg.Scale,
		rasterizer: cfg.Rasterizer,
		cache:      cfg.Cache,
		keyer:      cfg.Keyer,
		logger:     cfg.Logger,
	}
	if s.artifacts == nil {
		s.artifacts = Static{}
	}
	if s.zoom == nil {
		s.zoom = func() float64 { return 1 }
	}
	if s.scale <= 0 {
		s.scale = DefaultScale
	}
	if s.rasterizer == nil {
		s.rasterizer = NewRsvg("")
	}
	if s.cache == nil {
		s.cache = cache.NewNullCache()
	}
	if s.keyer == nil {
		s.keyer = cache.NewDefaultKeyer()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// Rasterizer returns the configured rasterizer.
func (s *Service) Rasterizer() Rasterizer { return s.rasterizer }

// Export encodes the current artifact in format. It fails with NO_ARTIFACT
// when nothing has rendered yet and INVALID_FORMAT for unknown formats.
func (s *Service) Export(ctx context.Context, format string) (d *Download, err error) {
	start := time.Now()
	defer func() {
		size := 0
		if d != nil {
			size = len(d.Data)
		}
		observability.Export().OnExport(ctx, format, size, time.Since(start), err)
	}()

	format, err = ParseFormat(format)
	if err != nil {
		return nil, err
	}
	art, ok := s.artifacts.CurrentArtifact()
	if !ok || len(art.SVG) == 0 {
		return nil, derrors.New(derrors.ErrCodeNoArtifact, MsgNoArtifact)
	}

	var data []byte
	switch format {
	case FormatSVG:
		data = art.SVG
	case FormatPNG:
		data, err = s.convert(ctx, art.SVG, format, s.scale*s.zoom())
	case FormatPDF:
		data, err = s.convert(ctx, art.SVG, format, 1)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("exported diagram", "format", format, "bytes", len(data), "duration", time.Since(start))
	return &Download{
		Filename: "diagram." + format,
		MIME:     mimeTypes[format],
		Data:     data,
	}, nil
}

func (s *Service) convert(ctx context.Context, svg []byte, format string, scale float64) ([]byte, error) {
	key := s.keyer.RasterKey(cache.Hash(svg), format, scale)
	if data, hit, err := s.cache.Get(ctx, key); err == nil && hit && len(data) > 0 {
		observability.Cache().OnCacheHit(ctx, "raster")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "raster")

	var (
		data []byte
		err  error
	)
	if format == FormatPDF {
		data, err = s.rasterizer.PDF(ctx, svg)
	} else {
		data, err = s.rasterizer.PNG(ctx, svg, scale)
	}
	if err != nil {
		if derrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, derrors.Wrap(derrors.ErrCodeExport, err, "%s export failed", format)
	}

	if err := s.cache.Set(ctx, key, data, cache.TTLRaster); err != nil {
		s.logger.Warn("raster cache write failed", "error", err)
	} else {
		observability.Cache().OnCacheSet(ctx, "raster", len(data))
	}
	return data, nil
}
