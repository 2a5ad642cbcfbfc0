package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/diagramcraft/internal/config"
	"github.com/matzehuels/diagramcraft/pkg/cache"
	"github.com/matzehuels/diagramcraft/pkg/controller"
	"github.com/matzehuels/diagramcraft/pkg/engine"
	"github.com/matzehuels/diagramcraft/pkg/export"
	"github.com/matzehuels/diagramcraft/pkg/gateway"
	"github.com/matzehuels/diagramcraft/pkg/project"
	"github.com/matzehuels/diagramcraft/pkg/session"
	"github.com/matzehuels/diagramcraft/pkg/templates"
)

// redisKeyPrefix namespaces cache keys in a shared Redis.
const redisKeyPrefix = appName + ":"

// =============================================================================
// Render Stack
// =============================================================================

// renderStack is the compile half of the application: engine, cache and
// gateway. One-shot renders need nothing more.
type renderStack struct {
	engine  engine.Engine
	cache   cache.Cache
	keyer   cache.Keyer
	gateway *gateway.Gateway
}

// engineOverrides are command-line replacements for [engine] settings.
type engineOverrides struct {
	name  string
	theme string
}

func (c *CLI) openRenderStack(ctx context.Context, cfg config.Config, ov engineOverrides, noCache bool) (*renderStack, error) {
	name := cfg.Engine.Name
	if ov.name != "" {
		name = ov.name
	}
	opts := engine.Options{
		Theme:      cfg.Engine.Theme,
		Background: cfg.Engine.Background,
		FontSize:   cfg.Engine.FontSize,
		MermaidBin: cfg.Engine.MermaidBin,
		Logger:     c.Logger,
	}
	if ov.theme != "" {
		opts.Theme = ov.theme
	}
	eng, err := engine.New(name, opts)
	if err != nil {
		return nil, err
	}

	ch, keyer, err := c.openCache(ctx, cfg, noCache)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}

	gw := gateway.New(gateway.Config{
		Engine:  eng,
		KeyOpts: opts.WithDefaults().CacheOpts(),
		Cache:   ch,
		Keyer:   keyer,
		Timeout: time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		Logger:  c.Logger,
	})
	return &renderStack{engine: eng, cache: ch, keyer: keyer, gateway: gw}, nil
}

func (r *renderStack) Close() {
	_ = r.engine.Close()
	_ = r.cache.Close()
}

// openCache builds the configured artifact cache. A file cache that cannot
// be created degrades to no caching.
func (c *CLI) openCache(ctx context.Context, cfg config.Config, noCache bool) (cache.Cache, cache.Keyer, error) {
	keyer := cache.NewDefaultKeyer()
	if noCache {
		return cache.NewNullCache(), keyer, nil
	}

	switch cfg.Cache.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), keyer, nil
	case config.CacheRedis:
		rc, err := cache.DialRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		c.Logger.Debug("using redis cache", "addr", cfg.Cache.RedisAddr)
		return rc, cache.NewScopedKeyer(keyer, redisKeyPrefix), nil
	}

	dir, err := cfg.ResolvedCacheDir()
	if err != nil {
		c.Logger.Warn("cache disabled", "error", err)
		return cache.NewNullCache(), keyer, nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		c.Logger.Warn("cache disabled", "dir", dir, "error", err)
		return cache.NewNullCache(), keyer, nil
	}
	c.Logger.Debug("using file cache", "dir", dir)
	return fc, keyer, nil
}

// =============================================================================
// Project Store
// =============================================================================

func (c *CLI) openStore(ctx context.Context, cfg config.Config) (*project.Store, error) {
	dir, err := cfg.ProjectsDir()
	if err != nil {
		return nil, err
	}
	backend, err := project.OpenBackend(ctx, project.BackendConfig{
		Kind:          cfg.Store.Backend,
		Dir:           dir,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
		SQLitePath:    cfg.Store.SQLitePath,
		MongoURI:      cfg.Store.MongoURI,
		MongoDatabase: cfg.Store.MongoDatabase,
	})
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("opened project store", "backend", cfg.Store.Backend)
	return project.NewStore(backend, project.Options{
		DefaultSource: templates.DefaultSource(),
		HistoryLimit:  cfg.Store.HistoryLimit,
		Logger:        c.Logger,
	}), nil
}

// =============================================================================
// Studio
// =============================================================================

// app is the complete studio: render stack, project store, working session,
// controller and export service. The terminal studio, the HTTP server and
// the project render command all run on it.
type app struct {
	cfg    config.Config
	render *renderStack
	store  *project.Store
	ctrl   *controller.Controller
	export *export.Service
	logger *log.Logger
}

func (c *CLI) openApp(ctx context.Context, noCache bool) (*app, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return c.openAppWith(ctx, cfg, engineOverrides{}, noCache)
}

func (c *CLI) openAppWith(ctx context.Context, cfg config.Config, ov engineOverrides, noCache bool) (*app, error) {
	rs, err := c.openRenderStack(ctx, cfg, ov, noCache)
	if err != nil {
		return nil, err
	}
	store, err := c.openStore(ctx, cfg)
	if err != nil {
		rs.Close()
		return nil, err
	}
	rast, err := export.NewRasterizer(cfg.Export.Rasterizer, export.RasterizerOptions{
		RsvgBin:    cfg.Export.RsvgBin,
		ChromePath: cfg.Export.ChromePath,
	})
	if err != nil {
		_ = store.Close()
		rs.Close()
		return nil, err
	}

	sess := session.New(rs.gateway, session.Options{
		Policy: sessionPolicy(cfg.Session.FailurePolicy),
		Logger: c.Logger,
	})
	ctrl := controller.New(store, sess, controller.Options{
		Debounce:        time.Duration(cfg.Session.DebounceMS) * time.Millisecond,
		DiscardOnSwitch: !cfg.Session.CommitOnSwitch,
		Logger:          c.Logger,
	})
	exp := export.New(export.Config{
		Artifacts:  sess,
		Zoom:       ctrl.Zoom,
		Scale:      cfg.Export.Scale,
		Rasterizer: rast,
		Cache:      rs.cache,
		Keyer:      rs.keyer,
		Logger:     c.Logger,
	})

	return &app{cfg: cfg, render: rs, store: store, ctrl: ctrl, export: exp, logger: c.Logger}, nil
}

// Close releases everything in reverse construction order.
func (a *app) Close() {
	a.ctrl.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close project store", "error", err)
	}
	a.render.Close()
}

func sessionPolicy(name string) session.Policy {
	if name == config.PolicyDiscard {
		return session.DiscardOnFailure
	}
	return session.RetainLastGood
}
