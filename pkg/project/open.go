package project

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
)

// Backend names accepted by OpenBackend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// BackendNames lists every supported backend.
var BackendNames = []string{BackendMemory, BackendFile, BackendRedis, BackendSQLite, BackendMongo}

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Kind string

	// Dir is the project directory of the file backend and the default
	// location of the sqlite database.
	Dir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SQLitePath string

	MongoURI      string
	MongoDatabase string
}

// OpenBackend constructs the configured backend.
func OpenBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFile, "":
		b, err := NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "open file backend")
		}
		return b, nil
	case BackendRedis:
		b, err := DialRedisBackend(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "open redis backend")
		}
		return b, nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "projects.db")
		}
		b, err := NewSQLiteBackend(path)
		if err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "open sqlite backend")
		}
		return b, nil
	case BackendMongo:
		db := cfg.MongoDatabase
		if db == "" {
			db = "diagramcraft"
		}
		b, err := DialMongoBackend(ctx, cfg.MongoURI, db)
		if err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeStorage, err, "open mongo backend")
		}
		return b, nil
	}
	return nil, derrors.New(derrors.ErrCodeInvalidInput, "unknown store backend %q (want one of %s)",
		cfg.Kind, strings.Join(BackendNames, ", "))
}

// ValidBackend reports whether name is a supported backend.
func ValidBackend(name string) bool {
	return slices.Contains(BackendNames, name)
}
