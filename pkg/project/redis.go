package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	projectKeyPrefix = "diagramcraft:project:" // JSON record: diagramcraft:project:{id}
	projectIndexKey  = "diagramcraft:projects" // Set of project ids
	activeKey        = "diagramcraft:active"   // Active project id
)

// RedisBackend stores each project as a JSON string plus an id index set.
type RedisBackend struct {
	client *redis.Client
	owned  bool
}

// NewRedisBackend wraps an existing client. Close does not close it.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// DialRedisBackend connects to addr and verifies the connection.
func DialRedisBackend(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisBackend{client: client, owned: true}, nil
}

func projectKey(id string) string { return projectKeyPrefix + id }

func (r *RedisBackend) Get(ctx context.Context, id string) (*Project, error) {
	data, err := r.client.Get(ctx, projectKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal project: %w", err)
	}
	return &p, nil
}

func (r *RedisBackend) Put(ctx context.Context, p *Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, projectKey(p.ID), data, 0)
	pipe.SAdd(ctx, projectIndexKey, p.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, projectKey(id))
	pipe.SRem(ctx, projectIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisBackend) List(ctx context.Context) ([]*Project, error) {
	ids, err := r.client.SMembers(ctx, projectIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = projectKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}

	out := make([]*Project, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Index entry without a record.
			continue
		}
		var p Project
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

func (r *RedisBackend) Active(ctx context.Context) (string, error) {
	id, err := r.client.Get(ctx, activeKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active project: %w", err)
	}
	return id, nil
}

func (r *RedisBackend) SetActive(ctx context.Context, id string) error {
	var err error
	if id == "" {
		err = r.client.Del(ctx, activeKey).Err()
	} else {
		err = r.client.Set(ctx, activeKey, id, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("set active project: %w", err)
	}
	return nil
}

// Close closes the client if this backend dialed it.
func (r *RedisBackend) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)
