package metacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docconsole/internal/docs"

	"github.com/redis/go-redis/v9"
)

const mergeRetries = 5

// Redis shares the cache across gateway instances. Each project owns two hashes,
// one of titles and one of JSON-encoded NodeMeta.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, ttl), nil
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, prefix: "docconsole:", ttl: ttl}
}

func (r *Redis) titlesKey(project string) string {
	return r.prefix + "titles:" + project
}

func (r *Redis) metaKey(project string) string {
	return r.prefix + "nodemeta:" + project
}

func (r *Redis) Lookup(ctx context.Context, project string) (map[string]string, error) {
	titles, err := r.client.HGetAll(ctx, r.titlesKey(project)).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup titles: %w", err)
	}
	return titles, nil
}

// Merge reads the current titles under WATCH and writes only ids that are absent or
// placeholders, retrying when another writer touched the hash meanwhile.
func (r *Redis) Merge(ctx context.Context, project string, titles map[string]string) error {
	ids := make([]string, 0, len(titles))
	for id, title := range titles {
		if !docs.IsPlaceholderTitle(title) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	key := r.titlesKey(project)
	txf := func(tx *redis.Tx) error {
		current, err := tx.HMGet(ctx, key, ids...).Result()
		if err != nil {
			return err
		}
		updates := make(map[string]any)
		for i, id := range ids {
			existing, ok := current[i].(string)
			if ok && !docs.IsPlaceholderTitle(existing) {
				continue
			}
			updates[id] = titles[id]
		}
		if len(updates) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, updates)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < mergeRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("merge titles: %w", err)
		}
		return nil
	}
	return fmt.Errorf("merge titles: %w", redis.TxFailedErr)
}

func (r *Redis) Put(ctx context.Context, project, id, title string) error {
	key := r.titlesKey(project)
	if docs.IsPlaceholderTitle(title) {
		if err := r.client.HDel(ctx, key, id).Err(); err != nil {
			return fmt.Errorf("clear title: %w", err)
		}
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, id, title)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put title: %w", err)
	}
	return nil
}

func (r *Redis) Reconcile(ctx context.Context, project string, titles map[string]string) error {
	updates := make(map[string]any)
	for id, title := range titles {
		if !docs.IsPlaceholderTitle(title) {
			updates[id] = title
		}
	}
	if len(updates) == 0 {
		return nil
	}
	key := r.titlesKey(project)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, updates)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reconcile titles: %w", err)
	}
	return nil
}

func (r *Redis) GetMeta(ctx context.Context, project string, ids []string) (map[string]NodeMeta, error) {
	out := make(map[string]NodeMeta)
	if len(ids) == 0 {
		return out, nil
	}
	values, err := r.client.HMGet(ctx, r.metaKey(project), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get node meta: %w", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var meta NodeMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			continue
		}
		out[ids[i]] = meta
	}
	return out, nil
}

func (r *Redis) PutMeta(ctx context.Context, project string, metas map[string]NodeMeta) error {
	if len(metas) == 0 {
		return nil
	}
	updates := make(map[string]any, len(metas))
	for id, meta := range metas {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal node meta: %w", err)
		}
		updates[id] = string(encoded)
	}
	key := r.metaKey(project)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, updates)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put node meta: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
