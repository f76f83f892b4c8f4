// Package cache stores rendered transform output in Redis, keyed by a
// digest of the task. A cache failure is never a request failure: misses
// and Redis errors both degrade to an uncached transform.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"xslhost/internal/config"
	"xslhost/pkg/engine"
)

const keyPrefix = "xslhost:result:"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client, ttl: ttl}, nil
}

// Key digests a task into a cache key. Input bytes, stylesheet bytes, and
// the parameter list all contribute; parameter order and duplicates are
// significant because engines see them in order.
func Key(engineName string, task *engine.Task) string {
	d := xxhash.New()

	writeField(d, []byte(engineName))
	writeDoc(d, task.Input)
	writeDoc(d, task.Stylesheet)
	for _, p := range task.Params {
		writeField(d, []byte(p.Key))
		writeField(d, []byte(p.Value))
	}

	return fmt.Sprintf("%s%016x", keyPrefix, d.Sum64())
}

func writeDoc(d *xxhash.Digest, doc *engine.InputDocument) {
	if doc == nil {
		writeField(d, nil)
		return
	}
	var kind [1]byte
	kind[0] = byte(doc.Type)
	_, _ = d.Write(kind[:])
	writeField(d, doc.Buffer())
}

// writeField length-prefixes each value so adjacent fields cannot collide.
func writeField(d *xxhash.Digest, b []byte) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = d.Write(n[:])
	_, _ = d.Write(b)
}

// Get returns the cached output for key, or nil on a miss or Redis error.
func (c *Cache) Get(ctx context.Context, key string) []byte {
	body, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("Cache read failed", "key", key, "error", err)
		}
		return nil
	}
	return body
}

// Set stores output under key with the configured TTL. Failures are logged
// and swallowed.
func (c *Cache) Set(ctx context.Context, key string, body []byte) {
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
