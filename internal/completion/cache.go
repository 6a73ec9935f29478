package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// kv is the subset of *redis.Client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache memoizes completions in Redis. Redis failures never fail a call:
// the cache is skipped and the backend answers.
type Cache struct {
	next      Service
	rdb       kv
	namespace string
	ttl       time.Duration
	logger    *log.Logger
}

// NewCache wraps next. namespace separates entries of different models.
func NewCache(next Service, rdb kv, namespace string, ttl time.Duration, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPLETION] ", log.LstdFlags)
	}
	return &Cache{next: next, rdb: rdb, namespace: namespace, ttl: ttl, logger: logger}
}

// Complete implements Service.
func (c *Cache) Complete(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
	key := c.key(InstructionsFrom(ctx), inputs, outputs)

	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var hit map[string]string
		if json.Unmarshal([]byte(raw), &hit) == nil && CheckOutputs(hit, outputs) == nil {
			return hit, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Printf("cache get failed: %v", err)
	}

	resp, err := c.next.Complete(ctx, inputs, outputs)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(resp); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Printf("cache set failed: %v", err)
		}
	}
	return resp, nil
}

func (c *Cache) key(instructions string, inputs map[string]string, outputs []string) string {
	names := make([]string, 0, len(inputs))
	for k := range inputs {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(instructions))
	h.Write([]byte{0})
	for _, k := range names {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(inputs[k]))
		h.Write([]byte{0})
	}
	for _, f := range outputs {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return "analyst:completion:" + c.namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
