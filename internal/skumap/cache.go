package skumap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix   = "skumap:snapshot"
	generationKeyPrefix = "skumap:gen"
)

// ErrStaleSnapshot reports a snapshot loaded before the mappings were
// invalidated.
var ErrStaleSnapshot = errors.New("skumap: snapshot invalidated while loading")

// SnapshotCache keeps serialized mapping snapshots in Redis. A nil cache or
// client disables caching.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache instantiates the cache helper.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// Brand and portal ids may contain the separator, so the brand id carries its
// length to keep every pair on its own key.
func scopeSuffix(brandID, portalID string) string {
	return fmt.Sprintf("%d:%s:%s", len(brandID), brandID, portalID)
}

func snapshotKey(brandID, portalID string) string {
	return snapshotKeyPrefix + ":" + scopeSuffix(brandID, portalID)
}

func generationKey(brandID, portalID string) string {
	return generationKeyPrefix + ":" + scopeSuffix(brandID, portalID)
}

func (c *SnapshotCache) enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached pairs, reporting false on a miss.
func (c *SnapshotCache) Get(ctx context.Context, brandID, portalID string) ([]Pair, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, snapshotKey(brandID, portalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var pairs []Pair
	if err := json.Unmarshal(payload, &pairs); err != nil {
		return nil, false, err
	}
	return pairs, true, nil
}

// Generation returns the invalidation counter of brand/portal. Read it before
// loading from the store and hand it to Set.
func (c *SnapshotCache) Generation(ctx context.Context, brandID, portalID string) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	return readGeneration(ctx, c.client, generationKey(brandID, portalID))
}

func readGeneration(ctx context.Context, cmd redis.Cmdable, key string) (int64, error) {
	gen, err := cmd.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores pairs under the brand/portal key unless an invalidation happened
// after gen was read, in which case ErrStaleSnapshot is returned.
func (c *SnapshotCache) Set(ctx context.Context, brandID, portalID string, gen int64, pairs []Pair) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	genKey := generationKey(brandID, portalID)
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if current != gen {
			return ErrStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, snapshotKey(brandID, portalID), raw, c.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return ErrStaleSnapshot
		}
		return err
	}, genKey)
}

// Invalidate drops the cached snapshot so the next run reloads from the store.
// Loads already in flight will not write their snapshot back.
func (c *SnapshotCache) Invalidate(ctx context.Context, brandID, portalID string) error {
	if !c.enabled() {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(brandID, portalID))
		pipe.Del(ctx, snapshotKey(brandID, portalID))
		return nil
	})
	return err
}
