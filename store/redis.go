package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis URL and returns a connected client.
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CheckRedisConnection pings the server with a short timeout.
func CheckRedisConnection(client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	return nil
}

// RedisCleaner implements Cleaner on a redis keyspace. Collections are
// tracked in an index set at <namespace>:collections; a collection's
// entries live under <namespace>:<collection>:*.
type RedisCleaner struct {
	client    redis.UniversalClient
	namespace string
	log       log.Logger
}

// NewRedisCleaner returns a Cleaner over the given client and namespace.
func NewRedisCleaner(client redis.UniversalClient, namespace string, logger log.Logger) *RedisCleaner {
	if namespace == "" {
		namespace = "testd"
	}
	if logger == nil {
		logger = log.New()
	}
	return &RedisCleaner{client: client, namespace: namespace, log: logger}
}

func (c *RedisCleaner) indexKey() string {
	return c.namespace + ":collections"
}

func (c *RedisCleaner) entryPattern(name string) string {
	return c.namespace + ":" + name + ":*"
}

// Track records that a collection exists so a later cleanup finds it.
// Test harnesses call this when they persist run data.
func (c *RedisCleaner) Track(ctx context.Context, name string) error {
	return c.client.SAdd(ctx, c.indexKey(), name).Err()
}

// ListCollections returns every tracked collection.
func (c *RedisCleaner) ListCollections(ctx context.Context) ([]Collection, error) {
	names, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	collections := make([]Collection, 0, len(names))
	for _, name := range names {
		collections = append(collections, Collection{Name: name})
	}
	return collections, nil
}

// DeleteEntries removes every entry of the named collection and drops it
// from the index.
func (c *RedisCleaner) DeleteEntries(ctx context.Context, name string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.entryPattern(name), 100).Result()
		if err != nil {
			return fmt.Errorf("scanning collection %s: %w", name, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("deleting entries of %s: %w", name, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := c.client.SRem(ctx, c.indexKey(), name).Err(); err != nil {
		return fmt.Errorf("untracking collection %s: %w", name, err)
	}
	c.log.Debug("cleared collection", "collection", name)
	return nil
}
