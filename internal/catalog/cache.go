package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	productKeyPrefix = "catalog:product:"
	featuredListKey  = "catalog:products:list:featured"
)

func productKey(id string) string { return productKeyPrefix + id }

// Cache holds product snapshots and the featured landing page in Redis.
// A nil Cache, or one built with a nil client or non-positive TTL, caches
// nothing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) off() bool { return c == nil || c.client == nil || c.ttl <= 0 }

// Product returns the cached snapshot for id. A miss is (false, nil).
func (c *Cache) Product(ctx context.Context, id string) (Product, bool, error) {
	var p Product
	ok, err := c.read(ctx, productKey(id), &p)
	return p, ok, err
}

func (c *Cache) PutProduct(ctx context.Context, p Product) error {
	return c.write(ctx, productKey(p.ID), p)
}

// Featured returns the cached first page of featured products.
func (c *Cache) Featured(ctx context.Context) (ListResult, bool, error) {
	var res ListResult
	ok, err := c.read(ctx, featuredListKey, &res)
	return res, ok, err
}

func (c *Cache) PutFeatured(ctx context.Context, res ListResult) error {
	return c.write(ctx, featuredListKey, res)
}

// Invalidate drops the snapshots of ids together with the featured page,
// which may list any of them.
func (c *Cache) Invalidate(ctx context.Context, ids ...string) error {
	if c.off() {
		return nil
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, featuredListKey)
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) read(ctx context.Context, key string, dst any) (bool, error) {
	if c.off() {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dst)
}

func (c *Cache) write(ctx context.Context, key string, v any) error {
	if c.off() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
