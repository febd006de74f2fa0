package redis

import (
	"github.com/redis/go-redis/v9"
)

// Cache exposes the raw client for components that build their own key
// schemes on top of it, such as the rate limiter.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}
