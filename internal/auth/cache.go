package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient подмножество операций Redis, нужных кешу
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache кеш результатов проверки токенов с TTL.
// Ключ строится из хеша токена, сам токен в Redis не попадает
type Cache struct {
	client RedisClient
	ttl    time.Duration
}

// NewCache создает кеш аутентификации
func NewCache(client RedisClient, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// GetUser возвращает пользователя из кеша; nil без ошибки при промахе
func (c *Cache) GetUser(ctx context.Context, token string) (*User, error) {
	data, err := c.client.Get(ctx, c.tokenKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from cache: %w", err)
	}

	user, err := UserFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize user: %w", err)
	}

	return user, nil
}

// SetUser сохраняет пользователя в кеш на время TTL
func (c *Cache) SetUser(ctx context.Context, token string, user *User) error {
	data, err := user.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize user: %w", err)
	}

	if err := c.client.Set(ctx, c.tokenKey(token), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user in cache: %w", err)
	}

	return nil
}

// DeleteUser удаляет запись токена (logout)
func (c *Cache) DeleteUser(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, c.tokenKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete user from cache: %w", err)
	}
	return nil
}

func (c *Cache) tokenKey(token string) string {
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("auth:token:%x", hash[:16])
}
