package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/achievement-api/pkg/config"
)

const pingTimeout = 2 * time.Second

// NewRedis connects to Redis and fails fast when the server does not answer.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  pingTimeout,
		WriteTimeout: pingTimeout,
	})

	if err := Ping(context.Background(), client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", client.Options().Addr, err)
	}
	return client, nil
}

// Ping checks the connection within a short deadline; used at startup and by readiness probes.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Key joins key parts under the configured prefix, e.g. Key("app", "lock", "id") -> "app:lock:id".
func Key(prefix string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, ":"); p != "" {
		all = append(all, p)
	}
	all = append(all, parts...)
	return strings.Join(all, ":")
}
