package session

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/parish-tools/rosterbot/pkg/config"
)

// NewStore picks a session driver from configuration. "memory" is the
// default; "redis" survives restarts and allows multiple bot instances.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.Session.Storage {
	case "", "memory":
		return NewMemoryStore(cfg.Session.Timeout), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, cfg.Session.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown session storage %q", cfg.Session.Storage)
	}
}
