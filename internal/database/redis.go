package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/guildbank/backend/internal/config"
	"github.com/sirupsen/logrus"
)

// InitRedis connects to Redis. Redis is optional: on failure it logs and
// returns nil.
func InitRedis(cfg config.RedisConfig, log *logrus.Logger) *redis.Client {
	if cfg.Host == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis connection failed, continuing without Redis")
		rdb.Close()
		return nil
	}

	log.Info("Redis connection established")
	return rdb
}
