package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/GymDesk/internal/pkg/cache"
	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
)

// limiterDatabase keeps rate limit counters apart from the cache and job queue (DB 0).
const limiterDatabase = 1

// NewLimiterStorage returns Redis storage for the API rate limiter, sharing
// the cache connection settings, so limits hold across app instances.
// It returns nil when the cache is not set up.
func NewLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	if cacheClient == nil {
		log.Warn("[Router] Cache not initialized, rate limiter keeps counters in memory")
		return nil
	}

	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	addr := cacheClient.Options().Addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	if p := cacheClient.Options().Password; p != "" {
		password = p
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
