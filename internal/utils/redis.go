package utils

import (
	"context" // Context for the ping
	"time"    // Ping timeout

	"github.com/redis/go-redis/v9" // Redis client
)

// NewRedisClient connects and pings Redis. An empty address disables Redis:
// the client is nil and every cache helper becomes a miss.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,     // Redis server address
		Password: password, // Redis password
		DB:       db,       // Redis database number
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
