package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// Read-cache TTLs
const (
	WalletCacheTTL = 60 * time.Second
	MarketCacheTTL = 30 * time.Second
)

// WalletKey caches the wallet summary of a user
func WalletKey(userID uint) string { return "wallet:user:" + strconv.FormatUint(uint64(userID), 10) }

// HoldingsKey caches the share holdings of a user
func HoldingsKey(userID uint) string { return "holdings:user:" + strconv.FormatUint(uint64(userID), 10) }

// TxHistoryKey caches one page of a user's transaction history
func TxHistoryKey(userID uint, page, size int) string {
	return "txhistory:user:" + strconv.FormatUint(uint64(userID), 10) + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(size)
}

// CompanyKey caches the latest price of a company
func CompanyKey(companyID uint) string { return "market:company:" + strconv.FormatUint(uint64(companyID), 10) }

// GetCache retrieves a value from Redis and unmarshals it into dest.
// A nil client is a permanent miss.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// InvalidateUser drops every cached read model of a user after a committed
// mutation. History pages are matched with SCAN since page sizes vary.
func InvalidateUser(ctx context.Context, rdb *redis.Client, userID uint) error {
	if rdb == nil {
		return nil
	}
	keys := []string{WalletKey(userID), HoldingsKey(userID)}
	iter := rdb.Scan(ctx, 0, "txhistory:user:"+strconv.FormatUint(uint64(userID), 10)+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return DeleteCache(ctx, rdb, keys...)
}
