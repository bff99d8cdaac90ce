package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClientWithRetry init redis connection have retry
// Task State Store 需要跑 Lua script 做原子轉移，這裡回傳原生 client
func NewRedisClientWithRetry(d RedisConnection) (*redis.Client, error) {
	var rdb *redis.Client
	var err error

	for attempt := 1; attempt <= d.RetryCount; attempt++ {
		rdb = redis.NewClient(&redis.Options{
			Addr: d.Addr,
			DB:   d.DB,
		})

		// 测试连接
		err = rdb.Ping(context.Background()).Err()
		if err == nil {
			log.Printf("Redis[%s] 連線成功 (嘗試 %d 次)", d.Addr, attempt)
			return rdb, nil
		}

		log.Printf("Redis[%s] 連線失敗 (嘗試 %d/%d): %v", d.Addr, attempt, d.RetryCount, err)
		rdb.Close()
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to redis[%s] after %d attempts: %w", d.Addr, d.RetryCount, err)
}
