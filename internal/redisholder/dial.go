package redisholder

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skapxd/image-optimization-service/internal/config"
)

const defaultPoolSize = 20

func poolSize(rc *config.RedisConfig) int {
	if rc.PoolSize > 0 {
		return rc.PoolSize
	}
	return defaultPoolSize
}

func connectCluster(ctx context.Context, rc *config.RedisConfig) (redis.UniversalClient, error) {
	addrs := make([]string, 0, len(rc.Nodes))
	for _, node := range rc.Nodes {
		addrs = append(addrs, node.Addr())
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:          addrs,
		Password:       rc.Password,
		RouteByLatency: true,
		DialTimeout:    rc.DialTimeout * time.Second,
		ReadTimeout:    rc.ReadTimeout * time.Second,
		WriteTimeout:   rc.WriteTimeout * time.Second,
		PoolSize:       poolSize(rc),
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := cl.Ping(pingCtx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("ping redis cluster: %w", err)
	}
	return cl, nil
}

// connectSingle tries each configured node in order and keeps the first one
// that answers a ping.
func connectSingle(ctx context.Context, rc *config.RedisConfig) (redis.UniversalClient, error) {
	var lastErr error
	for _, node := range rc.Nodes {
		cl := redis.NewClient(&redis.Options{
			Addr:         node.Addr(),
			Password:     rc.Password,
			DB:           rc.DatabaseID,
			DialTimeout:  rc.DialTimeout * time.Second,
			ReadTimeout:  rc.ReadTimeout * time.Second,
			WriteTimeout: rc.WriteTimeout * time.Second,
			PoolSize:     poolSize(rc),
		})

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := cl.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = cl.Close()
			lastErr = fmt.Errorf("ping redis node %s: %w", node.Addr(), err)
			continue
		}
		return cl, nil
	}
	return nil, lastErr
}
