package redisholder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skapxd/image-optimization-service/internal/config"
)

const pingTimeout = 2 * time.Second

// DefaultHealthInterval applies when the config leaves the health-check
// interval unset.
const DefaultHealthInterval = 30 * time.Second

// connector dials one flavor of Redis deployment from the node list.
type connector func(ctx context.Context, rc *config.RedisConfig) (redis.UniversalClient, error)

// Holder hands out the live Redis client backing the journal. The health
// loop may replace the client underneath at any time, so callers re-Get per
// use instead of caching the result.
type Holder struct {
	v atomic.Value // redis.UniversalClient
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(initial)
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	c, _ := h.v.Load().(redis.UniversalClient)
	return c
}

func (h *Holder) swap(next redis.UniversalClient) (old redis.UniversalClient) {
	old, _ = h.v.Load().(redis.UniversalClient)
	h.v.Store(next)
	return old
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}

// Build connects to the configured Redis deployment, cluster mode first with
// a single-node fallback, and starts a background health loop that replaces
// the client once pings start failing. The loop stops and closes the client
// when ctx is canceled.
func Build(ctx context.Context, cfg *config.Config) (*Holder, error) {
	return buildWith(ctx, &cfg.Redis, connectCluster, connectSingle)
}

func buildWith(ctx context.Context, rc *config.RedisConfig, cluster, single connector) (*Holder, error) {
	cl, err := dial(ctx, rc, cluster, single)
	if err != nil {
		return nil, err
	}

	h := NewHolder(cl)
	go h.healthLoop(ctx, rc, cluster, single)
	return h, nil
}

func dial(ctx context.Context, rc *config.RedisConfig, cluster, single connector) (redis.UniversalClient, error) {
	if len(rc.Nodes) == 0 {
		return nil, errors.New("no redis nodes configured")
	}

	cl, clusterErr := cluster(ctx, rc)
	if clusterErr == nil {
		return cl, nil
	}

	cl, singleErr := single(ctx, rc)
	if singleErr != nil {
		return nil, fmt.Errorf("redis unreachable: cluster: %v, single node: %w", clusterErr, singleErr)
	}
	log.Printf("[redis-holder] cluster connect failed (%v), using single-node client", clusterErr)
	return cl, nil
}

func (h *Holder) healthLoop(ctx context.Context, rc *config.RedisConfig, cluster, single connector) {
	interval := rc.HealthCheckInterval * time.Second
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	log.Printf("[redis-holder] health loop started (interval=%v)", interval)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			log.Printf("[redis-holder] health loop stopped (%v)", ctx.Err())
			return
		case <-t.C:
			h.checkOnce(ctx, rc, cluster, single)
		}
	}
}

// checkOnce pings the live client and, on failure, dials a replacement. A
// failed redial keeps the current client so the next tick retries.
func (h *Holder) checkOnce(ctx context.Context, rc *config.RedisConfig, cluster, single connector) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := h.Get().Ping(pingCtx).Err()
	cancel()
	if err == nil {
		return
	}
	log.Printf("[redis-holder] ping failed (%v), reconnecting", err)

	next, err := dial(ctx, rc, cluster, single)
	if err != nil {
		log.Printf("[redis-holder] reconnect failed: %v", err)
		return
	}

	if old := h.swap(next); old != nil {
		_ = old.Close()
	}
	log.Printf("[redis-holder] reconnected")
}
