package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	registryAnnounceInterval = 10 * time.Second
	registryFetchInterval    = 15 * time.Second
	// registryTTL is three announce intervals, so a node must miss
	// several announces before its entry expires.
	registryTTL = 30 * time.Second
)

// Registry is a redis-backed rendezvous: every node keeps a TTL'd key
// alive under the derived namespace and periodically reads the other
// members. Entries of dead nodes expire on their own; the index set is
// cleaned lazily when an expired member is noticed.
//
// Key scheme, ns = derived namespace:
//
//	gsp:<ns>:node:<addr> -> node id   (expires)
//	gsp:<ns>:nodes       -> SET of addrs
type Registry struct {
	rdb      *redis.Client
	ns       string
	selfID   string
	selfAddr string
	onPeer   func(addr string)
	logf     func(format string, args ...any)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry connects to redis and verifies the connection.
func NewRegistry(redisAddr, namespace, selfID, selfAddr string, onPeer func(string), logf func(string, ...any)) (*Registry, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		DB:           0,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
		DialTimeout:  2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("registry connection failed: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Registry{
		rdb:      rdb,
		ns:       namespace,
		selfID:   selfID,
		selfAddr: selfAddr,
		onPeer:   onPeer,
		logf:     logf,
		ctx:      ctx,
		cancel:   stop,
	}, nil
}

func (r *Registry) nodeKey(addr string) string { return "gsp:" + r.ns + ":node:" + addr }
func (r *Registry) indexKey() string           { return "gsp:" + r.ns + ":nodes" }

// Start begins the announce and fetch loops.
func (r *Registry) Start() {
	r.logf("registry joined  ns=%s", r.ns)
	go r.announceLoop()
	go r.fetchLoop()
}

// Stop deregisters the node and closes the connection.
func (r *Registry) Stop() {
	r.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pipe := r.rdb.Pipeline()
	pipe.Del(ctx, r.nodeKey(r.selfAddr))
	pipe.SRem(ctx, r.indexKey(), r.selfAddr)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logf("registry deregister failed: %v", err)
	}
	r.rdb.Close()
}

func (r *Registry) announceLoop() {
	r.announce()
	ticker := time.NewTicker(registryAnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.announce()
		}
	}
}

// announce refreshes our TTL'd entry and index membership.
func (r *Registry) announce() {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, r.nodeKey(r.selfAddr), r.selfID, registryTTL)
	pipe.SAdd(ctx, r.indexKey(), r.selfAddr)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logf("registry announce failed: %v", err)
	}
}

func (r *Registry) fetchLoop() {
	r.fetch()
	ticker := time.NewTicker(registryFetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.fetch()
		}
	}
}

// fetch reads the member index, drops expired entries from it, and
// hands live addresses to the node.
func (r *Registry) fetch() {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	addrs, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		r.logf("registry fetch failed: %v", err)
		return
	}

	var live int
	for _, addr := range addrs {
		if addr == r.selfAddr {
			continue
		}
		if err := r.rdb.Get(ctx, r.nodeKey(addr)).Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				// Announce key expired: the node is gone.
				r.rdb.SRem(ctx, r.indexKey(), addr)
			}
			continue
		}
		live++
		r.onPeer(addr)
	}
	if live > 0 {
		r.logf("registry fetch  members=%d", live)
	}
}
