package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activeSessionsKey = "active_sessions"
	registryTimeout   = 2 * time.Second
	registryQueueSize = 1024
)

type registryOp struct {
	id     string
	fields map[string]interface{}
	remove bool
}

// registry mirrors live sessions into Redis for operators. Writes go
// through one worker so a slow Redis never stalls a relay loop.
type registry struct {
	redis *redis.Client
	ttl   time.Duration
	ops   chan registryOp
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newRegistry(rdb *redis.Client, ttl time.Duration) *registry {
	r := &registry{
		redis: rdb,
		ttl:   ttl,
		ops:   make(chan registryOp, registryQueueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *registry) submit(op registryOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ops <- op:
	default:
		log.Printf("⚠️ Session registry queue full, dropping update for %s", op.id)
	}
}

func (r *registry) register(s *Session, remoteAddr string) {
	r.submit(registryOp{id: s.ID, fields: map[string]interface{}{
		"created_at":  s.CreatedAt.Format(time.RFC3339),
		"remote_addr": remoteAddr,
		"state":       string(s.State()),
	}})
}

func (r *registry) setState(id string, st State) {
	r.submit(registryOp{id: id, fields: map[string]interface{}{"state": string(st)}})
}

func (r *registry) refresh(id string) {
	r.submit(registryOp{id: id})
}

func (r *registry) remove(id string) {
	r.submit(registryOp{id: id, remove: true})
}

func (r *registry) run() {
	defer close(r.done)
	for op := range r.ops {
		r.apply(op)
	}
}

func (r *registry) apply(op registryOp) {
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()

	key := sessionKey(op.id)
	pipe := r.redis.TxPipeline()
	if op.remove {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, activeSessionsKey, op.id)
	} else {
		if len(op.fields) > 0 {
			pipe.HSet(ctx, key, op.fields)
		}
		pipe.SAdd(ctx, activeSessionsKey, op.id)
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("⚠️ Session registry update failed for %s: %v", op.id, err)
	}
}

// close drains pending updates and closes the Redis client
func (r *registry) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ops)
	r.mu.Unlock()

	<-r.done
	_ = r.redis.Close()
}
