// Package dedupe remembers idempotency keys so a retried history save is
// acknowledged without being written twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper records idempotency keys.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it
	// if not. The check and the write are atomic.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a request that could not be accepted (queue
	// full, write failed) may be retried with the same key.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key string
	at  time.Time
}

// Keys is a bounded, optionally expiring Deduper. When full, the oldest key
// is forgotten first.
type Keys struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

var _ Deduper = (*Keys)(nil)

// New returns an empty key set.
func New(opts ...Option) *Keys {
	k := &Keys{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: 10_000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// SeenAndRecord implements Deduper.
func (k *Keys) SeenAndRecord(_ context.Context, key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.expire(now)

	if _, ok := k.index[key]; ok {
		return true
	}
	if k.maxSize > 0 && k.order.Len() >= k.maxSize {
		k.remove(k.order.Back())
	}
	k.index[key] = k.order.PushFront(entry{key: key, at: now})
	return false
}

// Unrecord implements Deduper.
func (k *Keys) Unrecord(_ context.Context, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if el, ok := k.index[key]; ok {
		k.remove(el)
	}
}

// Size implements Deduper.
func (k *Keys) Size() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return int64(k.order.Len())
}

// expire drops keys older than the TTL. Caller holds mu.
func (k *Keys) expire(now time.Time) {
	if k.ttl <= 0 {
		return
	}
	for el := k.order.Back(); el != nil; el = k.order.Back() {
		if now.Sub(el.Value.(entry).at) < k.ttl {
			return
		}
		k.remove(el)
	}
}

func (k *Keys) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(k.index, el.Value.(entry).key)
	k.order.Remove(el)
}
