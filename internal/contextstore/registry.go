package contextstore

import (
	"strings"
	"time"

	"github.com/skapxd/image-optimization-service/internal/ttlstore"
)

// Context kinds known to the service. Each kind gets its own typed registry;
// the orchestrator only requires ControllerParams.
const (
	KindControllerParams = "controller-params"
	KindUser             = "user"
	KindRequest          = "request"
	KindImage            = "image-optimization"
)

// Record wraps a context value with its bookkeeping fields.
type Record[T any] struct {
	ClientID  string
	Value     T
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Merge combines the previously stored value with newly supplied fields.
// A nil merge replaces the value wholesale.
type Merge[T any] func(old, next T) T

// Registry is a typed facade over the TTL store for one context kind.
// Keys are namespaced as "<kind>:<id>". Set performs merge-on-write:
// CreatedAt is preserved, UpdatedAt refreshed, ClientID defaults to the id.
type Registry[T any] struct {
	kind  string
	ttl   time.Duration
	store *ttlstore.Store[Record[T]]
	merge Merge[T]
}

func NewRegistry[T any](kind string, ttl time.Duration, merge Merge[T]) *Registry[T] {
	return &Registry[T]{
		kind:  kind,
		ttl:   ttl,
		store: ttlstore.New[Record[T]](ttl),
		merge: merge,
	}
}

func (r *Registry[T]) key(id string) string { return r.kind + ":" + id }

// Set stores value under id, composing it with any prior value.
func (r *Registry[T]) Set(id string, value T) Record[T] {
	now := time.Now()
	rec := Record[T]{
		ClientID:  id,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, ok := r.store.Get(r.key(id)); ok {
		rec.CreatedAt = prev.CreatedAt
		if prev.ClientID != "" {
			rec.ClientID = prev.ClientID
		}
		if r.merge != nil {
			rec.Value = r.merge(prev.Value, value)
		}
	}
	r.store.Set(r.key(id), rec, r.ttl)
	return rec
}

func (r *Registry[T]) Get(id string) (Record[T], bool) {
	return r.store.Get(r.key(id))
}

func (r *Registry[T]) Has(id string) bool {
	return r.store.Has(r.key(id))
}

func (r *Registry[T]) Delete(id string) bool {
	return r.store.Delete(r.key(id))
}

func (r *Registry[T]) UpdateTTL(id string, ttl time.Duration) bool {
	return r.store.UpdateTTL(r.key(id), ttl)
}

// IDs returns the unexpired ids of this kind.
func (r *Registry[T]) IDs() []string {
	keys := r.store.Keys()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, r.kind+":"))
	}
	return ids
}

func (r *Registry[T]) Count() int {
	return r.store.Size()
}

// Sweep eagerly evicts expired records, calling onEvict with the bare id.
func (r *Registry[T]) Sweep(onEvict func(id string, rec Record[T])) int {
	if onEvict == nil {
		return r.store.Sweep()
	}
	return r.store.SweepWith(func(key string, rec Record[T]) {
		onEvict(strings.TrimPrefix(key, r.kind+":"), rec)
	})
}

func (r *Registry[T]) Clear() {
	r.store.Clear()
}
