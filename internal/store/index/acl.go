package index

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/warren/internal/store/keys"
)

// ACLCache is the process-wide "shared with me" cache spec.md §9 calls
// out as a global-mutable-cache pattern to re-architect as an explicit
// service handle: it is a field on the top-level store.Store, not a
// package global, and invalidations are a bounded channel broadcast
// rather than a lock-free map callers poke directly.
type ACLCache struct {
	cache         *lru.Cache[uint32, map[keys.DocumentID]uint8]
	invalidations chan uint32
}

// NewACLCache constructs a cache holding up to size principals' grant
// sets, grounded on the teacher's use of hashicorp/golang-lru for
// bounded in-memory caches.
func NewACLCache(size int) *ACLCache {
	cache, _ := lru.New[uint32, map[keys.DocumentID]uint8](size)
	return &ACLCache{
		cache:         cache,
		invalidations: make(chan uint32, 256),
	}
}

// Get returns the cached container-id -> grants map for principal, if any.
func (c *ACLCache) Get(principal uint32) (map[keys.DocumentID]uint8, bool) {
	return c.cache.Get(principal)
}

// Put populates the cache for principal.
func (c *ACLCache) Put(principal uint32, grants map[keys.DocumentID]uint8) {
	c.cache.Add(principal, grants)
}

// Invalidate evicts principal's cached grants and broadcasts the
// invalidation on the bounded channel for subscribers (e.g. a DAV
// resource cache layered on top) to react to. Non-blocking: a full
// channel drops the notification rather than stalling the caller, since
// subscribers can always fall back to the cache's own eviction.
func (c *ACLCache) Invalidate(principal uint32) {
	c.cache.Remove(principal)
	select {
	case c.invalidations <- principal:
	default:
	}
}

// Invalidations exposes the broadcast channel for subscribers.
func (c *ACLCache) Invalidations() <-chan uint32 {
	return c.invalidations
}

// InvalidateFromACLDiff invalidates every principal whose grants changed,
// called after Builder.Diff produces MutACL mutations.
func (c *ACLCache) InvalidateFromACLDiff(muts []Mutation) {
	seen := map[uint32]bool{}
	for _, m := range muts {
		if m.Kind != MutACL || seen[m.ACLPrincipal] {
			continue
		}
		seen[m.ACLPrincipal] = true
		c.Invalidate(m.ACLPrincipal)
	}
}
