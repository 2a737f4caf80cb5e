package cluster

import (
	"container/list"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pable/smeecher/internal/engine"
	"github.com/pable/smeecher/internal/filter"
)

// cacheKey is the canonical (sorted) include/exclude token tuples plus
// the cluster params.
type cacheKey struct {
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
	Params  Params   `json:"params"`
}

func newCacheKey(include, exclude []string, p Params) cacheKey {
	inc := append([]string{}, include...)
	exc := append([]string{}, exclude...)
	sort.Strings(inc)
	sort.Strings(exc)
	return cacheKey{Include: inc, Exclude: exc, Params: p}
}

// RunID returns the deterministic SHA-1 hex digest over a canonical JSON
// serialization of the cache key, so a client can correlate
// a later playbook request to the cluster run that produced a cluster id.
func (k cacheKey) RunID() string {
	buf, _ := json.Marshal(k)
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:])
}

func (k cacheKey) cacheString() string {
	buf, _ := json.Marshal(k)
	return string(buf)
}

type cacheEntry struct {
	key       string
	result    Result
	members   map[int][]int32 // cluster id -> member row indices
	expiresAt time.Time
}

// Cache is a thread-safe LRU+TTL pair: one eviction-ordered list backs
// two logical stores (the JSON-able Result and the per-cluster membership
// row indices the playbook needs), so evicting one entry evicts both
// halves together.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
}

// NewCache returns an empty cache with capacity 24 and TTL 10 minutes.
func NewCache() *Cache {
	return &Cache{capacity: 24, ttl: 10 * time.Minute, order: list.New(), entries: map[string]*list.Element{}}
}

// Get returns a cached (result, membership) pair if present and unexpired,
// moving it to the most-recently-used end.
func (c *Cache) Get(include, exclude []string, p Params) (Result, map[int][]int32, bool) {
	key := newCacheKey(include, exclude, p).cacheString()
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return Result{}, nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return Result{}, nil, false
	}
	c.order.MoveToFront(el)
	return entry.result, entry.members, true
}

// Put inserts a freshly computed result, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache) Put(include, exclude []string, p Params, result Result, members map[int][]int32) {
	key := newCacheKey(include, exclude, p).cacheString()
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).result = result
		el.Value.(*cacheEntry).members = members
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		return
	}
	entry := &cacheEntry{key: key, result: result, members: members, expiresAt: time.Now().Add(c.ttl)}
	el := c.order.PushFront(entry)
	c.entries[key] = el
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Compute serves (rawFilter, p) from the cache when a fresh entry exists,
// and otherwise runs ComputeClusters outside the lock, stores the result
// plus its membership rows, and returns it. Either way the result carries
// the deterministic run id for the canonicalized key.
func (c *Cache) Compute(eng *engine.Engine, rawFilter string, p Params) Result {
	include, exclude := filter.ParseTokens(rawFilter)
	runID := newCacheKey(include, exclude, p).RunID()
	if r, _, ok := c.Get(include, exclude, p); ok {
		r.RunID = runID
		return r
	}
	r := ComputeClusters(eng, rawFilter, p)
	r.RunID = runID
	c.Put(include, exclude, p, r, membersFromClusters(r.Clusters))
	return r
}

// membersFromClusters flattens Cluster.memberRows into the shape Cache.Put
// expects, for callers that only have a Result in hand.
func membersFromClusters(clusters []Cluster) map[int][]int32 {
	out := make(map[int][]int32, len(clusters))
	for _, c := range clusters {
		out[c.ID] = c.memberRows
	}
	return out
}
