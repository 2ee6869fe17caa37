package bot

import (
	"hash/fnv"
	"sync"
	"time"
)

const dedupShards = 16

type dedupEntry struct {
	id   string
	seen time.Time
}

type dedupShard struct {
	mu    sync.Mutex
	ids   map[string]time.Time
	order []dedupEntry // insertion order, oldest first
}

// DedupCache suppresses duplicate provider deliveries of the same message
// id inside a bounded window. Bounded both by entry count and by age;
// sharded so unrelated messages never contend on one lock.
type DedupCache struct {
	shards  [dedupShards]*dedupShard
	maxIDs  int
	window  time.Duration
	nowFunc func() time.Time
}

// NewDedupCache creates a cache holding at most maxIDs ids, each for at
// most window.
func NewDedupCache(maxIDs int, window time.Duration) *DedupCache {
	c := &DedupCache{
		maxIDs:  maxIDs,
		window:  window,
		nowFunc: time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &dedupShard{ids: make(map[string]time.Time)}
	}
	return c
}

// Seen atomically records id and reports whether it was already present
// within the window. The first call for an id returns false, every
// further call inside the window returns true.
func (c *DedupCache) Seen(id string) bool {
	now := c.nowFunc()

	h := fnv.New32a()
	h.Write([]byte(id))
	sh := c.shards[h.Sum32()%dedupShards]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.prune(now, c.window, c.perShardCap())

	if seenAt, ok := sh.ids[id]; ok && now.Sub(seenAt) <= c.window {
		return true
	}

	sh.ids[id] = now
	sh.order = append(sh.order, dedupEntry{id: id, seen: now})
	return false
}

// Forget removes id so a later redelivery is processed again. The stale
// order entry is skipped at prune time because its map entry is gone.
func (c *DedupCache) Forget(id string) {
	h := fnv.New32a()
	h.Write([]byte(id))
	sh := c.shards[h.Sum32()%dedupShards]

	sh.mu.Lock()
	delete(sh.ids, id)
	sh.mu.Unlock()
}

// Len returns the number of tracked ids, including not-yet-pruned ones.
func (c *DedupCache) Len() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		total += len(sh.ids)
		sh.mu.Unlock()
	}
	return total
}

func (c *DedupCache) perShardCap() int {
	cap := c.maxIDs / dedupShards
	if cap < 1 {
		cap = 1
	}
	return cap
}

// prune drops expired entries, then evicts oldest entries while over the
// shard cap. order and ids stay consistent: an id present in ids always
// has its newest insertion in order.
func (sh *dedupShard) prune(now time.Time, window time.Duration, cap int) {
	cut := 0
	for cut < len(sh.order) {
		e := sh.order[cut]
		expired := now.Sub(e.seen) > window
		over := len(sh.order)-cut >= cap
		if !expired && !over {
			break
		}
		if seenAt, ok := sh.ids[e.id]; ok && seenAt.Equal(e.seen) {
			delete(sh.ids, e.id)
		}
		cut++
	}
	if cut > 0 {
		sh.order = append([]dedupEntry(nil), sh.order[cut:]...)
	}
}
