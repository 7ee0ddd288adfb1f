package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/synthloom/core/internal/domain"
)

// queryCacheCap and queryCacheTTL implement spec §3's data model entry
// and §8 invariant 8: retrieval results are cached per query hash, capped
// at 100 entries, expiring after 24h so decay/feedback eventually
// surfaces through a cold lookup again.
const (
	queryCacheCap = 100
	queryCacheTTL = 24 * time.Hour
)

// queryCacheEntry pairs a cached result with the time it was stored, so
// a hit past queryCacheTTL can be told apart from a fresh one.
type queryCacheEntry struct {
	lessons  []domain.Lesson
	cachedAt time.Time
}

// QueryCache sits in front of Store.GetRelevant, keyed by a hash of the
// query words and result size. Size-bounding is delegated to an
// underlying LRU so a long-running loop's cache never grows past
// queryCacheCap regardless of task-description diversity; TTL expiry is
// checked on read since the LRU itself has no notion of staleness.
type QueryCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewQueryCache creates a QueryCache bounded at queryCacheCap entries.
func NewQueryCache() *QueryCache {
	cache, err := lru.New(queryCacheCap)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// queryCacheCap never is.
		panic("knowledge: query cache construction failed: " + err.Error())
	}
	return &QueryCache{cache: cache}
}

// Get returns the cached lessons for (queryWords, n) if present and not
// older than queryCacheTTL.
func (c *QueryCache) Get(queryWords []string, n int) ([]domain.Lesson, bool) {
	key := queryCacheKey(queryWords, n)

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := raw.(queryCacheEntry)
	if time.Since(entry.cachedAt) > queryCacheTTL {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.lessons, true
}

// Put stores lessons for (queryWords, n), evicting the least recently
// used entry if the cache is already at queryCacheCap.
func (c *QueryCache) Put(queryWords []string, n int, lessons []domain.Lesson) {
	key := queryCacheKey(queryWords, n)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, queryCacheEntry{lessons: lessons, cachedAt: time.Now()})
}

// Len reports the current cache size, for the status surface.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// queryCacheKey hashes the lower-cased, sorted query words plus n so
// word-order differences in the caller's slice still hit the same entry.
func queryCacheKey(queryWords []string, n int) string {
	words := make([]string, len(queryWords))
	copy(words, queryWords)
	for i, w := range words {
		words[i] = strings.ToLower(strings.TrimSpace(w))
	}
	sort.Strings(words)

	h := sha256.New()
	h.Write([]byte(strings.Join(words, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(n)))
	return hex.EncodeToString(h.Sum(nil))
}
