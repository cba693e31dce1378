package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coocood/freecache"
	"github.com/golang/glog"
	"github.com/prebid/stored-responses/stored_requests"
)

// NewCache returns an in-memory Cache which evicts items if:
//
// 1. They haven't been used within the TTL.
// 2. The cache is too large. This will cause the least recently used items to be evicted.
//
// For no TTL, use ttlSeconds <= 0.
// For no size limit, use size == 0.
func NewCache(size int, ttl int, dataType string) stored_requests.CacheJSON {
	if ttl > 0 && size <= 0 {
		// a positive ttl indicates "LRU" cache type, while unlimited size indicates an "unbounded" cache type
		glog.Fatalf("unbounded in-memory %s cache with TTL not allowed. Config validation should have caught this. Failing fast because something is buggy.", dataType)
	}
	if size > 0 {
		glog.Infof("Using a Stored %s in-memory cache. Max size: %d bytes. TTL: %d seconds.", dataType, size, ttl)
		return &cache{
			dataType: dataType,
			cache: &pbsLRUCache{
				Cache:      freecache.NewCache(size),
				ttlSeconds: ttl,
			},
		}
	} else {
		glog.Infof("Using an unbounded Stored %s in-memory cache.", dataType)
		return &cache{
			dataType: dataType,
			cache:    &pbsSyncMap{&sync.Map{}},
		}
	}
}

type cache struct {
	dataType string
	cache    mapLike
}

func (c *cache) Get(ctx context.Context, ids []string) (data map[string]json.RawMessage) {
	data = make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if val, ok := c.cache.Get(id); ok {
			data[id] = val
		}
	}
	return
}

func (c *cache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for id, payload := range data {
		c.cache.Set(id, payload)
	}
}

func (c *cache) Invalidate(ctx context.Context, ids []string) {
	for _, id := range ids {
		c.cache.Delete(id)
	}
}

// mapLike is an interface which abstracts the bounded and unbounded caches.
type mapLike interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

type pbsSyncMap struct {
	*sync.Map
}

func (m *pbsSyncMap) Get(key string) ([]byte, bool) {
	val, ok := m.Map.Load(key)
	if ok {
		return val.([]byte), ok
	} else {
		return nil, ok
	}
}

func (m *pbsSyncMap) Set(key string, value []byte) {
	m.Map.Store(key, value)
}

func (m *pbsSyncMap) Delete(key string) {
	m.Map.Delete(key)
}

type pbsLRUCache struct {
	*freecache.Cache
	ttlSeconds int
}

func (m *pbsLRUCache) Get(key string) ([]byte, bool) {
	val, err := m.Cache.Get([]byte(key))
	if err == nil {
		return val, true
	}
	if err != freecache.ErrNotFound {
		glog.Errorf("unexpected error from freecache: %v", err)
	}
	return val, false
}

func (m *pbsLRUCache) Set(key string, value []byte) {
	if err := m.Cache.Set([]byte(key), value, m.ttlSeconds); err != nil {
		glog.Errorf("error saving value in freecache: %v", err)
	}
}

func (m *pbsLRUCache) Delete(key string) {
	m.Cache.Del([]byte(key))
}
