package memory

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"testing"

	"github.com/prebid/stored-responses/stored_requests"
	"github.com/prebid/stored-responses/stored_requests/caches/cachestest"
	"github.com/stretchr/testify/assert"
)

func TestLRURobustness(t *testing.T) {
	cachestest.AssertCacheRobustness(t, func() stored_requests.CacheJSON {
		return NewCache(256*1024, -1, "Response")
	})
}

func TestUnboundedRobustness(t *testing.T) {
	cachestest.AssertCacheRobustness(t, func() stored_requests.CacheJSON {
		return NewCache(0, -1, "Response")
	})
}

func TestRaceLRUConcurrency(t *testing.T) {
	cache := NewCache(256*1024, -1, "Response")

	doRaceTest(t, cache)
}

func TestRaceUnboundedConcurrency(t *testing.T) {
	cache := NewCache(0, -1, "Response")

	doRaceTest(t, cache)
}

func TestGetOnlyReturnsRequestedKeys(t *testing.T) {
	cache := NewCache(256*1024, -1, "Response")
	cache.Save(context.Background(), map[string]json.RawMessage{
		"a": json.RawMessage(`[]`),
		"b": json.RawMessage(`[{"seat":"appnexus"}]`),
	})

	data := cache.Get(context.Background(), []string{"b", "c"})
	assert.Equal(t, map[string]json.RawMessage{"b": json.RawMessage(`[{"seat":"appnexus"}]`)}, data)
}

func doRaceTest(t *testing.T, cache stored_requests.CacheJSON) {
	done := make(chan struct{})
	reads := rand.Perm(100)
	writes := rand.Perm(100)
	invalidates := rand.Perm(100)

	go writeLots(cache, done, writes)
	go readLots(cache, done, reads)
	go invalidateLots(cache, done, invalidates)

	for i := 0; i < 3; i++ {
		<-done
	}
}

func readLots(cache stored_requests.CacheJSON, done chan<- struct{}, reads []int) {
	var s struct{}
	for _, i := range reads {
		cache.Get(context.Background(), sliceForVal(i))
	}
	done <- s
}

func writeLots(cache stored_requests.CacheJSON, done chan<- struct{}, writes []int) {
	var s struct{}
	for _, i := range writes {
		cache.Save(context.Background(), mapForVal(i))
	}
	done <- s
}

func invalidateLots(cache stored_requests.CacheJSON, done chan<- struct{}, invalidates []int) {
	var s struct{}
	for _, i := range invalidates {
		cache.Invalidate(context.Background(), sliceForVal(i))
	}
	done <- s
}

func sliceForVal(val int) []string {
	return []string{strconv.Itoa(val)}
}

func mapForVal(val int) map[string]json.RawMessage {
	return map[string]json.RawMessage{
		strconv.Itoa(val): json.RawMessage(strconv.Itoa(val)),
	}
}
