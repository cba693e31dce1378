package stored_requests

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prebid/stored-responses/metrics"
)

// Fetcher knows how to fetch stored response payloads by id.
//
// Implementations must be safe for concurrent access by multiple goroutines.
// Callers are expected to share a single instance as much as possible.
type Fetcher interface {
	// FetchResponses fetches the stored responses for the given IDs.
	//
	// The returned map has a key for every ID that was found. Every ID that does not exist is
	// reported as a NotFoundError. Any other error means the lookup itself failed.
	//
	// The returned objects can only be read from. They may not be written to.
	FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error)
}

// NotFoundError is an error type to flag that an ID was not found by the Fetcher.
// This was added to support Multifetcher and any other case where we might expect
// that all IDs would not be found, and want to disentangle those errors from the others.
type NotFoundError struct {
	ID       string
	DataType string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(`Stored %s with ID="%s" not found.`, e.DataType, e.ID)
}

// NewNotFoundErrors reports every id which has no entry in data.
func NewNotFoundErrors(ids []string, data map[string]json.RawMessage) []error {
	var errs []error
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			errs = append(errs, NotFoundError{ID: id, DataType: "Response"})
		}
	}
	return errs
}

// Cache is an intermediate layer which can be used to create more complex Fetchers by composition.
// Implementations must be safe for concurrent access by multiple goroutines.
// To add a Cache layer in front of a Fetcher, see WithCache()
type Cache struct {
	Responses CacheJSON
}

type CacheJSON interface {
	// Get works much like Fetcher.FetchResponses, with a few exceptions:
	//
	// 1. Any (actionable) errors should be logged by the implementation, rather than returned.
	// 2. The returned maps _may_ be written to.
	// 3. The returned maps must _not_ contain keys unless they were present in the argument ID list.
	// 4. Callers _should not_ assume that the returned maps contain key for every argument id.
	//    The returned map will miss entries for keys which don't exist in the cache.
	//
	// Nil slices are treated as "no ops".
	Get(ctx context.Context, ids []string) (data map[string]json.RawMessage)

	// Invalidate will ensure that all values associated with the given IDs
	// are no longer returned by the cache until new values are saved via Update
	Invalidate(ctx context.Context, ids []string)

	// Save will add or overwrite the data in the cache at the given keys
	Save(ctx context.Context, data map[string]json.RawMessage)
}

// ComposedCache creates an interface to treat a slice of caches as a single cache
type ComposedCache []CacheJSON

// Get will attempt to Get from the caches in the order in which they are in the slice,
// stopping as soon as a value is found (or when all caches have been exhausted)
func (c ComposedCache) Get(ctx context.Context, ids []string) (data map[string]json.RawMessage) {
	data = make(map[string]json.RawMessage, len(ids))

	remainingIDs := ids

	for _, cache := range c {
		cachedData := cache.Get(ctx, remainingIDs)
		data, remainingIDs = updateFromCache(data, remainingIDs, cachedData)

		// finish early if all ids filled
		if len(remainingIDs) == 0 {
			break
		}
	}

	return
}

func updateFromCache(data map[string]json.RawMessage, ids []string, newData map[string]json.RawMessage) (map[string]json.RawMessage, []string) {
	remainingIDs := ids

	if len(newData) > 0 {
		remainingIDs = make([]string, 0, len(ids))

		for _, id := range ids {
			if payload, ok := newData[id]; ok {
				data[id] = payload
			} else {
				remainingIDs = append(remainingIDs, id)
			}
		}
	}

	return data, remainingIDs
}

// Invalidate will propagate invalidations to all underlying caches
func (c ComposedCache) Invalidate(ctx context.Context, ids []string) {
	for _, cache := range c {
		cache.Invalidate(ctx, ids)
	}
}

// Save will propagate saves to all underlying caches
func (c ComposedCache) Save(ctx context.Context, data map[string]json.RawMessage) {
	for _, cache := range c {
		cache.Save(ctx, data)
	}
}

type fetcherWithCache struct {
	fetcher       Fetcher
	cache         Cache
	metricsEngine metrics.MetricsEngine
}

// WithCache returns a Fetcher which uses the given Caches before delegating to the original.
// This can be called multiple times to compose Cache layers onto the backing Fetcher, though
// it is usually more desirable to first compose caches with Compose, ensuring propagation of updates
// and invalidations through all cache layers.
func WithCache(fetcher Fetcher, cache Cache, metricsEngine metrics.MetricsEngine) Fetcher {
	return &fetcherWithCache{
		cache:         cache,
		fetcher:       fetcher,
		metricsEngine: metricsEngine,
	}
}

func (f *fetcherWithCache) FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error) {
	data = f.cache.Responses.Get(ctx, ids)

	leftoverResp := findLeftovers(ids, data)

	f.metricsEngine.RecordStoredResponseCacheResult(metrics.CacheHit, len(ids)-len(leftoverResp))
	f.metricsEngine.RecordStoredResponseCacheResult(metrics.CacheMiss, len(leftoverResp))

	if len(leftoverResp) > 0 {
		fetcherRespData, fetcherErrs := f.fetcher.FetchResponses(ctx, leftoverResp)
		errs = fetcherErrs

		f.cache.Responses.Save(ctx, fetcherRespData)

		data = mergeData(data, fetcherRespData)
	}

	return
}

func findLeftovers(ids []string, data map[string]json.RawMessage) (leftovers []string) {
	capacity := len(ids) - len(data)
	if capacity < 0 {
		capacity = 0
	}
	leftovers = make([]string, 0, capacity)
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			leftovers = append(leftovers, id)
		}
	}
	return
}

func mergeData(cachedData map[string]json.RawMessage, fetchedData map[string]json.RawMessage) (mergedData map[string]json.RawMessage) {
	mergedData = cachedData
	if mergedData == nil {
		mergedData = fetchedData
	} else {
		for key, value := range fetchedData {
			mergedData[key] = value
		}
	}

	return
}
