package redis_fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/stored_requests"
	redis "github.com/redis/go-redis/v9"
)

// Client is the subset of *redis.Client used by the fetcher.
type Client interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// NewClient builds a pooled redis client from a redis:// URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return redis.NewClient(opts), nil
}

// NewFetcher returns a Fetcher which reads each payload from the key <keyPrefix><id>.
func NewFetcher(client Client, keyPrefix string) stored_requests.Fetcher {
	if client == nil {
		glog.Fatalf("The Redis Stored Response Fetcher requires a client. Please report this as a bug.")
	}
	return &redisFetcher{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

type redisFetcher struct {
	client    Client
	keyPrefix string
}

func (fetcher *redisFetcher) FetchResponses(ctx context.Context, ids []string) (map[string]json.RawMessage, []error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fetcher.keyPrefix + id
	}

	values, err := fetcher.client.MGet(ctx, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, stored_requests.NewNotFoundErrors(ids, nil)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, []error{&errortypes.Timeout{Message: fmt.Sprintf("Stored response fetch via redis timed out: %v", err)}}
		}
		return nil, []error{fmt.Errorf("redis mget failed: %w", err)}
	}

	data := make(map[string]json.RawMessage, len(ids))
	for i, value := range values {
		if i >= len(ids) {
			break
		}
		switch v := value.(type) {
		case string:
			data[ids[i]] = json.RawMessage(v)
		case []byte:
			data[ids[i]] = json.RawMessage(v)
		case nil:
		default:
			glog.Errorf("Redis returned an unexpected %T for stored response %s. This will be ignored.", value, ids[i])
		}
	}

	return data, stored_requests.NewNotFoundErrors(ids, data)
}
