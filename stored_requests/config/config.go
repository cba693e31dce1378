package config

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/stored-responses/config"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/stored_requests"
	"github.com/prebid/stored-responses/stored_requests/backends/db_fetcher"
	"github.com/prebid/stored-responses/stored_requests/backends/db_provider"
	"github.com/prebid/stored-responses/stored_requests/backends/empty_fetcher"
	"github.com/prebid/stored-responses/stored_requests/backends/file_fetcher"
	"github.com/prebid/stored-responses/stored_requests/backends/http_fetcher"
	"github.com/prebid/stored-responses/stored_requests/backends/redis_fetcher"
	"github.com/prebid/stored-responses/stored_requests/caches/memory"
	"github.com/prebid/stored-responses/stored_requests/caches/nil_cache"
	"github.com/prebid/stored-responses/stored_requests/events"
	apiEvents "github.com/prebid/stored-responses/stored_requests/events/api"
	httpEvents "github.com/prebid/stored-responses/stored_requests/events/http"
)

// CreateStoredResponses returns two things:
//
// 1. A Fetcher which can be used to get Stored Responses
// 2. A function which should be called on shutdown for graceful cleanups.
//
// If any errors occur, the program will exit with an error message.
// It probably means you have a bad config or networking issue.
//
// As a side-effect, it will add the cache events endpoint to the router if the config calls for it.
func CreateStoredResponses(cfg *config.StoredResponses, metricsEngine metrics.MetricsEngine, client *http.Client, router *httprouter.Router) (fetcher stored_requests.Fetcher, shutdown func()) {
	var closers []func()

	fetchers := make([]stored_requests.Fetcher, 0, 4)
	if cfg.Files.Enabled {
		fetchers = append(fetchers, newFilesystem(cfg.Files.Path))
	}
	if cfg.Database.ConnectionInfo.Driver != "" {
		glog.Infof("Connecting to %s for Stored Responses. DB=%s, host=%s, port=%d, user=%s",
			cfg.Database.ConnectionInfo.Driver,
			cfg.Database.ConnectionInfo.Database,
			cfg.Database.ConnectionInfo.Host,
			cfg.Database.ConnectionInfo.Port,
			cfg.Database.ConnectionInfo.Username)
		provider := db_provider.NewDbProvider(cfg.Database.ConnectionInfo)
		closers = append(closers, func() {
			if err := provider.Close(); err != nil {
				glog.Errorf("Error closing DB connection: %v", err)
			}
		})
		glog.Infof("Loading Stored Response data via the database.\nQuery: %s", cfg.Database.FetcherQueries.QueryTemplate)
		fetchers = append(fetchers, db_fetcher.NewFetcher(provider, cfg.Database.FetcherQueries.QueryTemplate))
	}
	if cfg.HTTP.Endpoint != "" {
		glog.Infof("Loading Stored Response data via HTTP. endpoint=%s", cfg.HTTP.Endpoint)
		fetchers = append(fetchers, http_fetcher.NewFetcher(client, cfg.HTTP.Endpoint))
	}
	if cfg.Redis.URL != "" {
		redisClient, err := redis_fetcher.NewClient(cfg.Redis.URL)
		if err != nil {
			glog.Fatalf("Failed to create the Stored Response redis client: %v", err)
		}
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				glog.Errorf("Error closing redis client: %v", err)
			}
		})
		glog.Infof("Loading Stored Response data via redis. key prefix=%q", cfg.Redis.KeyPrefix)
		fetchers = append(fetchers, redis_fetcher.NewFetcher(redisClient, cfg.Redis.KeyPrefix))
	}
	fetcher = consolidate(fetchers)

	if cfg.InMemoryCache.Type != "" && cfg.InMemoryCache.Type != config.CacheTypeNone {
		cache := newCache(cfg.InMemoryCache)
		fetcher = stored_requests.WithCache(fetcher, cache, metricsEngine)
		producers := newEventProducers(cfg, client, router)
		closers = append(closers, addListeners(cache, producers))
	} else {
		glog.Warningf("No Stored Response cache configured. The Fetcher backend will be used for all data requests")
	}

	shutdown = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return
}

func addListeners(cache stored_requests.Cache, eventProducers []events.EventProducer) (shutdown func()) {
	listeners := make([]*events.EventListener, 0, len(eventProducers))

	for _, ep := range eventProducers {
		listener := events.SimpleEventListener()
		go listener.Listen(cache, ep)
		listeners = append(listeners, listener)
	}

	return func() {
		for _, ep := range eventProducers {
			if stopper, ok := ep.(interface{ Stop() }); ok {
				stopper.Stop()
			}
		}
		for _, l := range listeners {
			l.Stop()
		}
	}
}

func newCache(cfg config.InMemoryCache) stored_requests.Cache {
	cache := stored_requests.Cache{Responses: &nil_cache.NilCache{}}
	switch cfg.Type {
	case config.CacheTypeLRU:
		cache.Responses = memory.NewCache(cfg.Size, cfg.TTL, "Responses")
	case config.CacheTypeUnbounded:
		cache.Responses = memory.NewCache(0, -1, "Responses")
	}
	return cache
}

func newEventProducers(cfg *config.StoredResponses, client *http.Client, router *httprouter.Router) (eventProducers []events.EventProducer) {
	if cfg.CacheEvents.Enabled {
		eventProducers = append(eventProducers, newEventsAPI(router, cfg.CacheEvents.Endpoint))
	}
	if cfg.HTTPEvents.Endpoint != "" {
		eventProducers = append(eventProducers, httpEvents.NewHTTPEvents(client, cfg.HTTPEvents.Endpoint, cfg.HTTPEvents.TimeoutDuration(), cfg.HTTPEvents.RefreshRateDuration(), clock.New()))
	}
	return
}

func newEventsAPI(router *httprouter.Router, endpoint string) events.EventProducer {
	producer, handler := apiEvents.NewEventsAPI()
	router.POST(endpoint, handler)
	router.DELETE(endpoint, handler)
	return producer
}

func newFilesystem(configPath string) stored_requests.Fetcher {
	glog.Infof("Loading Stored Response data from filesystem at path %s", configPath)
	fetcher, err := file_fetcher.NewFileFetcher(configPath)
	if err != nil {
		glog.Fatalf("Failed to create a Stored Response FileFetcher: %v", err)
	}
	return fetcher
}

// consolidate returns a single Fetcher from an array of fetchers of any size.
func consolidate(fetchers []stored_requests.Fetcher) stored_requests.Fetcher {
	if len(fetchers) == 0 {
		glog.Warning("No Stored Response support configured. imp.ext.prebid.storedauctionresponse and storedbidresponse will never be found. If you need them, check your app config")
		return empty_fetcher.EmptyFetcher{}
	} else if len(fetchers) == 1 {
		return fetchers[0]
	} else {
		return stored_requests.MultiFetcher(fetchers)
	}
}
