package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StoredResponses configures the backends used to load stored auction and bid responses.
// Every enabled backend is consulted, in the order filesystem, database, http, redis.
type StoredResponses struct {
	Files         FileFetcherConfig  `mapstructure:"filesystem"`
	Database      DatabaseConfig     `mapstructure:"database"`
	HTTP          HTTPFetcherConfig  `mapstructure:"http"`
	Redis         RedisFetcherConfig `mapstructure:"redis"`
	InMemoryCache InMemoryCache      `mapstructure:"in_memory_cache"`
	CacheEvents   CacheEventsConfig  `mapstructure:"cache_events"`
	HTTPEvents    HTTPEventsConfig   `mapstructure:"http_events"`
}

// FileFetcherConfig loads every <id>.json file of a directory at startup.
type FileFetcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"directorypath"`
}

type DatabaseConfig struct {
	ConnectionInfo DatabaseConnection     `mapstructure:"connection"`
	FetcherQueries DatabaseFetcherQueries `mapstructure:"fetcher"`
}

// DatabaseConnection is enabled when Driver is set. Only "postgres" is supported.
type DatabaseConnection struct {
	Driver      string `mapstructure:"driver"`
	Database    string `mapstructure:"dbname"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	QueryString string `mapstructure:"query_string"`
}

type DatabaseFetcherQueries struct {
	// QueryTemplate is the query used to fetch stored responses. It must select (id, data) pairs
	// and contain the $ID_LIST placeholder, e.g.
	//
	//   SELECT id, responseData FROM stored_responses WHERE id IN $ID_LIST
	//
	// $ID_LIST is expanded to ($1, $2, ...) with one parameter per requested ID.
	QueryTemplate string `mapstructure:"query"`
}

// HTTPFetcherConfig points at a remote payload store answering
// GET {endpoint}?response-ids=["id1","id2"].
type HTTPFetcherConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// RedisFetcherConfig reads payloads stored under <key_prefix><id>.
type RedisFetcherConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

const (
	CacheTypeNone      = "none"
	CacheTypeLRU       = "lru"
	CacheTypeUnbounded = "unbounded"
)

type InMemoryCache struct {
	// Type is one of "none", "lru" or "unbounded".
	Type string `mapstructure:"type"`
	// TTL is the maximum number of seconds that an unused value will stay in the cache.
	// TTL <= 0 can be used for "no ttl". Elements will still be evicted based on the Size.
	TTL int `mapstructure:"ttl_seconds"`
	// Size is the max number of bytes allowed in the lru cache.
	Size int `mapstructure:"size_bytes"`
}

// CacheEventsConfig exposes an admin endpoint which updates or invalidates cached payloads.
type CacheEventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPEventsConfig polls a remote endpoint for saved and deleted payloads and applies
// them to the in memory cache. Polling is enabled when Endpoint is set.
type HTTPEventsConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	RefreshRate int64  `mapstructure:"refresh_rate_seconds"`
	Timeout     int    `mapstructure:"timeout_ms"`
}

func (cfg HTTPEventsConfig) RefreshRateDuration() time.Duration {
	return time.Duration(cfg.RefreshRate) * time.Second
}

func (cfg HTTPEventsConfig) TimeoutDuration() time.Duration {
	return time.Duration(cfg.Timeout) * time.Millisecond
}

func (cfg *StoredResponses) validate(errs []error) []error {
	if cfg.Files.Enabled && cfg.Files.Path == "" {
		errs = append(errs, errors.New("stored_responses.filesystem.directorypath must be set when the filesystem fetcher is enabled"))
	}
	errs = cfg.Database.validate(errs)
	if cfg.HTTP.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.HTTP.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("stored_responses.http.endpoint is not a valid URL: %v", err))
		}
	}
	errs = cfg.InMemoryCache.validate(errs)
	if cfg.CacheEvents.Enabled {
		if cfg.InMemoryCache.Type == CacheTypeNone {
			errs = append(errs, errors.New("stored_responses.cache_events requires an in memory cache"))
		}
		if !strings.HasPrefix(cfg.CacheEvents.Endpoint, "/") {
			errs = append(errs, fmt.Errorf("stored_responses.cache_events.endpoint must start with /. Got %q", cfg.CacheEvents.Endpoint))
		}
	}
	if cfg.HTTPEvents.Endpoint != "" {
		if cfg.InMemoryCache.Type == CacheTypeNone {
			errs = append(errs, errors.New("stored_responses.http_events requires an in memory cache"))
		}
		if cfg.HTTPEvents.RefreshRate <= 0 {
			errs = append(errs, fmt.Errorf("stored_responses.http_events.refresh_rate_seconds must be positive. Got %d", cfg.HTTPEvents.RefreshRate))
		}
		if cfg.HTTPEvents.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("stored_responses.http_events.timeout_ms must be positive. Got %d", cfg.HTTPEvents.Timeout))
		}
	}
	return errs
}

func (cfg *DatabaseConfig) validate(errs []error) []error {
	if cfg.ConnectionInfo.Driver == "" {
		return errs
	}
	if cfg.ConnectionInfo.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("stored_responses.database.connection.driver must be postgres. Got %s", cfg.ConnectionInfo.Driver))
	}
	if !strings.Contains(cfg.FetcherQueries.QueryTemplate, "$ID_LIST") {
		errs = append(errs, errors.New("stored_responses.database.fetcher.query must contain $ID_LIST"))
	}
	return errs
}

func (cfg *InMemoryCache) validate(errs []error) []error {
	switch cfg.Type {
	case CacheTypeNone, CacheTypeUnbounded:
		if cfg.Size != 0 {
			errs = append(errs, fmt.Errorf("stored_responses.in_memory_cache.size_bytes must be 0 for cache type %s. Got %d", cfg.Type, cfg.Size))
		}
	case CacheTypeLRU:
		if cfg.Size <= 0 {
			errs = append(errs, fmt.Errorf("stored_responses.in_memory_cache.size_bytes must be positive for the lru cache. Got %d", cfg.Size))
		}
	default:
		errs = append(errs, fmt.Errorf("stored_responses.in_memory_cache.type must be one of none, lru, unbounded. Got %s", cfg.Type))
	}
	return errs
}
