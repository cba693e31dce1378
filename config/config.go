package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AdminPort int    `mapstructure:"admin_port"`
	// DefaultTimeout bounds the stored response fetch when the request carries no tmax.
	DefaultTimeout  uint64          `mapstructure:"default_timeout_ms"`
	MaxRequestSize  int64           `mapstructure:"max_request_size"`
	StoredResponses StoredResponses `mapstructure:"stored_responses"`
	Metrics         Metrics         `mapstructure:"metrics"`
	Auction         Auction         `mapstructure:"auction"`
	Client          HTTPClient      `mapstructure:"http_client"`
	// RequestTimeoutHeaders name the headers a fronting queue uses to report how long an auction waited.
	RequestTimeoutHeaders RequestTimeoutHeaders `mapstructure:"request_timeout_headers"`
	// Adapters holds the live bidders, keyed by bidder name.
	Adapters map[string]Adapter `mapstructure:"adapters"`
}

// Auction holds the defaults applied to every auction.
type Auction struct {
	// DefaultCurrency is reported on responses that carry no currency of their own.
	DefaultCurrency string `mapstructure:"default_currency"`
	// PriceGranularity names the preset used for hb_pb targeting when the request asks for targeting
	// without naming one.
	PriceGranularity string `mapstructure:"price_granularity"`
}

func (cfg *Auction) validate(errs []error) []error {
	if len(cfg.DefaultCurrency) != 3 || strings.ToUpper(cfg.DefaultCurrency) != cfg.DefaultCurrency {
		errs = append(errs, fmt.Errorf("auction.default_currency must be a 3 letter upper case ISO-4217 code. Got %q", cfg.DefaultCurrency))
	}
	if _, err := openrtb_ext.PriceGranularityFromString(cfg.PriceGranularity); err != nil {
		errs = append(errs, fmt.Errorf("auction.price_granularity: %v", err))
	}
	return errs
}

// HTTPClient tunes the client shared by the bidder fan-out and the remote payload backends.
type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
	DialTimeout         int `mapstructure:"dial_timeout_ms"`
}

type RequestTimeoutHeaders struct {
	RequestTimeInQueue    string `mapstructure:"request_time_in_queue"`
	RequestTimeoutInQueue string `mapstructure:"request_timeout_in_queue"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

func (cfg *Metrics) validate(errs []error) []error {
	errs = cfg.Influxdb.validate(errs)
	return cfg.Prometheus.validate(errs)
}

type InfluxMetrics struct {
	Host        string `mapstructure:"host"`
	Database    string `mapstructure:"database"`
	Measurement string `mapstructure:"measurement"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	// AlignTimestamps rounds reported timestamps to the send interval.
	AlignTimestamps bool `mapstructure:"align_timestamps"`
	// MetricSendInterval is the number of seconds between two reports.
	MetricSendInterval int `mapstructure:"metric_send_interval"`
}

func (cfg *InfluxMetrics) validate(errs []error) []error {
	if cfg.Host == "" {
		return errs
	}
	if cfg.Database == "" {
		errs = append(errs, errors.New("metrics.influxdb.database must be set when metrics.influxdb.host is set"))
	}
	if cfg.MetricSendInterval < 1 {
		errs = append(errs, fmt.Errorf("metrics.influxdb.metric_send_interval must be at least 1 second. Got %d", cfg.MetricSendInterval))
	}
	return errs
}

type PrometheusMetrics struct {
	Enabled          bool   `mapstructure:"enabled"`
	Namespace        string `mapstructure:"namespace"`
	Subsystem        string `mapstructure:"subsystem"`
	TimeoutMillisRaw int    `mapstructure:"timeout_ms"`
}

func (cfg *PrometheusMetrics) validate(errs []error) []error {
	if cfg.Enabled && cfg.TimeoutMillisRaw <= 0 {
		errs = append(errs, fmt.Errorf("metrics.prometheus.timeout_ms must be positive. Got %d", cfg.TimeoutMillisRaw))
	}
	return errs
}

// Timeout is the limit for serving a single scrape of the metrics endpoint.
func (cfg *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMillisRaw) * time.Millisecond
}

// DefaultTimeoutDuration returns default_timeout_ms as a time.Duration.
func (cfg *Configuration) DefaultTimeoutDuration() time.Duration {
	return time.Duration(cfg.DefaultTimeout) * time.Millisecond
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.Port == cfg.AdminPort {
		errs = append(errs, fmt.Errorf("port and admin_port must differ. Both are %d", cfg.Port))
	}
	if cfg.MaxRequestSize < 0 {
		errs = append(errs, fmt.Errorf("max_request_size must be non-negative. Got %d", cfg.MaxRequestSize))
	}
	if cfg.DefaultTimeout == 0 {
		errs = append(errs, errors.New("default_timeout_ms must be positive"))
	}
	errs = cfg.StoredResponses.validate(errs)
	errs = cfg.Metrics.validate(errs)
	errs = cfg.Auction.validate(errs)
	errs = validateAdapters(cfg.Adapters, errs)
	return errs
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	glog.Info("Logging the resolved configuration:")
	logGeneral(v)

	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}
	return &c, nil
}

func logGeneral(v *viper.Viper) {
	for _, key := range []string{"host", "port", "admin_port", "default_timeout_ms", "max_request_size"} {
		glog.Infof("config.%s: %v", key, v.Get(key))
	}
}

// SetupViper registers the defaults and reads the optional config file. Env variables are prefixed with PBS_
// and use _ in place of the . separator, e.g. PBS_STORED_RESPONSES_HTTP_ENDPOINT.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("default_timeout_ms", 250)
	v.SetDefault("max_request_size", 1024*256)

	v.SetDefault("stored_responses.filesystem.enabled", false)
	v.SetDefault("stored_responses.filesystem.directorypath", "./stored_responses/data/by_id")
	v.SetDefault("stored_responses.database.connection.driver", "")
	v.SetDefault("stored_responses.database.connection.dbname", "")
	v.SetDefault("stored_responses.database.connection.host", "")
	v.SetDefault("stored_responses.database.connection.port", 0)
	v.SetDefault("stored_responses.database.connection.user", "")
	v.SetDefault("stored_responses.database.connection.password", "")
	v.SetDefault("stored_responses.database.connection.query_string", "")
	v.SetDefault("stored_responses.database.fetcher.query", "")
	v.SetDefault("stored_responses.http.endpoint", "")
	v.SetDefault("stored_responses.redis.url", "")
	v.SetDefault("stored_responses.redis.key_prefix", "stored_response:")
	v.SetDefault("stored_responses.in_memory_cache.type", "none")
	v.SetDefault("stored_responses.in_memory_cache.ttl_seconds", 0)
	v.SetDefault("stored_responses.in_memory_cache.size_bytes", 0)
	v.SetDefault("stored_responses.cache_events.enabled", false)
	v.SetDefault("stored_responses.cache_events.endpoint", "/storedresponses")
	v.SetDefault("stored_responses.http_events.endpoint", "")
	v.SetDefault("stored_responses.http_events.refresh_rate_seconds", 0)
	v.SetDefault("stored_responses.http_events.timeout_ms", 0)

	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.measurement", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.align_timestamps", false)
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.enabled", false)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)

	v.SetDefault("http_client.max_connections_per_host", 0)
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("http_client.dial_timeout_ms", 0)

	v.SetDefault("request_timeout_headers.request_time_in_queue", "")
	v.SetDefault("request_timeout_headers.request_timeout_in_queue", "")

	v.SetDefault("auction.default_currency", "USD")
	v.SetDefault("auction.price_granularity", openrtb_ext.PriceGranularityMedium)

	v.SetEnvPrefix("PBS")
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			glog.Warningf("Failed to read %s, running with defaults and environment: %v", filename, err)
		}
	}
}
