package prometheusmetrics

import (
	"time"

	"github.com/prebid/stored-responses/config"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the Prometheus metrics backing the MetricsEngine implementation.
type Metrics struct {
	Registry *prometheus.Registry

	// General Metrics
	requests                  *prometheus.CounterVec
	requestsTimer             prometheus.Histogram
	storedResponses           *prometheus.CounterVec
	storedResponseCacheResult *prometheus.CounterVec
	storedResponseFetchTimer  prometheus.Histogram
	storedResponseErrors      *prometheus.CounterVec

	// Adapter Metrics
	adapterBids *prometheus.CounterVec
}

const (
	adapterLabel         = "adapter"
	bidSourceLabel       = "bid_source"
	bidTypeLabel         = "bid_type"
	cacheResultLabel     = "cache_result"
	markupDeliveryLabel  = "delivery"
	requestStatusLabel   = "request_status"
	storedDataErrorLabel = "stored_data_error"
	storedResponseLabel  = "stored_response_type"
)

const (
	markupDeliveryAdm  = "adm"
	markupDeliveryNurl = "nurl"
)

// NewMetrics initializes a new Prometheus metrics instance with preloaded label values.
func NewMetrics(cfg config.PrometheusMetrics) *Metrics {
	standardTimeBuckets := []float64{0.05, 0.1, 0.15, 0.20, 0.25, 0.3, 0.4, 0.5, 0.75, 1}
	fetchTimeBuckets := []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 1}

	metrics := Metrics{}
	metrics.Registry = prometheus.NewRegistry()

	metrics.requests = newCounter(cfg, metrics.Registry,
		"requests",
		"Count of total auction requests labeled by status.",
		[]string{requestStatusLabel})

	metrics.requestsTimer = newHistogram(cfg, metrics.Registry,
		"request_time_seconds",
		"Seconds to resolve successful auction requests.",
		standardTimeBuckets)

	metrics.storedResponses = newCounter(cfg, metrics.Registry,
		"stored_responses",
		"Count of stored response directives found on impressions labeled by type.",
		[]string{storedResponseLabel})

	metrics.storedResponseCacheResult = newCounter(cfg, metrics.Registry,
		"stored_response_cache_performance",
		"Count of stored response cache lookups by hits or miss.",
		[]string{cacheResultLabel})

	metrics.storedResponseFetchTimer = newHistogram(cfg, metrics.Registry,
		"stored_response_fetch_time_seconds",
		"Seconds to fetch stored responses.",
		fetchTimeBuckets)

	metrics.storedResponseErrors = newCounter(cfg, metrics.Registry,
		"stored_response_errors",
		"Count of stored response fetch errors by error type.",
		[]string{storedDataErrorLabel})

	metrics.adapterBids = newCounter(cfg, metrics.Registry,
		"adapter_bids",
		"Count of bids in the final bidder responses labeled by adapter, source, bid type and markup delivery.",
		[]string{adapterLabel, bidSourceLabel, bidTypeLabel, markupDeliveryLabel})

	preloadLabelValues(&metrics)

	return &metrics
}

func newCounter(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	counter := prometheus.NewCounterVec(opts, labels)
	registry.MustRegister(counter)
	return counter
}

func newHistogram(cfg config.PrometheusMetrics, registry *prometheus.Registry, name, help string, buckets []float64) prometheus.Histogram {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	histogram := prometheus.NewHistogram(opts)
	registry.MustRegister(histogram)
	return histogram
}

func (m *Metrics) RecordRequest(labels metrics.Labels) {
	m.requests.With(prometheus.Labels{
		requestStatusLabel: string(labels.RequestStatus),
	}).Inc()
}

func (m *Metrics) RecordRequestTime(labels metrics.Labels, length time.Duration) {
	if labels.RequestStatus == metrics.RequestStatusOK {
		m.requestsTimer.Observe(length.Seconds())
	}
}

func (m *Metrics) RecordStoredResponse(responseType metrics.StoredResponseType) {
	m.storedResponses.With(prometheus.Labels{
		storedResponseLabel: string(responseType),
	}).Inc()
}

func (m *Metrics) RecordStoredResponseCacheResult(cacheResult metrics.CacheResult, inc int) {
	m.storedResponseCacheResult.With(prometheus.Labels{
		cacheResultLabel: string(cacheResult),
	}).Add(float64(inc))
}

func (m *Metrics) RecordStoredDataFetchTime(labels metrics.StoredDataLabels, length time.Duration) {
	if labels.DataType == metrics.ResponseDataType {
		m.storedResponseFetchTimer.Observe(length.Seconds())
	}
}

func (m *Metrics) RecordStoredDataError(labels metrics.StoredDataLabels) {
	if labels.DataType == metrics.ResponseDataType {
		m.storedResponseErrors.With(prometheus.Labels{
			storedDataErrorLabel: string(labels.Error),
		}).Inc()
	}
}

func (m *Metrics) RecordAdapterBidReceived(labels metrics.AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	markupDelivery := markupDeliveryNurl
	if hasAdm {
		markupDelivery = markupDeliveryAdm
	}

	m.adapterBids.With(prometheus.Labels{
		adapterLabel:        string(labels.Adapter),
		bidSourceLabel:      string(labels.Source),
		bidTypeLabel:        string(bidType),
		markupDeliveryLabel: markupDelivery,
	}).Inc()
}
