package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prebid/stored-responses/openrtb_ext"
	metrics "github.com/rcrowley/go-metrics"
)

// Metrics is the go-metrics implementation of MetricsEngine.
type Metrics struct {
	MetricsRegistry metrics.Registry

	RequestStatuses map[RequestStatus]metrics.Meter
	RequestTimer    metrics.Timer

	StoredResponsesMeter     map[StoredResponseType]metrics.Meter
	StoredResponseCacheMeter map[CacheResult]metrics.Meter
	StoredDataFetchTimer     map[StoredDataType]metrics.Timer
	StoredDataErrorMeter     map[StoredDataType]map[StoredDataError]metrics.Meter

	// AdapterMetrics is keyed on the bidder name. Aliases unknown at startup are registered on first use.
	AdapterMetrics      map[openrtb_ext.BidderName]*AdapterMetrics
	adapterMetricsMutex sync.RWMutex
}

// AdapterMetrics houses the metrics for a particular adapter
type AdapterMetrics struct {
	BidsReceivedMeter map[BidSource]metrics.Meter
	MarkupMetrics     map[openrtb_ext.BidType]*MarkupDeliveryMetrics
}

type MarkupDeliveryMetrics struct {
	AdmMeter  metrics.Meter
	NurlMeter metrics.Meter
}

// NewMetrics creates a new Metrics object with all the metrics registered against the given registry.
func NewMetrics(registry metrics.Registry, adapterList []openrtb_ext.BidderName) *Metrics {
	newMetrics := &Metrics{
		MetricsRegistry:          registry,
		RequestStatuses:          make(map[RequestStatus]metrics.Meter),
		RequestTimer:             metrics.GetOrRegisterTimer("request_time", registry),
		StoredResponsesMeter:     make(map[StoredResponseType]metrics.Meter),
		StoredResponseCacheMeter: make(map[CacheResult]metrics.Meter),
		StoredDataFetchTimer:     make(map[StoredDataType]metrics.Timer),
		StoredDataErrorMeter:     make(map[StoredDataType]map[StoredDataError]metrics.Meter),
		AdapterMetrics:           make(map[openrtb_ext.BidderName]*AdapterMetrics, len(adapterList)),
	}

	for _, status := range RequestStatuses() {
		newMetrics.RequestStatuses[status] = metrics.GetOrRegisterMeter(fmt.Sprintf("requests.%s", status), registry)
	}
	for _, responseType := range StoredResponseTypes() {
		newMetrics.StoredResponsesMeter[responseType] = metrics.GetOrRegisterMeter(fmt.Sprintf("stored_responses.%s", responseType), registry)
	}
	for _, cacheResult := range CacheResults() {
		newMetrics.StoredResponseCacheMeter[cacheResult] = metrics.GetOrRegisterMeter(fmt.Sprintf("stored_response_cache_%s", cacheResult), registry)
	}
	for _, dataType := range StoredDataTypes() {
		newMetrics.StoredDataFetchTimer[dataType] = metrics.GetOrRegisterTimer(fmt.Sprintf("stored_%s_fetch_time", dataType), registry)
		errorMeters := make(map[StoredDataError]metrics.Meter)
		for _, e := range StoredDataErrors() {
			errorMeters[e] = metrics.GetOrRegisterMeter(fmt.Sprintf("stored_%s_error.%s", dataType, e), registry)
		}
		newMetrics.StoredDataErrorMeter[dataType] = errorMeters
	}
	for _, adapter := range adapterList {
		newMetrics.AdapterMetrics[adapter] = makeAdapterMetrics(registry, adapter)
	}

	return newMetrics
}

func makeAdapterMetrics(registry metrics.Registry, adapter openrtb_ext.BidderName) *AdapterMetrics {
	am := &AdapterMetrics{
		BidsReceivedMeter: make(map[BidSource]metrics.Meter),
		MarkupMetrics:     make(map[openrtb_ext.BidType]*MarkupDeliveryMetrics),
	}
	for _, source := range BidSources() {
		am.BidsReceivedMeter[source] = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.bids_received.%s", adapter, source), registry)
	}
	for _, bidType := range openrtb_ext.BidTypes() {
		am.MarkupMetrics[bidType] = &MarkupDeliveryMetrics{
			AdmMeter:  metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s.adm_bids_received", adapter, bidType), registry),
			NurlMeter: metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.%s.nurl_bids_received", adapter, bidType), registry),
		}
	}
	return am
}

func (me *Metrics) getAdapterMetrics(adapter openrtb_ext.BidderName) *AdapterMetrics {
	me.adapterMetricsMutex.RLock()
	am, ok := me.AdapterMetrics[adapter]
	me.adapterMetricsMutex.RUnlock()
	if ok {
		return am
	}

	me.adapterMetricsMutex.Lock()
	defer me.adapterMetricsMutex.Unlock()
	if am, ok = me.AdapterMetrics[adapter]; !ok {
		am = makeAdapterMetrics(me.MetricsRegistry, adapter)
		me.AdapterMetrics[adapter] = am
	}
	return am
}

// RecordRequest implements a part of the MetricsEngine interface
func (me *Metrics) RecordRequest(labels Labels) {
	if meter, ok := me.RequestStatuses[labels.RequestStatus]; ok {
		meter.Mark(1)
	}
}

// RecordRequestTime implements a part of the MetricsEngine interface. The calling code is responsible
// for determining the call duration.
func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	if labels.RequestStatus == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

func (me *Metrics) RecordStoredResponse(responseType StoredResponseType) {
	if meter, ok := me.StoredResponsesMeter[responseType]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordStoredResponseCacheResult(cacheResult CacheResult, inc int) {
	if meter, ok := me.StoredResponseCacheMeter[cacheResult]; ok {
		meter.Mark(int64(inc))
	}
}

func (me *Metrics) RecordStoredDataFetchTime(labels StoredDataLabels, length time.Duration) {
	if timer, ok := me.StoredDataFetchTimer[labels.DataType]; ok {
		timer.Update(length)
	}
}

func (me *Metrics) RecordStoredDataError(labels StoredDataLabels) {
	if meter, ok := me.StoredDataErrorMeter[labels.DataType][labels.Error]; ok {
		meter.Mark(1)
	}
}

func (me *Metrics) RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool) {
	am := me.getAdapterMetrics(labels.Adapter)
	if meter, ok := am.BidsReceivedMeter[labels.Source]; ok {
		meter.Mark(1)
	}

	if metricsForType, ok := am.MarkupMetrics[bidType]; ok {
		if hasAdm {
			metricsForType.AdmMeter.Mark(1)
		} else {
			metricsForType.NurlMeter.Mark(1)
		}
	}
}
