package metrics

import (
	"testing"
	"time"

	"github.com/prebid/stored-responses/openrtb_ext"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
)

func createMetricsForTesting() *Metrics {
	return NewMetrics(metrics.NewRegistry(), []openrtb_ext.BidderName{openrtb_ext.BidderAppnexus, openrtb_ext.BidderRubicon})
}

func TestNewMetrics(t *testing.T) {
	registry := metrics.NewRegistry()
	m := NewMetrics(registry, []openrtb_ext.BidderName{openrtb_ext.BidderAppnexus})

	ensureContains(t, registry, "request_time", m.RequestTimer)
	ensureContains(t, registry, "requests.ok", m.RequestStatuses[RequestStatusOK])
	ensureContains(t, registry, "requests.badinput", m.RequestStatuses[RequestStatusBadInput])
	ensureContains(t, registry, "requests.err", m.RequestStatuses[RequestStatusErr])
	ensureContains(t, registry, "stored_responses.auction", m.StoredResponsesMeter[StoredResponseAuction])
	ensureContains(t, registry, "stored_responses.bid", m.StoredResponsesMeter[StoredResponseBid])
	ensureContains(t, registry, "stored_response_cache_hit", m.StoredResponseCacheMeter[CacheHit])
	ensureContains(t, registry, "stored_response_cache_miss", m.StoredResponseCacheMeter[CacheMiss])
	ensureContains(t, registry, "stored_response_fetch_time", m.StoredDataFetchTimer[ResponseDataType])
	ensureContains(t, registry, "stored_response_error.network", m.StoredDataErrorMeter[ResponseDataType][StoredDataErrorNetwork])
	ensureContains(t, registry, "stored_response_error.timeout", m.StoredDataErrorMeter[ResponseDataType][StoredDataErrorTimeout])
	ensureContains(t, registry, "stored_response_error.undefined", m.StoredDataErrorMeter[ResponseDataType][StoredDataErrorUndefined])
	ensureContains(t, registry, "adapter.appnexus.bids_received.live", m.AdapterMetrics[openrtb_ext.BidderAppnexus].BidsReceivedMeter[BidSourceLive])
	ensureContains(t, registry, "adapter.appnexus.bids_received.stored", m.AdapterMetrics[openrtb_ext.BidderAppnexus].BidsReceivedMeter[BidSourceStored])
	ensureContains(t, registry, "adapter.appnexus.banner.adm_bids_received", m.AdapterMetrics[openrtb_ext.BidderAppnexus].MarkupMetrics[openrtb_ext.BidTypeBanner].AdmMeter)
	ensureContains(t, registry, "adapter.appnexus.video.nurl_bids_received", m.AdapterMetrics[openrtb_ext.BidderAppnexus].MarkupMetrics[openrtb_ext.BidTypeVideo].NurlMeter)
}

func TestRecordRequest(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRequest(Labels{RequestStatus: RequestStatusOK})
	m.RecordRequest(Labels{RequestStatus: RequestStatusOK})
	m.RecordRequest(Labels{RequestStatus: RequestStatusBadInput})

	assert.Equal(t, int64(2), m.RequestStatuses[RequestStatusOK].Count())
	assert.Equal(t, int64(1), m.RequestStatuses[RequestStatusBadInput].Count())
	assert.Equal(t, int64(0), m.RequestStatuses[RequestStatusErr].Count())
}

func TestRecordRequestTime(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordRequestTime(Labels{RequestStatus: RequestStatusOK}, 20*time.Millisecond)
	m.RecordRequestTime(Labels{RequestStatus: RequestStatusErr}, 50*time.Millisecond)

	assert.Equal(t, int64(1), m.RequestTimer.Count())
	assert.Equal(t, int64(20*time.Millisecond), m.RequestTimer.Sum())
}

func TestRecordStoredResponse(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordStoredResponse(StoredResponseAuction)
	m.RecordStoredResponse(StoredResponseBid)
	m.RecordStoredResponse(StoredResponseBid)

	assert.Equal(t, int64(1), m.StoredResponsesMeter[StoredResponseAuction].Count())
	assert.Equal(t, int64(2), m.StoredResponsesMeter[StoredResponseBid].Count())
}

func TestRecordStoredResponseCacheResult(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordStoredResponseCacheResult(CacheHit, 3)
	m.RecordStoredResponseCacheResult(CacheMiss, 1)
	m.RecordStoredResponseCacheResult(CacheHit, 0)

	assert.Equal(t, int64(3), m.StoredResponseCacheMeter[CacheHit].Count())
	assert.Equal(t, int64(1), m.StoredResponseCacheMeter[CacheMiss].Count())
}

func TestRecordStoredData(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordStoredDataFetchTime(StoredDataLabels{DataType: ResponseDataType}, 5*time.Millisecond)
	m.RecordStoredDataError(StoredDataLabels{DataType: ResponseDataType, Error: StoredDataErrorTimeout})
	m.RecordStoredDataError(StoredDataLabels{DataType: ResponseDataType, Error: StoredDataErrorUndefined})
	m.RecordStoredDataError(StoredDataLabels{DataType: "unknown", Error: StoredDataErrorUndefined})

	assert.Equal(t, int64(1), m.StoredDataFetchTimer[ResponseDataType].Count())
	assert.Equal(t, int64(1), m.StoredDataErrorMeter[ResponseDataType][StoredDataErrorTimeout].Count())
	assert.Equal(t, int64(1), m.StoredDataErrorMeter[ResponseDataType][StoredDataErrorUndefined].Count())
	assert.Equal(t, int64(0), m.StoredDataErrorMeter[ResponseDataType][StoredDataErrorNetwork].Count())
}

func TestRecordAdapterBidReceived(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordAdapterBidReceived(AdapterLabels{Adapter: openrtb_ext.BidderAppnexus, Source: BidSourceStored}, openrtb_ext.BidTypeBanner, true)
	m.RecordAdapterBidReceived(AdapterLabels{Adapter: openrtb_ext.BidderAppnexus, Source: BidSourceLive}, openrtb_ext.BidTypeVideo, false)

	am := m.AdapterMetrics[openrtb_ext.BidderAppnexus]
	assert.Equal(t, int64(1), am.BidsReceivedMeter[BidSourceStored].Count())
	assert.Equal(t, int64(1), am.BidsReceivedMeter[BidSourceLive].Count())
	assert.Equal(t, int64(1), am.MarkupMetrics[openrtb_ext.BidTypeBanner].AdmMeter.Count())
	assert.Equal(t, int64(0), am.MarkupMetrics[openrtb_ext.BidTypeBanner].NurlMeter.Count())
	assert.Equal(t, int64(1), am.MarkupMetrics[openrtb_ext.BidTypeVideo].NurlMeter.Count())
}

func TestRecordAdapterBidReceivedForAlias(t *testing.T) {
	m := createMetricsForTesting()

	m.RecordAdapterBidReceived(AdapterLabels{Adapter: "appnexusAlias", Source: BidSourceStored}, openrtb_ext.BidTypeNative, true)

	am, ok := m.AdapterMetrics["appnexusAlias"]
	if assert.True(t, ok, "alias metrics should be registered on first use") {
		assert.Equal(t, int64(1), am.BidsReceivedMeter[BidSourceStored].Count())
		assert.Equal(t, int64(1), am.MarkupMetrics[openrtb_ext.BidTypeNative].AdmMeter.Count())
	}
}

func ensureContains(t *testing.T, registry metrics.Registry, name string, metric interface{}) {
	t.Helper()
	if inRegistry := registry.Get(name); inRegistry == nil {
		t.Errorf("No metric in registry at %s.", name)
	} else if inRegistry != metric {
		t.Errorf("Bad value stored at metric %s.", name)
	}
}
