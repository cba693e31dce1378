package config

import (
	"testing"
	"time"

	mainConfig "github.com/prebid/stored-responses/config"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
)

// Start a simple test to insure we get valid MetricsEngines for various configurations
func TestNilMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	testEngine := NewMetricsEngine(&cfg, openrtb_ext.CoreBidderNames())
	_, ok := testEngine.MetricsEngine.(*NilMetricsEngine)
	if !ok {
		t.Error("Expected a NilMetricsEngine, but didn't get it")
	}
}

func TestGoMetricsEngine(t *testing.T) {
	cfg := mainConfig.Configuration{}
	cfg.Metrics.Influxdb.Host = "localhost"
	cfg.Metrics.Influxdb.MetricSendInterval = 3600
	testEngine := NewMetricsEngine(&cfg, openrtb_ext.CoreBidderNames())
	_, ok := testEngine.MetricsEngine.(*metrics.Metrics)
	if !ok {
		t.Error("Expected a go-metrics Metrics as MetricsEngine, but didn't get it")
	}
}

func TestBothEngines(t *testing.T) {
	cfg := mainConfig.Configuration{}
	cfg.Metrics.Influxdb.Host = "localhost"
	cfg.Metrics.Influxdb.MetricSendInterval = 3600
	cfg.Metrics.Prometheus.Enabled = true
	testEngine := NewMetricsEngine(&cfg, openrtb_ext.CoreBidderNames())

	_, ok := testEngine.MetricsEngine.(*MultiMetricsEngine)
	assert.True(t, ok, "Expected a MultiMetricsEngine")
	assert.NotNil(t, testEngine.GoMetrics)
	assert.NotNil(t, testEngine.PrometheusMetrics)
}

// Test the multiengine
func TestMultiMetricsEngine(t *testing.T) {
	adapterList := openrtb_ext.CoreBidderNames()
	goEngine := metrics.NewMetrics(gometrics.NewPrefixedRegistry("prebidserver."), adapterList)
	engineList := make(MultiMetricsEngine, 2)
	engineList[0] = goEngine
	engineList[1] = &NilMetricsEngine{}
	var metricsEngine metrics.MetricsEngine
	metricsEngine = &engineList
	labels := metrics.Labels{
		RequestStatus: metrics.RequestStatusOK,
	}
	apnLabels := metrics.AdapterLabels{
		Adapter: openrtb_ext.BidderAppnexus,
		Source:  metrics.BidSourceStored,
	}

	for i := 0; i < 5; i++ {
		metricsEngine.RecordRequest(labels)
		metricsEngine.RecordRequestTime(labels, time.Millisecond*20)
		metricsEngine.RecordAdapterBidReceived(apnLabels, openrtb_ext.BidTypeBanner, true)
	}
	metricsEngine.RecordStoredResponse(metrics.StoredResponseAuction)
	metricsEngine.RecordStoredResponse(metrics.StoredResponseBid)
	metricsEngine.RecordStoredResponseCacheResult(metrics.CacheMiss, 2)
	metricsEngine.RecordStoredDataFetchTime(metrics.StoredDataLabels{DataType: metrics.ResponseDataType}, time.Millisecond)
	metricsEngine.RecordStoredDataError(metrics.StoredDataLabels{DataType: metrics.ResponseDataType, Error: metrics.StoredDataErrorNetwork})

	VerifyMetrics(t, "Request", goEngine.RequestStatuses[metrics.RequestStatusOK].Count(), 5)
	VerifyMetrics(t, "RequestTime", goEngine.RequestTimer.Count(), 5)
	VerifyMetrics(t, "AdapterBidsReceived", goEngine.AdapterMetrics[openrtb_ext.BidderAppnexus].BidsReceivedMeter[metrics.BidSourceStored].Count(), 5)
	VerifyMetrics(t, "AdapterAdmBids", goEngine.AdapterMetrics[openrtb_ext.BidderAppnexus].MarkupMetrics[openrtb_ext.BidTypeBanner].AdmMeter.Count(), 5)
	VerifyMetrics(t, "StoredAuctionResponse", goEngine.StoredResponsesMeter[metrics.StoredResponseAuction].Count(), 1)
	VerifyMetrics(t, "StoredBidResponse", goEngine.StoredResponsesMeter[metrics.StoredResponseBid].Count(), 1)
	VerifyMetrics(t, "StoredResponseCacheMiss", goEngine.StoredResponseCacheMeter[metrics.CacheMiss].Count(), 2)
	VerifyMetrics(t, "StoredResponseFetchTime", goEngine.StoredDataFetchTimer[metrics.ResponseDataType].Count(), 1)
	VerifyMetrics(t, "StoredResponseNetworkError", goEngine.StoredDataErrorMeter[metrics.ResponseDataType][metrics.StoredDataErrorNetwork].Count(), 1)
}

func VerifyMetrics(t *testing.T, name string, actual int64, expected int64) {
	t.Helper()
	if expected != actual {
		t.Errorf("Error in metric %s: got %d, expected %d.", name, actual, expected)
	}
}
