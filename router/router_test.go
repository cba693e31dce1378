package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prebid/stored-responses/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNoCache(t *testing.T) {
	nc := NoCache{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	}
	rw := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "http://localhost/nocache", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("ETag", "abcdef")
	nc.ServeHTTP(rw, req)
	h := rw.Header()
	if expected := "no-cache, no-store, must-revalidate"; expected != h.Get("Cache-Control") {
		t.Errorf("invalid cache-control header: expected: %s got: %s", expected, h.Get("Cache-Control"))
	}
	if expected := "no-cache"; expected != h.Get("Pragma") {
		t.Errorf("invalid pragma header: expected: %s got: %s", expected, h.Get("Pragma"))
	}
	if expected := "0"; expected != h.Get("Expires") {
		t.Errorf("invalid expires header: expected: %s got: %s", expected, h.Get("Expires"))
	}
	if expected := ""; expected != h.Get("ETag") {
		t.Errorf("invalid etag header: expected: %s got: %s", expected, h.Get("ETag"))
	}
}

func TestGetTransport(t *testing.T) {
	transport := getTransport(config.HTTPClient{
		MaxConnsPerHost:     20,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30,
		DialTimeout:         100,
	})

	assert.Equal(t, 20, transport.MaxConnsPerHost)
	assert.Equal(t, 100, transport.MaxIdleConns)
	assert.Equal(t, 5, transport.MaxIdleConnsPerHost)
	assert.Equal(t, "30s", transport.IdleConnTimeout.String())
	assert.NotNil(t, transport.DialContext)

	assert.Nil(t, getTransport(config.HTTPClient{}).DialContext)
}

func newTestConfig(t *testing.T) *config.Configuration {
	t.Helper()
	v := viper.New()
	config.SetupViper(v, "")
	v.Set("stored_responses.filesystem.enabled", true)
	v.Set("stored_responses.filesystem.directorypath", "../stored_requests/backends/file_fetcher/test")
	v.Set("metrics.prometheus.enabled", true)
	cfg, err := config.New(v)
	require.NoError(t, err)
	return cfg
}

func TestNewServesStoredAuctionResponses(t *testing.T) {
	r, err := New(newTestConfig(t), "abc123")
	require.NoError(t, err)
	defer r.Shutdown()

	body := `{"id":"req-1","tmax":500,"imp":[{"id":"imp-id1","banner":{"format":[{"w":300,"h":250}]},"ext":{"prebid":{"storedauctionresponse":{"id":"1"}}}}]}`
	recorder := httptest.NewRecorder()
	r.ServeHTTP(recorder, httptest.NewRequest("POST", "/openrtb2/auction", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	response := gjson.ParseBytes(recorder.Body.Bytes())
	assert.Equal(t, "req-1", response.Get("id").String())
	assert.Equal(t, "appnexus", response.Get("seatbid.0.seat").String())
	assert.Equal(t, "bid_id1", response.Get("seatbid.0.bid.0.id").String())
	assert.Equal(t, "banner", response.Get("seatbid.0.bid.0.ext.prebid.type").String())
}

func TestNewAdminRoutes(t *testing.T) {
	r, err := New(newTestConfig(t), "abc123")
	require.NoError(t, err)
	defer r.Shutdown()

	recorder := httptest.NewRecorder()
	r.Admin.ServeHTTP(recorder, httptest.NewRequest("GET", "/version", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "abc123", gjson.GetBytes(recorder.Body.Bytes(), "revision").String())

	recorder = httptest.NewRecorder()
	r.Admin.ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	r.ServeHTTP(recorder, httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}
