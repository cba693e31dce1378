package stored_responses

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/prebid/stored-responses/stored_requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data map[string]json.RawMessage
	errs []error

	calls        int
	requestedIDs []string
	deadline     time.Time
	hasDeadline  bool
	ctxErr       error
}

func (f *fakeFetcher) FetchResponses(ctx context.Context, ids []string) (map[string]json.RawMessage, []error) {
	f.calls++
	f.requestedIDs = ids
	f.deadline, f.hasDeadline = ctx.Deadline()
	f.ctxErr = ctx.Err()

	data := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if payload, ok := f.data[id]; ok {
			data[id] = payload
		}
	}
	if f.errs != nil {
		return data, f.errs
	}
	return data, stored_requests.NewNotFoundErrors(ids, data)
}

func newTestProcessor(fetcher stored_requests.Fetcher) (*Processor, *metrics.MetricsEngineMock) {
	metricsMock := &metrics.MetricsEngineMock{}
	metricsMock.On("RecordStoredDataFetchTime", mock.Anything, mock.Anything).Return()
	metricsMock.On("RecordStoredDataError", mock.Anything).Return()
	metricsMock.On("RecordStoredResponse", mock.Anything).Return()

	p := NewProcessor(fetcher, testBidders, 2*time.Second, metricsMock)
	p.clock = clock.NewMock()
	return p, metricsMock
}

func bidIDs(seatBid openrtb2.SeatBid) []string {
	ids := make([]string, 0, len(seatBid.Bid))
	for _, bid := range seatBid.Bid {
		ids = append(ids, bid.ID)
	}
	return ids
}

func TestResolveWithoutIDs(t *testing.T) {
	fetcher := &fakeFetcher{}
	p, metricsMock := newTestProcessor(fetcher)

	seatBids, err := p.resolveStoredSeatBids(context.Background(), nil, nil, 100)

	assert.NoError(t, err)
	assert.Nil(t, seatBids)
	assert.Equal(t, 0, fetcher.calls)
	metricsMock.AssertNotCalled(t, "RecordStoredDataFetchTime", mock.Anything, mock.Anything)
}

func TestResolveStampsBidType(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string]json.RawMessage{
		"1": json.RawMessage(`[{"seat":"appnexus","bid":[{"id":"a","impid":"imp-1","price":1.5},{"id":"b","impid":"imp-1","price":2,"ext":{"prebid":{"type":"native"}}}]}]`),
	}}
	p, metricsMock := newTestProcessor(fetcher)

	seatBids, err := p.resolveStoredSeatBids(context.Background(), []string{"1"}, map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeVideo}, 100)

	require.NoError(t, err)
	require.Len(t, seatBids, 1)
	assert.Equal(t, "appnexus", seatBids[0].Seat)
	require.Len(t, seatBids[0].Bid, 2)
	assert.JSONEq(t, `{"prebid":{"type":"video"}}`, string(seatBids[0].Bid[0].Ext))
	assert.JSONEq(t, `{"prebid":{"type":"native"}}`, string(seatBids[0].Bid[1].Ext))
	assert.Equal(t, 1.5, seatBids[0].Bid[0].Price)
	assert.Equal(t, []string{"1"}, fetcher.requestedIDs)
	metricsMock.AssertCalled(t, "RecordStoredDataFetchTime", metrics.StoredDataLabels{DataType: metrics.ResponseDataType}, time.Duration(0))
}

func TestResolveFetchTimeout(t *testing.T) {
	testCases := []struct {
		description     string
		tmax            int64
		expectedTimeout time.Duration
	}{
		{description: "Request tmax", tmax: 150, expectedTimeout: 150 * time.Millisecond},
		{description: "No tmax uses the default", tmax: 0, expectedTimeout: 2 * time.Second},
		{description: "Negative tmax uses the default", tmax: -5, expectedTimeout: 2 * time.Second},
	}

	for _, test := range testCases {
		fetcher := &fakeFetcher{data: map[string]json.RawMessage{"1": json.RawMessage(`[]`)}}
		p, _ := newTestProcessor(fetcher)

		_, err := p.resolveStoredSeatBids(context.Background(), []string{"1"}, map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeBanner}, test.tmax)

		require.NoError(t, err, test.description)
		require.True(t, fetcher.hasDeadline, test.description)
		assert.WithinDuration(t, time.Now().Add(test.expectedTimeout), fetcher.deadline, 100*time.Millisecond, test.description)
	}
}

func TestResolveLargeTMax(t *testing.T) {
	testCases := []struct {
		description string
		tmax        int64
	}{
		{description: "Beyond the nanosecond range", tmax: 10_000_000_000_000},
		{description: "Max int64", tmax: math.MaxInt64},
	}

	for _, test := range testCases {
		fetcher := &fakeFetcher{data: map[string]json.RawMessage{"1": json.RawMessage(`[{"seat":"appnexus","bid":[{"id":"a"}]}]`)}}
		p, _ := newTestProcessor(fetcher)

		seatBids, err := p.resolveStoredSeatBids(context.Background(), []string{"1"}, map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeBanner}, test.tmax)

		require.NoError(t, err, test.description)
		assert.Len(t, seatBids, 1, test.description)
		assert.NoError(t, fetcher.ctxErr, test.description)
		assert.True(t, fetcher.deadline.After(time.Now().Add(24*time.Hour)), test.description)
	}
}

func TestTMaxDuration(t *testing.T) {
	assert.Equal(t, 150*time.Millisecond, tmaxDuration(150))
	assert.Equal(t, time.Duration(maxTMaxMillis)*time.Millisecond, tmaxDuration(maxTMaxMillis))
	assert.Equal(t, time.Duration(math.MaxInt64), tmaxDuration(maxTMaxMillis+1))
	assert.Equal(t, time.Duration(math.MaxInt64), tmaxDuration(math.MaxInt64))
}

func TestResolveMissingIDsAreSkipped(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string]json.RawMessage{
		"2": json.RawMessage(`[{"seat":"rubicon","bid":[{"id":"r"}]}]`),
	}}
	p, metricsMock := newTestProcessor(fetcher)

	seatBids, err := p.resolveStoredSeatBids(context.Background(), []string{"1", "2"},
		map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeBanner, "2": openrtb_ext.BidTypeBanner}, 100)

	require.NoError(t, err)
	require.Len(t, seatBids, 1)
	assert.Equal(t, "rubicon", seatBids[0].Seat)
	metricsMock.AssertNotCalled(t, "RecordStoredDataError", mock.Anything)
}

func TestResolveFetchErrors(t *testing.T) {
	testCases := []struct {
		description     string
		fetchErr        error
		expectedMessage string
		expectedMetric  metrics.StoredDataError
	}{
		{
			description:     "Undefined failure",
			fetchErr:        errors.New("connection refused"),
			expectedMessage: "Stored response fetching failed with reason: connection refused",
			expectedMetric:  metrics.StoredDataErrorUndefined,
		},
		{
			description:     "Timeout",
			fetchErr:        &errortypes.Timeout{Message: "Stored response database query timed out"},
			expectedMessage: "Stored response fetching failed with reason: Stored response database query timed out",
			expectedMetric:  metrics.StoredDataErrorTimeout,
		},
		{
			description:     "Context deadline",
			fetchErr:        context.DeadlineExceeded,
			expectedMessage: "Stored response fetching failed with reason: context deadline exceeded",
			expectedMetric:  metrics.StoredDataErrorTimeout,
		},
		{
			description:     "Bad server response",
			fetchErr:        &errortypes.BadServerResponse{Message: "Error fetching Stored Responses via HTTP. Response code was 500"},
			expectedMessage: "Stored response fetching failed with reason: Error fetching Stored Responses via HTTP. Response code was 500",
			expectedMetric:  metrics.StoredDataErrorNetwork,
		},
	}

	for _, test := range testCases {
		fetcher := &fakeFetcher{
			data: map[string]json.RawMessage{"1": json.RawMessage(`[{"seat":"rubicon","bid":[{"id":"r"}]}]`)},
			errs: []error{stored_requests.NotFoundError{ID: "2", DataType: "Response"}, test.fetchErr},
		}
		p, metricsMock := newTestProcessor(fetcher)

		seatBids, err := p.resolveStoredSeatBids(context.Background(), []string{"1", "2"},
			map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeBanner, "2": openrtb_ext.BidTypeBanner}, 100)

		assert.Nil(t, seatBids, test.description)
		assert.EqualError(t, err, test.expectedMessage, test.description)
		assert.Equal(t, errortypes.BadInputErrorCode, errortypes.ReadCode(err), test.description)
		metricsMock.AssertCalled(t, "RecordStoredDataError", metrics.StoredDataLabels{DataType: metrics.ResponseDataType, Error: test.expectedMetric})
	}
}

func TestResolveInvalidPayloads(t *testing.T) {
	testCases := []struct {
		description     string
		data            map[string]json.RawMessage
		expectedMessage string
		expectedCode    int
	}{
		{
			description:     "Not a list",
			data:            map[string]json.RawMessage{"1": json.RawMessage(`{"seat":"rubicon"}`)},
			expectedMessage: "Can't parse Json for stored response with id 1",
			expectedCode:    errortypes.BadInputErrorCode,
		},
		{
			description:     "Broken json",
			data:            map[string]json.RawMessage{"1": json.RawMessage(`[{"seat":`)},
			expectedMessage: "Can't parse Json for stored response with id 1",
			expectedCode:    errortypes.BadInputErrorCode,
		},
		{
			description: "Empty seat among valid seats",
			data: map[string]json.RawMessage{
				"1": json.RawMessage(`[{"seat":"rubicon","bid":[{"id":"r"}]}]`),
				"2": json.RawMessage(`[{"bid":[{"id":"x"}]}]`),
			},
			expectedMessage: "Seat can't be empty in stored response seatBid",
			expectedCode:    errortypes.BadInputErrorCode,
		},
		{
			description:     "Bid ext is not an object",
			data:            map[string]json.RawMessage{"1": json.RawMessage(`[{"seat":"rubicon","bid":[{"id":"r","ext":[1]}]}]`)},
			expectedMessage: "Error decoding stored response bid.ext.prebid",
			expectedCode:    errortypes.FailedToUnmarshalErrorCode,
		},
	}

	for _, test := range testCases {
		p, _ := newTestProcessor(&fakeFetcher{data: test.data})

		seatBids, err := p.resolveStoredSeatBids(context.Background(), []string{"1", "2"},
			map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeBanner, "2": openrtb_ext.BidTypeBanner}, 100)

		assert.Nil(t, seatBids, test.description)
		assert.EqualError(t, err, test.expectedMessage, test.description)
		assert.Equal(t, test.expectedCode, errortypes.ReadCode(err), test.description)
	}
}

func TestResolveMergesSameSeat(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string]json.RawMessage{
		"1": json.RawMessage(`[{"seat":"rubicon","bid":[{"id":"a"}]},{"seat":"appnexus","bid":[{"id":"c"}]}]`),
		"2": json.RawMessage(`[{"seat":"rubicon","bid":[{"id":"b"}],"ext":{"origin":"second"}}]`),
	}}
	p, _ := newTestProcessor(fetcher)

	seatBids, err := p.resolveStoredSeatBids(context.Background(), []string{"1", "2"},
		map[string]openrtb_ext.BidType{"1": openrtb_ext.BidTypeBanner, "2": openrtb_ext.BidTypeAudio}, 100)

	require.NoError(t, err)
	require.Len(t, seatBids, 2)
	assert.Equal(t, "rubicon", seatBids[0].Seat)
	assert.Equal(t, []string{"a", "b"}, bidIDs(seatBids[0]))
	assert.JSONEq(t, `{"origin":"second"}`, string(seatBids[0].Ext))
	assert.JSONEq(t, `{"prebid":{"type":"banner"}}`, string(seatBids[0].Bid[0].Ext))
	assert.JSONEq(t, `{"prebid":{"type":"audio"}}`, string(seatBids[0].Bid[1].Ext))
	assert.Equal(t, "appnexus", seatBids[1].Seat)
	assert.Equal(t, []string{"c"}, bidIDs(seatBids[1]))
}

func TestSetBidType(t *testing.T) {
	testCases := []struct {
		description   string
		ext           json.RawMessage
		expectedExt   string
		expectedError bool
	}{
		{description: "No ext", ext: nil, expectedExt: `{"prebid":{"type":"video"}}`},
		{description: "Null ext", ext: json.RawMessage(`null`), expectedExt: `{"prebid":{"type":"video"}}`},
		{description: "Ext without prebid", ext: json.RawMessage(`{"origbidcpm":1}`), expectedExt: `{"origbidcpm":1,"prebid":{"type":"video"}}`},
		{description: "Null prebid", ext: json.RawMessage(`{"prebid":null}`), expectedExt: `{"prebid":{"type":"video"}}`},
		{description: "Prebid without type", ext: json.RawMessage(`{"prebid":{"targeting":{"hb_pb":"1.00"}}}`), expectedExt: `{"prebid":{"targeting":{"hb_pb":"1.00"},"type":"video"}}`},
		{description: "Empty type", ext: json.RawMessage(`{"prebid":{"type":""}}`), expectedExt: `{"prebid":{"type":"video"}}`},
		{description: "Type kept", ext: json.RawMessage(`{"prebid":{"type":"native"},"other":true}`), expectedExt: `{"prebid":{"type":"native"},"other":true}`},
		{description: "Ext is a list", ext: json.RawMessage(`[]`), expectedError: true},
		{description: "Prebid is a string", ext: json.RawMessage(`{"prebid":"video"}`), expectedError: true},
	}

	for _, test := range testCases {
		ext, err := setBidType(test.ext, openrtb_ext.BidTypeVideo)

		if test.expectedError {
			assert.Equal(t, errortypes.FailedToUnmarshalErrorCode, errortypes.ReadCode(err), test.description)
			continue
		}
		require.NoError(t, err, test.description)
		assert.JSONEq(t, test.expectedExt, string(ext), test.description)
	}
}

func TestStoredDataError(t *testing.T) {
	assert.Equal(t, metrics.StoredDataErrorTimeout, storedDataError(&errortypes.Timeout{Message: "slow"}))
	assert.Equal(t, metrics.StoredDataErrorNetwork, storedDataError(&errortypes.BadServerResponse{Message: "502"}))
	assert.Equal(t, metrics.StoredDataErrorTimeout, storedDataError(context.DeadlineExceeded))
	assert.Equal(t, metrics.StoredDataErrorUndefined, storedDataError(errors.New("boom")))
}
