package stored_responses

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/exchange/entities"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWithoutStoredSeatBids(t *testing.T) {
	responses := []*entities.BidderResponse{
		{Bidder: openrtb_ext.BidderRubicon, Bids: []*entities.PbsOrtbBid{{Bid: &openrtb2.Bid{ID: "live"}}}},
	}

	merged, err := mergeWithBidderResponses(responses, nil)

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.True(t, &merged[0] == &responses[0], "the live responses should be returned as they are")

	merged, err = mergeWithBidderResponses(nil, []openrtb2.SeatBid{})
	assert.NoError(t, err)
	assert.Nil(t, merged)
}

func TestMergeIntoLiveSeat(t *testing.T) {
	liveBid := &entities.PbsOrtbBid{Bid: &openrtb2.Bid{ID: "live", Price: 1}, BidType: openrtb_ext.BidTypeBanner, BidCurrency: "EUR"}
	httpCalls := []*openrtb_ext.ExtHttpCall{{Uri: "http://rubicon.example.com", Status: 200}}
	live := &entities.BidderResponse{
		Bidder:       openrtb_ext.BidderRubicon,
		Bids:         []*entities.PbsOrtbBid{liveBid},
		HttpCalls:    httpCalls,
		ResponseTime: 120 * time.Millisecond,
	}
	storedSeatBids := []openrtb2.SeatBid{
		{Seat: "rubicon", Bid: []openrtb2.Bid{{ID: "stored", Price: 3, Ext: json.RawMessage(`{"prebid":{"type":"video"}}`)}}},
	}

	merged, err := mergeWithBidderResponses([]*entities.BidderResponse{live}, storedSeatBids)

	require.NoError(t, err)
	require.Len(t, merged, 1)
	response := merged[0]
	assert.Equal(t, openrtb_ext.BidderRubicon, response.Bidder)
	require.Len(t, response.Bids, 2)
	assert.Equal(t, "stored", response.Bids[0].Bid.ID)
	assert.Equal(t, openrtb_ext.BidTypeVideo, response.Bids[0].BidType)
	assert.Equal(t, "EUR", response.Bids[0].BidCurrency)
	assert.Same(t, liveBid, response.Bids[1])
	assert.Equal(t, httpCalls, response.HttpCalls)
	assert.Equal(t, 120*time.Millisecond, response.ResponseTime)

	assert.Len(t, live.Bids, 1, "the live response must not change")
	storedSeatBids[0].Bid[0].Price = 10
	assert.Equal(t, 3.0, response.Bids[0].Bid.Price, "stored bids are copied")
}

func TestMergeOrdering(t *testing.T) {
	responses := []*entities.BidderResponse{
		{Bidder: openrtb_ext.BidderAppnexus, Bids: []*entities.PbsOrtbBid{{Bid: &openrtb2.Bid{ID: "anx"}}}},
		{Bidder: openrtb_ext.BidderRubicon, Bids: []*entities.PbsOrtbBid{{Bid: &openrtb2.Bid{ID: "rubi"}}}},
	}
	storedSeatBids := []openrtb2.SeatBid{
		{Seat: "pubmatic", Bid: []openrtb2.Bid{{ID: "pm"}}},
		{Seat: "rubicon", Bid: []openrtb2.Bid{{ID: "rubi-stored"}}},
		{Seat: "openx", Bid: []openrtb2.Bid{{ID: "ox", Ext: json.RawMessage(`{"prebid":{"type":"native"}}`)}}},
	}

	merged, err := mergeWithBidderResponses(responses, storedSeatBids)

	require.NoError(t, err)
	require.Len(t, merged, 4)
	assert.Same(t, responses[0], merged[0])
	assert.Equal(t, openrtb_ext.BidderRubicon, merged[1].Bidder)
	assert.Equal(t, openrtb_ext.BidderName("pubmatic"), merged[2].Bidder)
	assert.Equal(t, openrtb_ext.BidderName("openx"), merged[3].Bidder)

	storedOnly := merged[2]
	require.Len(t, storedOnly.Bids, 1)
	assert.Equal(t, "pm", storedOnly.Bids[0].Bid.ID)
	assert.Equal(t, openrtb_ext.BidTypeBanner, storedOnly.Bids[0].BidType)
	assert.Equal(t, "USD", storedOnly.Bids[0].BidCurrency)
	assert.NotNil(t, storedOnly.HttpCalls)
	assert.Empty(t, storedOnly.HttpCalls)
	assert.NotNil(t, storedOnly.Errors)
	assert.Empty(t, storedOnly.Errors)
	assert.Zero(t, storedOnly.ResponseTime)

	assert.Equal(t, openrtb_ext.BidTypeNative, merged[3].Bids[0].BidType)
}

func TestMergeCurrencyDefault(t *testing.T) {
	responses := []*entities.BidderResponse{
		{Bidder: openrtb_ext.BidderRubicon},
	}
	storedSeatBids := []openrtb2.SeatBid{{Seat: "rubicon", Bid: []openrtb2.Bid{{ID: "stored"}}}}

	merged, err := mergeWithBidderResponses(responses, storedSeatBids)

	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Bids, 1)
	assert.Equal(t, "USD", merged[0].Bids[0].BidCurrency)
}

func TestMergeInvalidBidExt(t *testing.T) {
	testCases := []struct {
		description string
		ext         json.RawMessage
	}{
		{description: "Unknown type", ext: json.RawMessage(`{"prebid":{"type":"popup"}}`)},
		{description: "Prebid is not an object", ext: json.RawMessage(`{"prebid":1}`)},
		{description: "Not json", ext: json.RawMessage(`{`)},
	}

	for _, test := range testCases {
		storedSeatBids := []openrtb2.SeatBid{{Seat: "rubicon", Bid: []openrtb2.Bid{{ID: "stored", Ext: test.ext}}}}

		merged, err := mergeWithBidderResponses(nil, storedSeatBids)

		assert.Nil(t, merged, test.description)
		assert.EqualError(t, err, "Error decoding stored response bid.ext.prebid", test.description)
		assert.Equal(t, errortypes.FailedToUnmarshalErrorCode, errortypes.ReadCode(err), test.description)
	}
}

func TestStoredBidType(t *testing.T) {
	testCases := []struct {
		description string
		ext         json.RawMessage
		expected    openrtb_ext.BidType
	}{
		{description: "No ext", expected: openrtb_ext.BidTypeBanner},
		{description: "No prebid", ext: json.RawMessage(`{"other":1}`), expected: openrtb_ext.BidTypeBanner},
		{description: "No type", ext: json.RawMessage(`{"prebid":{}}`), expected: openrtb_ext.BidTypeBanner},
		{description: "Audio", ext: json.RawMessage(`{"prebid":{"type":"audio"}}`), expected: openrtb_ext.BidTypeAudio},
	}

	for _, test := range testCases {
		bidType, err := storedBidType(test.ext)

		assert.NoError(t, err, test.description)
		assert.Equal(t, test.expected, bidType, test.description)
	}
}
