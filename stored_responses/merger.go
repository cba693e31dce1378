package stored_responses

import (
	"encoding/json"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/exchange/entities"
	"github.com/prebid/stored-responses/openrtb_ext"
)

const defaultBidCurrency = "USD"

// mergeWithBidderResponses combines live bidder responses with stored seat bids. Live responses keep
// their position; seats answered only by stored responses follow in stored order. Neither input is modified.
func mergeWithBidderResponses(responses []*entities.BidderResponse, storedSeatBids []openrtb2.SeatBid) ([]*entities.BidderResponse, error) {
	if len(storedSeatBids) == 0 {
		return responses, nil
	}

	storedSeatBids = mergeSameSeat(storedSeatBids)
	seatToStored := make(map[string]*openrtb2.SeatBid, len(storedSeatBids))
	for i := range storedSeatBids {
		seatToStored[storedSeatBids[i].Seat] = &storedSeatBids[i]
	}

	merged := make([]*entities.BidderResponse, 0, len(responses)+len(storedSeatBids))
	usedSeats := make(map[string]struct{}, len(storedSeatBids))
	for _, response := range responses {
		seat := string(response.Bidder)
		seatBid, hasStored := seatToStored[seat]
		if _, used := usedSeats[seat]; !hasStored || used {
			merged = append(merged, response)
			continue
		}
		usedSeats[seat] = struct{}{}

		storedBids, err := convertStoredBids(seatBid, liveBidCurrency(response))
		if err != nil {
			return nil, err
		}
		merged = append(merged, &entities.BidderResponse{
			Bidder:       response.Bidder,
			Bids:         append(storedBids, response.Bids...),
			HttpCalls:    response.HttpCalls,
			Errors:       response.Errors,
			ResponseTime: response.ResponseTime,
		})
	}

	for i := range storedSeatBids {
		seatBid := &storedSeatBids[i]
		if _, used := usedSeats[seatBid.Seat]; used {
			continue
		}
		storedBids, err := convertStoredBids(seatBid, defaultBidCurrency)
		if err != nil {
			return nil, err
		}
		merged = append(merged, &entities.BidderResponse{
			Bidder:    openrtb_ext.BidderName(seatBid.Seat),
			Bids:      storedBids,
			HttpCalls: []*openrtb_ext.ExtHttpCall{},
			Errors:    []error{},
		})
	}
	return merged, nil
}

// liveBidCurrency is the first currency set on a live bid.
func liveBidCurrency(response *entities.BidderResponse) string {
	for _, bid := range response.Bids {
		if bid != nil && bid.BidCurrency != "" {
			return bid.BidCurrency
		}
	}
	return defaultBidCurrency
}

func convertStoredBids(seatBid *openrtb2.SeatBid, currency string) ([]*entities.PbsOrtbBid, error) {
	bids := make([]*entities.PbsOrtbBid, 0, len(seatBid.Bid))
	for i := range seatBid.Bid {
		bid := seatBid.Bid[i]
		bidType, err := storedBidType(bid.Ext)
		if err != nil {
			return nil, err
		}
		bids = append(bids, &entities.PbsOrtbBid{
			Bid:         &bid,
			BidType:     bidType,
			BidCurrency: currency,
		})
	}
	return bids, nil
}

func storedBidType(ext json.RawMessage) (openrtb_ext.BidType, error) {
	if len(ext) == 0 {
		return openrtb_ext.BidTypeBanner, nil
	}

	var bidExt openrtb_ext.ExtBid
	if err := json.Unmarshal(ext, &bidExt); err != nil {
		return "", errBidExtPrebid()
	}
	if bidExt.Prebid == nil || bidExt.Prebid.Type == "" {
		return openrtb_ext.BidTypeBanner, nil
	}

	bidType, err := openrtb_ext.ParseBidType(string(bidExt.Prebid.Type))
	if err != nil {
		return "", errBidExtPrebid()
	}
	return bidType, nil
}
