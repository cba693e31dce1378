package exchange

import (
	"encoding/json"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// targetData writes hb_pb and hb_bidder targeting keys into bid.ext.prebid.targeting.
//
// All functions on this struct are nil-safe.
// If the value is nil, then no targeting data will be written.
type targetData struct {
	lengthMax        int
	priceGranularity openrtb_ext.PriceGranularity
}

// newTargetData returns nil if the request did not ask for targeting. An unknown granularity name
// falls back to defaultGranularity and is reported as a warning.
func newTargetData(requested *openrtb_ext.ExtRequestTargeting, defaultGranularity openrtb_ext.PriceGranularity) (*targetData, error) {
	if requested == nil {
		return nil, nil
	}
	t := &targetData{
		lengthMax:        requested.MaxLength,
		priceGranularity: defaultGranularity,
	}
	if requested.PriceGranularity == "" {
		return t, nil
	}

	pg, err := openrtb_ext.PriceGranularityFromString(requested.PriceGranularity)
	if err != nil {
		return t, &errortypes.Warning{
			Message:     err.Error(),
			WarningCode: errortypes.InvalidPriceGranularityWarningCode,
		}
	}
	t.priceGranularity = pg
	return t, nil
}

// setTargeting adds the bidder specific keys to every bid, and the generic keys to the highest
// bid of each imp. The first bid wins a tie.
func (t *targetData) setTargeting(seatBids []openrtb2.SeatBid) error {
	if t == nil {
		return nil
	}

	type position struct{ seat, bid int }
	winners := make(map[string]position)
	for i := range seatBids {
		for j := range seatBids[i].Bid {
			bid := &seatBids[i].Bid[j]
			winner, ok := winners[bid.ImpID]
			if !ok || bid.Price > seatBids[winner.seat].Bid[winner.bid].Price {
				winners[bid.ImpID] = position{seat: i, bid: j}
			}
		}
	}

	for i := range seatBids {
		bidder := openrtb_ext.BidderName(seatBids[i].Seat)
		for j := range seatBids[i].Bid {
			bid := &seatBids[i].Bid[j]
			winner := winners[bid.ImpID]
			ext, err := t.addTargets(bid, bidder, winner.seat == i && winner.bid == j)
			if err != nil {
				return err
			}
			bid.Ext = ext
		}
	}
	return nil
}

func (t *targetData) addTargets(bid *openrtb2.Bid, bidder openrtb_ext.BidderName, isWinner bool) (json.RawMessage, error) {
	priceBucket := GetPriceBucket(bid.Price, t.priceGranularity)

	targets := [][2]string{
		{openrtb_ext.HbpbConstantKey.BidderKey(bidder, t.lengthMax), priceBucket},
		{openrtb_ext.HbBidderConstantKey.BidderKey(bidder, t.lengthMax), string(bidder)},
	}
	if isWinner {
		targets = append(targets,
			[2]string{string(openrtb_ext.HbpbConstantKey), priceBucket},
			[2]string{string(openrtb_ext.HbBidderConstantKey), string(bidder)})
	}

	ext := bid.Ext
	if len(ext) == 0 || gjson.ParseBytes(ext).Type == gjson.Null {
		ext = json.RawMessage(`{}`)
	}
	for _, target := range targets {
		var err error
		ext, err = sjson.SetBytes(ext, "prebid.targeting."+target[0], target[1])
		if err != nil {
			return nil, &errortypes.FailedToUnmarshal{Message: "Error writing bid.ext.prebid.targeting: " + err.Error()}
		}
	}
	return ext, nil
}
