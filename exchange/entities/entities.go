package entities

import (
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/openrtb_ext"
)

// BidderResponse is the result of one bidder's participation in an auction. It either came back from
// a live call, was built from stored seat bids, or combines both.
type BidderResponse struct {
	// Bidder is the name the bids are attributed to.
	Bidder openrtb_ext.BidderName
	// Bids holds every bid returned for this bidder, in order.
	Bids []*PbsOrtbBid
	// HttpCalls records the outbound calls made to the bidder. Stored responses never add entries.
	HttpCalls []*openrtb_ext.ExtHttpCall
	// Errors holds the non-fatal errors reported by the bidder.
	Errors []error
	// ResponseTime is the duration of the live call, zero for a stored-only response.
	ResponseTime time.Duration
}

// PbsOrtbBid is a Bid returned by a bidder, together with the metadata needed by the exchange.
//
// BidType is the media type of the bid. BidCurrency is the currency the price is expressed in.
type PbsOrtbBid struct {
	Bid         *openrtb2.Bid
	BidType     openrtb_ext.BidType
	BidCurrency string
}
