package stored_responses

import (
	"encoding/json"
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/openrtb_ext"
)

// directive is what imp.ext.prebid asks for. It is one of noDirective, auctionDirective or bidDirective.
type directive interface {
	isDirective()
}

// noDirective marks an imp which needs live bidding only.
type noDirective struct{}

// auctionDirective replaces every seat of the imp with one stored response.
type auctionDirective struct {
	id string
}

// bidDirective replaces individual bidders of the imp with stored responses.
type bidDirective struct {
	// bidders is in order of first appearance.
	bidders    []string
	bidderToID map[string]string
}

func (noDirective) isDirective()      {}
func (auctionDirective) isDirective() {}
func (bidDirective) isDirective()     {}

func parseDirective(imp *openrtb2.Imp) (directive, error) {
	if len(imp.Ext) == 0 {
		return noDirective{}, nil
	}

	var impExt openrtb_ext.ExtImp
	if err := json.Unmarshal(imp.Ext, &impExt); err != nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Error decoding bidRequest.imp.ext for impId = %s : %s", imp.ID, err.Error()),
		}
	}
	prebid := impExt.Prebid
	if prebid == nil {
		return noDirective{}, nil
	}

	if prebid.StoredAuctionResponse != nil && prebid.StoredAuctionResponse.ID != "" {
		return auctionDirective{id: prebid.StoredAuctionResponse.ID}, nil
	}

	if len(prebid.StoredBidResponse) == 0 {
		return noDirective{}, nil
	}

	d := bidDirective{
		bidders:    make([]string, 0, len(prebid.StoredBidResponse)),
		bidderToID: make(map[string]string, len(prebid.StoredBidResponse)),
	}
	for _, storedBidResponse := range prebid.StoredBidResponse {
		if storedBidResponse.Bidder == "" {
			return nil, &errortypes.BadInput{
				Message: fmt.Sprintf("Bidder was not defined for imp.ext.prebid.storedBidResponse for imp with id %s", imp.ID),
			}
		}
		if storedBidResponse.ID == "" {
			return nil, &errortypes.BadInput{
				Message: fmt.Sprintf("Id was not defined for imp.ext.prebid.storedBidResponse for imp with id %s", imp.ID),
			}
		}
		if _, seen := d.bidderToID[storedBidResponse.Bidder]; !seen {
			d.bidders = append(d.bidders, storedBidResponse.Bidder)
		}
		// a bidder named twice uses its last id
		d.bidderToID[storedBidResponse.Bidder] = storedBidResponse.ID
	}
	return d, nil
}
