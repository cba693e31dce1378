package openrtb_ext

// ExtImp defines the contract for bidrequest.imp[i].ext
//
// Bidder parameters live beside "prebid" as top-level keys, e.g. {"prebid":{...},"appnexus":{...}}.
// Only the "prebid" section is modelled here; bidder keys are inspected as raw JSON.
type ExtImp struct {
	Prebid *ExtImpPrebid `json:"prebid"`
}

// ExtImpPrebid defines the contract for bidrequest.imp[i].ext.prebid
type ExtImpPrebid struct {
	// StoredAuctionResponse specifies a stored response covering every seat of this imp.
	StoredAuctionResponse *ExtStoredAuctionResponse `json:"storedauctionresponse,omitempty"`

	// StoredBidResponse specifies stored responses for individual bidders of this imp.
	StoredBidResponse []ExtStoredBidResponse `json:"storedbidresponse,omitempty"`
}

// ExtStoredAuctionResponse defines the contract for bidrequest.imp[i].ext.prebid.storedauctionresponse
type ExtStoredAuctionResponse struct {
	ID string `json:"id"`
}

// ExtStoredBidResponse defines the contract for bidrequest.imp[i].ext.prebid.storedbidresponse
type ExtStoredBidResponse struct {
	ID     string `json:"id"`
	Bidder string `json:"bidder"`
}
