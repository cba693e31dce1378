package stored_responses

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/exchange/entities"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/prebid/stored-responses/stored_requests"
)

// StoredResponseResult is the outcome of ProcessStoredResponses.
type StoredResponseResult struct {
	// RequiredRequestImps are the imps which still need live bidding. Imps answered entirely by stored
	// responses are absent; imps with some bidders answered have those bidders removed from their ext.
	RequiredRequestImps []openrtb2.Imp
	// StoredSeatBids holds one seat bid per seat, with ext.prebid.type set on every bid.
	StoredSeatBids []openrtb2.SeatBid
}

// Processor substitutes stored responses for live bidder calls, as requested by
// imp.ext.prebid.storedauctionresponse and imp.ext.prebid.storedbidresponse.
//
// A Processor holds no per request state and is safe for concurrent use.
type Processor struct {
	fetcher        stored_requests.Fetcher
	bidders        openrtb_ext.BidderRegistry
	defaultTimeout time.Duration
	metricsEngine  metrics.MetricsEngine
	clock          clock.Clock
}

// NewProcessor builds a Processor. defaultTimeout bounds the store fetch of requests without a positive tmax.
func NewProcessor(fetcher stored_requests.Fetcher, bidders openrtb_ext.BidderRegistry, defaultTimeout time.Duration, metricsEngine metrics.MetricsEngine) *Processor {
	return &Processor{
		fetcher:        fetcher,
		bidders:        bidders,
		defaultTimeout: defaultTimeout,
		metricsEngine:  metricsEngine,
		clock:          clock.New(),
	}
}

// ProcessStoredResponses classifies the imps and resolves every stored response they reference.
// Any error aborts the whole request; no partial result is returned.
func (p *Processor) ProcessStoredResponses(ctx context.Context, imps []openrtb2.Imp, tmax int64, aliases map[string]string) (*StoredResponseResult, error) {
	classification, err := p.Classify(imps, aliases)
	if err != nil {
		return nil, err
	}

	seatBids, err := p.Resolve(ctx, classification, tmax)
	if err != nil {
		return nil, err
	}
	return &StoredResponseResult{
		RequiredRequestImps: classification.RequiredImps(),
		StoredSeatBids:      seatBids,
	}, nil
}

// Classify decides, for each imp, whether it needs live bidding, stored responses or both.
// It does no I/O. If no imp references a stored response, RequiredImps is imps itself.
func (p *Processor) Classify(imps []openrtb2.Imp, aliases map[string]string) (*Classification, error) {
	classification, err := classifyImps(imps, aliases, p.bidders)
	if err != nil {
		return nil, err
	}
	for i := 0; i < classification.auctionDirectives; i++ {
		p.metricsEngine.RecordStoredResponse(metrics.StoredResponseAuction)
	}
	for i := 0; i < classification.bidDirectives; i++ {
		p.metricsEngine.RecordStoredResponse(metrics.StoredResponseBid)
	}
	return classification, nil
}

// Resolve fetches the stored responses of a classification and turns them into seat bids.
// The store is not contacted when there is nothing to fetch.
func (p *Processor) Resolve(ctx context.Context, classification *Classification, tmax int64) ([]openrtb2.SeatBid, error) {
	return p.resolveStoredSeatBids(ctx, classification.storedResponseIDs, classification.idToBidType, tmax)
}

// MergeWithBidderResponses adds the stored seat bids to the live bidder responses.
func (p *Processor) MergeWithBidderResponses(responses []*entities.BidderResponse, storedSeatBids []openrtb2.SeatBid) ([]*entities.BidderResponse, error) {
	return mergeWithBidderResponses(responses, storedSeatBids)
}
