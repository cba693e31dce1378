package exchange

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/config"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/exchange/entities"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/prebid/stored-responses/stored_responses"
	"golang.org/x/sync/errgroup"
)

// Exchange runs Auctions. Implementations must be threadsafe, and will be shared across many goroutines.
type Exchange interface {
	// HoldAuction executes an OpenRTB v2.5 Auction.
	HoldAuction(ctx context.Context, r *AuctionRequest) (*AuctionResponse, error)
}

// AuctionRequest holds the bid request and the parts of its ext which the exchange acts on.
type AuctionRequest struct {
	BidRequest *openrtb2.BidRequest
	// Aliases maps alias names to core bidders, from request.ext.prebid.aliases.
	Aliases map[string]string
	// Targeting is nil unless the request asked for targeting keys.
	Targeting *openrtb_ext.ExtRequestTargeting
	Debug     bool
}

// AuctionResponse contains OpenRTB Bid Response object and its extension (un-marshalled) object
type AuctionResponse struct {
	*openrtb2.BidResponse
	ExtBidResponse *openrtb_ext.ExtBidResponse
}

type exchange struct {
	processor        *stored_responses.Processor
	fanout           BidderFanout
	me               metrics.MetricsEngine
	defaultCurrency  string
	priceGranularity openrtb_ext.PriceGranularity
}

// NewExchange builds an Exchange which answers imps from stored responses where requested and sends
// the remaining imps to fanout.
func NewExchange(processor *stored_responses.Processor, fanout BidderFanout, me metrics.MetricsEngine, cfg config.Auction) Exchange {
	return &exchange{
		processor:        processor,
		fanout:           fanout,
		me:               me,
		defaultCurrency:  cfg.DefaultCurrency,
		priceGranularity: openrtb_ext.PriceGranularityFromStringOrDefault(cfg.PriceGranularity),
	}
}

func (e *exchange) HoldAuction(ctx context.Context, r *AuctionRequest) (*AuctionResponse, error) {
	classification, err := e.processor.Classify(r.BidRequest.Imp, r.Aliases)
	if err != nil {
		return nil, err
	}

	liveRequest := *r.BidRequest
	liveRequest.Imp = classification.RequiredImps()

	var (
		storedSeatBids []openrtb2.SeatBid
		liveResponses  []*entities.BidderResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		storedSeatBids, err = e.processor.Resolve(gctx, classification, r.BidRequest.TMax)
		return err
	})
	if len(liveRequest.Imp) > 0 {
		g.Go(func() error {
			var err error
			liveResponses, err = e.fanout.CallBidders(gctx, &liveRequest, r.Aliases, r.Debug)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bidderResponses, err := e.processor.MergeWithBidderResponses(liveResponses, storedSeatBids)
	if err != nil {
		return nil, err
	}
	e.recordBids(liveResponses, bidderResponses)

	targeting, err := newTargetData(r.Targeting, e.priceGranularity)
	if err != nil {
		// the auction still runs with the default granularity
		glog.V(2).Infof("Request %s: %v", r.BidRequest.ID, err)
	}
	return e.buildAuctionResponse(r, bidderResponses, targeting, err)
}

// recordBids counts every bid which reached the auction, split by where it came from.
func (e *exchange) recordBids(liveResponses, bidderResponses []*entities.BidderResponse) {
	liveBids := make(map[*entities.PbsOrtbBid]struct{})
	for _, response := range liveResponses {
		for _, bid := range response.Bids {
			liveBids[bid] = struct{}{}
		}
	}

	for _, response := range bidderResponses {
		for _, bid := range response.Bids {
			if bid == nil || bid.Bid == nil {
				continue
			}
			source := metrics.BidSourceStored
			if _, live := liveBids[bid]; live {
				source = metrics.BidSourceLive
			}
			e.me.RecordAdapterBidReceived(metrics.AdapterLabels{Adapter: response.Bidder, Source: source}, bid.BidType, bid.Bid.AdM != "")
		}
	}
}

func (e *exchange) buildAuctionResponse(r *AuctionRequest, bidderResponses []*entities.BidderResponse, targeting *targetData, warning error) (*AuctionResponse, error) {
	ext := &openrtb_ext.ExtBidResponse{
		ResponseTimeMillis: make(map[openrtb_ext.BidderName]int, len(bidderResponses)),
	}
	if r.Debug {
		ext.Debug = &openrtb_ext.ExtResponseDebug{HttpCalls: make(map[openrtb_ext.BidderName][]*openrtb_ext.ExtHttpCall)}
	}
	if warning != nil {
		ext.Warnings = map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage{
			openrtb_ext.BidderReservedGeneral: {{Code: errortypes.ReadCode(warning), Message: warning.Error()}},
		}
	}

	bidResponse := &openrtb2.BidResponse{ID: r.BidRequest.ID}
	for _, response := range bidderResponses {
		ext.ResponseTimeMillis[response.Bidder] = int(response.ResponseTime.Milliseconds())
		if fatal := errortypes.FatalOnly(response.Errors); len(fatal) > 0 {
			if ext.Errors == nil {
				ext.Errors = make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage)
			}
			ext.Errors[response.Bidder] = errorsToMessages(fatal)
		}
		if warnings := errortypes.WarningOnly(response.Errors); len(warnings) > 0 {
			if ext.Warnings == nil {
				ext.Warnings = make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage)
			}
			ext.Warnings[response.Bidder] = errorsToMessages(warnings)
		}
		if ext.Debug != nil && len(response.HttpCalls) > 0 {
			ext.Debug.HttpCalls[response.Bidder] = response.HttpCalls
		}

		seatBid := openrtb2.SeatBid{Seat: string(response.Bidder)}
		for _, bid := range response.Bids {
			if bid == nil || bid.Bid == nil {
				continue
			}
			if bidResponse.Cur == "" {
				bidResponse.Cur = bid.BidCurrency
			}
			seatBid.Bid = append(seatBid.Bid, *bid.Bid)
		}
		if len(seatBid.Bid) > 0 {
			bidResponse.SeatBid = append(bidResponse.SeatBid, seatBid)
		}
	}
	if bidResponse.Cur == "" {
		bidResponse.Cur = e.defaultCurrency
	}

	if err := targeting.setTargeting(bidResponse.SeatBid); err != nil {
		return nil, err
	}

	extJSON, err := json.Marshal(ext)
	if err != nil {
		return nil, err
	}
	bidResponse.Ext = extJSON
	return &AuctionResponse{BidResponse: bidResponse, ExtBidResponse: ext}, nil
}

func errorsToMessages(errs []error) []openrtb_ext.ExtBidderMessage {
	messages := make([]openrtb_ext.ExtBidderMessage, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	return messages
}
