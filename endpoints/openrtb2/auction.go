package openrtb2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/exchange"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
)

// NewEndpoint serves POST /openrtb2/auction. Imps may name stored responses in imp.ext.prebid, which
// answer them in place of (or alongside) the live bidders.
func NewEndpoint(ex exchange.Exchange, bidders openrtb_ext.BidderRegistry, me metrics.MetricsEngine, maxRequestSize int64) (httprouter.Handle, error) {
	if ex == nil || bidders == nil || me == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}
	return httprouter.Handle((&endpointDeps{
		ex:             ex,
		bidders:        bidders,
		me:             me,
		maxRequestSize: maxRequestSize,
	}).Auction), nil
}

type endpointDeps struct {
	ex             exchange.Exchange
	bidders        openrtb_ext.BidderRegistry
	me             metrics.MetricsEngine
	maxRequestSize int64
}

func (deps *endpointDeps) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	labels := metrics.Labels{RequestStatus: metrics.RequestStatusOK}
	defer func() {
		deps.me.RecordRequest(labels)
		if labels.RequestStatus == metrics.RequestStatusOK {
			deps.me.RecordRequestTime(labels, time.Since(start))
		}
	}()

	req, ctx, cancel, errL := deps.parseRequest(r)
	defer cancel() // Safe because parseRequest returns a no-op if there's nothing to cancel
	if len(errL) > 0 {
		labels.RequestStatus = metrics.RequestStatusBadInput
		w.WriteHeader(http.StatusBadRequest)
		for _, err := range errL {
			fmt.Fprintf(w, "Invalid request format: %s\n", err.Error())
		}
		return
	}

	response, err := deps.ex.HoldAuction(ctx, req)
	if err != nil {
		status := http.StatusInternalServerError
		labels.RequestStatus = metrics.RequestStatusErr
		if errortypes.ReadCode(err) == errortypes.BadInputErrorCode {
			status = http.StatusBadRequest
			labels.RequestStatus = metrics.RequestStatusBadInput
		} else {
			glog.Errorf("/openrtb2/auction critical error for request %s: %v", req.BidRequest.ID, err)
		}
		writeNoBid(w, status, req.BidRequest.ID, err)
		return
	}

	responseBytes, err := json.Marshal(response.BidResponse)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Failed to marshal auction response: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(responseBytes)
}

// writeNoBid answers a failed auction with an empty BidResponse carrying the no-bid reason and the error.
func writeNoBid(w http.ResponseWriter, status int, requestID string, err error) {
	ext, _ := json.Marshal(openrtb_ext.ExtBidResponse{
		Errors: map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage{
			openrtb_ext.BidderReservedGeneral: {{Code: errortypes.ReadCode(err), Message: err.Error()}},
		},
	})
	response := openrtb2.BidResponse{
		ID:  requestID,
		NBR: errortypes.GetNBRCodeFromError(err).Ptr(),
		Ext: ext,
	}
	responseBytes, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseBytes)
}

// parseRequest turns the HTTP request into an auction request. This is guaranteed to return:
//
//   - A context which times out appropriately, given the request.
//   - A cancellation function which should be called if the auction finishes early.
//
// If the errors list has at least one element, then no guarantees are made about the returned request.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (req *exchange.AuctionRequest, ctx context.Context, cancel func(), errs []error) {
	ctx = context.Background()
	cancel = func() {}

	var reader io.Reader = httpRequest.Body
	if deps.maxRequestSize > 0 {
		reader = http.MaxBytesReader(nil, httpRequest.Body, deps.maxRequestSize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		errs = []error{fmt.Errorf("request body could not be read: %v", err)}
		return
	}

	bidRequest := &openrtb2.BidRequest{}
	if err := json.Unmarshal(body, bidRequest); err != nil {
		errs = []error{err}
		return
	}

	if err := deps.validateRequest(bidRequest); err != nil {
		errs = []error{err}
		return
	}

	var requestExt openrtb_ext.ExtRequest
	if len(bidRequest.Ext) > 0 {
		if err := json.Unmarshal(bidRequest.Ext, &requestExt); err != nil {
			errs = []error{fmt.Errorf("request.ext is invalid: %v", err)}
			return
		}
	}
	if err := deps.validateAliases(requestExt.Prebid.Aliases); err != nil {
		errs = []error{err}
		return
	}

	if bidRequest.TMax > 0 {
		ctx, cancel = context.WithTimeout(ctx, tmaxDuration(bidRequest.TMax))
	}

	req = &exchange.AuctionRequest{
		BidRequest: bidRequest,
		Aliases:    requestExt.Prebid.Aliases,
		Targeting:  requestExt.Prebid.Targeting,
		Debug:      requestExt.Prebid.Debug,
	}
	return
}

func (deps *endpointDeps) validateRequest(req *openrtb2.BidRequest) error {
	if req.ID == "" {
		return errors.New("request missing required field: \"id\"")
	}

	if req.TMax < 0 {
		return fmt.Errorf("request.tmax must be nonnegative. Got %d", req.TMax)
	}

	if len(req.Imp) < 1 {
		return errors.New("request.imp must contain at least one element.")
	}

	impIDs := make(map[string]int, len(req.Imp))
	for index, imp := range req.Imp {
		if imp.ID == "" {
			return fmt.Errorf("request.imp[%d] missing required field: \"id\"", index)
		}
		if first, seen := impIDs[imp.ID]; seen {
			return fmt.Errorf("request.imp[%d].id and request.imp[%d].id are both %q. Imp IDs must be unique.", first, index, imp.ID)
		}
		impIDs[imp.ID] = index
	}
	return nil
}

func (deps *endpointDeps) validateAliases(aliases map[string]string) error {
	for alias, coreBidder := range aliases {
		if openrtb_ext.IsBidderNameReserved(alias) {
			return fmt.Errorf("request.ext.prebid.aliases.%s uses a reserved name.", alias)
		}
		if !deps.bidders.IsValidName(coreBidder) {
			return fmt.Errorf("request.ext.prebid.aliases.%s refers to unknown bidder: %s", alias, coreBidder)
		}
		if alias == coreBidder {
			return fmt.Errorf("request.ext.prebid.aliases.%s defines a no-op alias. Choose a different alias, or remove this entry.", alias)
		}
	}
	return nil
}

const maxTMaxMillis = int64(math.MaxInt64 / int64(time.Millisecond))

// tmaxDuration converts tmax milliseconds, saturating at the longest representable duration.
func tmaxDuration(tmax int64) time.Duration {
	if tmax > maxTMaxMillis {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(tmax) * time.Millisecond
}
