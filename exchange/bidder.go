package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/exchange/entities"
	"github.com/prebid/stored-responses/openrtb_ext"
	"golang.org/x/net/context/ctxhttp"
)

const defaultBidCurrency = "USD"

// BidderFanout calls the live bidders named in the imps of a request.
//
// Failures of a single bidder are reported in its BidderResponse.Errors. A returned error fails the auction.
type BidderFanout interface {
	CallBidders(ctx context.Context, request *openrtb2.BidRequest, aliases map[string]string, debug bool) ([]*entities.BidderResponse, error)
}

// bidderRequest is the part of a bid request sent to one seat.
type bidderRequest struct {
	seat       openrtb_ext.BidderName
	coreBidder openrtb_ext.BidderName
	request    openrtb2.BidRequest
}

// httpCallInfo is created for each bid request to a bidder.
type httpCallInfo struct {
	uri          string
	requestBody  []byte
	headers      http.Header
	status       int
	responseBody []byte
	err          error
}

type httpFanout struct {
	client    *http.Client
	endpoints map[openrtb_ext.BidderName]string
	clock     clock.Clock
}

// NewHTTPBidderFanout sends OpenRTB requests to the configured bidder endpoints. Each bidder receives
// only the imps which name it (or one of its aliases) in imp.ext, with that entry moved to imp.ext.bidder.
func NewHTTPBidderFanout(client *http.Client, endpoints map[openrtb_ext.BidderName]string) BidderFanout {
	return &httpFanout{
		client:    client,
		endpoints: endpoints,
		clock:     clock.New(),
	}
}

func (f *httpFanout) CallBidders(ctx context.Context, request *openrtb2.BidRequest, aliases map[string]string, debug bool) ([]*entities.BidderResponse, error) {
	requests, err := f.splitRequest(request, aliases)
	if err != nil {
		return nil, err
	}

	responses := make([]*entities.BidderResponse, len(requests))
	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = f.callBidder(ctx, &requests[i], debug)
		}(i)
	}
	wg.Wait()
	return responses, nil
}

// splitRequest builds one request per seat, in order of the first imp naming the seat.
func (f *httpFanout) splitRequest(request *openrtb2.BidRequest, aliases map[string]string) ([]bidderRequest, error) {
	var requests []bidderRequest
	seatIndex := make(map[string]int)

	for _, imp := range request.Imp {
		err := jsonparser.ObjectEach(imp.Ext, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
			seat := string(key)
			if openrtb_ext.IsBidderNameReserved(seat) {
				return nil
			}
			coreBidder := openrtb_ext.BidderName(seat)
			if core, isAlias := aliases[seat]; isAlias {
				coreBidder = openrtb_ext.BidderName(core)
			}
			if _, ok := f.endpoints[coreBidder]; !ok {
				return nil
			}

			bidderImp := imp
			params := value
			if dataType == jsonparser.String {
				params = []byte(`"` + string(value) + `"`)
			}
			bidderImp.Ext = json.RawMessage(`{"bidder":` + string(params) + `}`)

			i, seen := seatIndex[seat]
			if !seen {
				i = len(requests)
				seatIndex[seat] = i
				bidderReq := *request
				bidderReq.Imp = nil
				requests = append(requests, bidderRequest{
					seat:       openrtb_ext.BidderName(seat),
					coreBidder: coreBidder,
					request:    bidderReq,
				})
			}
			requests[i].request.Imp = append(requests[i].request.Imp, bidderImp)
			return nil
		})
		if err != nil && len(imp.Ext) > 0 {
			return nil, &errortypes.BadInput{
				Message: fmt.Sprintf("Error decoding bidRequest.imp.ext for impId = %s : %s", imp.ID, err.Error()),
			}
		}
	}
	return requests, nil
}

func (f *httpFanout) callBidder(ctx context.Context, req *bidderRequest, debug bool) *entities.BidderResponse {
	start := f.clock.Now()
	response := &entities.BidderResponse{Bidder: req.seat}

	httpInfo := f.doRequest(ctx, f.endpoints[req.coreBidder], &req.request)
	response.ResponseTime = f.clock.Since(start)
	if debug {
		response.HttpCalls = append(response.HttpCalls, makeExt(httpInfo))
	}
	if httpInfo.err != nil {
		response.Errors = append(response.Errors, httpInfo.err)
		return response
	}
	if httpInfo.status == http.StatusNoContent {
		return response
	}

	var bidResponse openrtb2.BidResponse
	if err := json.Unmarshal(httpInfo.responseBody, &bidResponse); err != nil {
		response.Errors = append(response.Errors, &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Bad server response: %v", err),
		})
		return response
	}

	currency := bidResponse.Cur
	if currency == "" {
		currency = defaultBidCurrency
	}
	impTypes := make(map[string]openrtb_ext.BidType, len(req.request.Imp))
	for i := range req.request.Imp {
		impTypes[req.request.Imp[i].ID] = impMediaType(&req.request.Imp[i])
	}
	for _, seatBid := range bidResponse.SeatBid {
		for i := range seatBid.Bid {
			bid := seatBid.Bid[i]
			bidType, err := liveBidType(&bid, impTypes)
			if err != nil {
				response.Errors = append(response.Errors, err)
				continue
			}
			response.Bids = append(response.Bids, &entities.PbsOrtbBid{
				Bid:         &bid,
				BidType:     bidType,
				BidCurrency: currency,
			})
		}
	}
	return response
}

func (f *httpFanout) doRequest(ctx context.Context, endpoint string, request *openrtb2.BidRequest) *httpCallInfo {
	info := &httpCallInfo{uri: endpoint}

	body, err := json.Marshal(request)
	if err != nil {
		info.err = err
		return info
	}
	info.requestBody = body

	httpReq, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		info.err = err
		return info
	}
	httpReq.Header.Set("Content-Type", "application/json;charset=utf-8")
	httpReq.Header.Set("Accept", "application/json")
	info.headers = httpReq.Header

	httpResp, err := ctxhttp.Do(ctx, f.client, httpReq)
	if err != nil {
		if err == context.DeadlineExceeded {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		info.err = err
		return info
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		info.err = err
		return info
	}
	info.status = httpResp.StatusCode
	info.responseBody = respBody

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusNoContent {
		glog.V(2).Infof("Bidder %s responded with status %d", endpoint, httpResp.StatusCode)
		info.err = &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Server responded with failure status: %d. Set request.ext.prebid.debug = true for debugging info.", httpResp.StatusCode),
		}
	}
	return info
}

// makeExt transforms information about the HTTP call into the contract class for the PBS response.
func makeExt(httpInfo *httpCallInfo) *openrtb_ext.ExtHttpCall {
	return &openrtb_ext.ExtHttpCall{
		Uri:            httpInfo.uri,
		RequestBody:    string(httpInfo.requestBody),
		RequestHeaders: httpInfo.headers,
		ResponseBody:   string(httpInfo.responseBody),
		Status:         httpInfo.status,
	}
}

// liveBidType prefers bid.mtype, then bid.ext.prebid.type, then the format of the imp.
func liveBidType(bid *openrtb2.Bid, impTypes map[string]openrtb_ext.BidType) (openrtb_ext.BidType, error) {
	switch bid.MType {
	case openrtb2.MarkupBanner:
		return openrtb_ext.BidTypeBanner, nil
	case openrtb2.MarkupVideo:
		return openrtb_ext.BidTypeVideo, nil
	case openrtb2.MarkupAudio:
		return openrtb_ext.BidTypeAudio, nil
	case openrtb2.MarkupNative:
		return openrtb_ext.BidTypeNative, nil
	}

	if bidType, err := jsonparser.GetString(bid.Ext, "prebid", "type"); err == nil && bidType != "" {
		return openrtb_ext.ParseBidType(bidType)
	}
	if bidType, ok := impTypes[bid.ImpID]; ok {
		return bidType, nil
	}
	return "", &errortypes.BadServerResponse{
		Message: fmt.Sprintf("Bid %s is for an unknown imp %s", bid.ID, bid.ImpID),
	}
}

func impMediaType(imp *openrtb2.Imp) openrtb_ext.BidType {
	switch {
	case imp.Banner != nil:
		return openrtb_ext.BidTypeBanner
	case imp.Video != nil:
		return openrtb_ext.BidTypeVideo
	case imp.Native != nil:
		return openrtb_ext.BidTypeNative
	case imp.Audio != nil:
		return openrtb_ext.BidTypeAudio
	default:
		return openrtb_ext.BidTypeBanner
	}
}
