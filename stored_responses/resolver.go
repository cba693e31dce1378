package stored_responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/stored-responses/errortypes"
	"github.com/prebid/stored-responses/metrics"
	"github.com/prebid/stored-responses/openrtb_ext"
	"github.com/prebid/stored-responses/stored_requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func (p *Processor) resolveStoredSeatBids(ctx context.Context, ids []string, idToBidType map[string]openrtb_ext.BidType, tmax int64) ([]openrtb2.SeatBid, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	storedData, err := p.fetchStoredResponses(ctx, ids, tmax)
	if err != nil {
		return nil, err
	}

	var seatBids []openrtb2.SeatBid
	for _, id := range ids {
		rawSeatBids, ok := storedData[id]
		if !ok {
			glog.V(2).Infof("Stored response %s was not found. Its seats will be missing from the auction.", id)
			continue
		}

		var storedSeatBids []openrtb2.SeatBid
		if err := json.Unmarshal(rawSeatBids, &storedSeatBids); err != nil {
			return nil, &errortypes.BadInput{
				Message: fmt.Sprintf("Can't parse Json for stored response with id %s", id),
			}
		}
		for i := range storedSeatBids {
			if err := setSeatBidType(&storedSeatBids[i], idToBidType[id]); err != nil {
				return nil, err
			}
		}
		seatBids = append(seatBids, storedSeatBids...)
	}

	for _, seatBid := range seatBids {
		if seatBid.Seat == "" {
			return nil, &errortypes.BadInput{Message: "Seat can't be empty in stored response seatBid"}
		}
	}

	return mergeSameSeat(seatBids), nil
}

// fetchStoredResponses makes the single store call of a resolution. Missing ids are not errors.
func (p *Processor) fetchStoredResponses(ctx context.Context, ids []string, tmax int64) (map[string]json.RawMessage, error) {
	timeout := p.defaultTimeout
	if tmax > 0 {
		timeout = tmaxDuration(tmax)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.clock.Now()
	storedData, errs := p.fetcher.FetchResponses(fetchCtx, ids)
	p.metricsEngine.RecordStoredDataFetchTime(metrics.StoredDataLabels{DataType: metrics.ResponseDataType}, p.clock.Since(start))

	for _, err := range errs {
		var notFound stored_requests.NotFoundError
		if errors.As(err, &notFound) {
			continue
		}
		p.metricsEngine.RecordStoredDataError(metrics.StoredDataLabels{
			DataType: metrics.ResponseDataType,
			Error:    storedDataError(err),
		})
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Stored response fetching failed with reason: %s", err.Error()),
		}
	}
	return storedData, nil
}

// tmaxDuration converts tmax milliseconds, saturating at the longest representable duration.
func tmaxDuration(tmax int64) time.Duration {
	if tmax > maxTMaxMillis {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(tmax) * time.Millisecond
}

const maxTMaxMillis = int64(math.MaxInt64 / int64(time.Millisecond))

func storedDataError(err error) metrics.StoredDataError {
	switch errortypes.ReadCode(err) {
	case errortypes.TimeoutErrorCode:
		return metrics.StoredDataErrorTimeout
	case errortypes.BadServerResponseErrorCode:
		return metrics.StoredDataErrorNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.StoredDataErrorTimeout
	}
	return metrics.StoredDataErrorUndefined
}

func setSeatBidType(seatBid *openrtb2.SeatBid, bidType openrtb_ext.BidType) error {
	for i := range seatBid.Bid {
		ext, err := setBidType(seatBid.Bid[i].Ext, bidType)
		if err != nil {
			return err
		}
		seatBid.Bid[i].Ext = ext
	}
	return nil
}

// setBidType fills in ext.prebid.type unless the bid already has one. Other ext bytes are kept as they are.
func setBidType(ext json.RawMessage, bidType openrtb_ext.BidType) (json.RawMessage, error) {
	bidExt := gjson.ParseBytes(ext)
	if len(ext) == 0 || bidExt.Type == gjson.Null {
		return json.RawMessage(`{"prebid":{"type":"` + string(bidType) + `"}}`), nil
	}
	if !bidExt.IsObject() {
		return nil, errBidExtPrebid()
	}

	prebid := bidExt.Get("prebid")
	switch {
	case !prebid.Exists() || prebid.Type == gjson.Null:
		return sjson.SetRawBytes(ext, "prebid", []byte(`{"type":"`+string(bidType)+`"}`))
	case !prebid.IsObject():
		return nil, errBidExtPrebid()
	case prebid.Get("type").String() != "":
		return ext, nil
	default:
		return sjson.SetBytes(ext, "prebid.type", string(bidType))
	}
}

func errBidExtPrebid() error {
	return &errortypes.FailedToUnmarshal{Message: "Error decoding stored response bid.ext.prebid"}
}

// mergeSameSeat folds seat bids sharing a seat into one, keeping the order in which seats first appear.
// Bids are concatenated in order and the first non-empty ext wins.
func mergeSameSeat(seatBids []openrtb2.SeatBid) []openrtb2.SeatBid {
	if len(seatBids) == 0 {
		return nil
	}

	merged := make([]openrtb2.SeatBid, 0, len(seatBids))
	seatIndex := make(map[string]int, len(seatBids))
	for _, seatBid := range seatBids {
		i, seen := seatIndex[seatBid.Seat]
		if !seen {
			seatIndex[seatBid.Seat] = len(merged)
			merged = append(merged, openrtb2.SeatBid{Seat: seatBid.Seat})
			i = len(merged) - 1
		}
		merged[i].Bid = append(merged[i].Bid, seatBid.Bid...)
		if !hasExt(merged[i].Ext) && hasExt(seatBid.Ext) {
			merged[i].Ext = seatBid.Ext
		}
	}
	return merged
}

func hasExt(ext json.RawMessage) bool {
	return len(ext) > 0 && gjson.ParseBytes(ext).Type != gjson.Null
}
