package metrics

import (
	"time"

	"github.com/prebid/stored-responses/openrtb_ext"
)

// Labels defines the labels that can be attached to the auction request metrics.
type Labels struct {
	RequestStatus RequestStatus
}

// AdapterLabels defines the labels that can be attached to the per bidder metrics.
type AdapterLabels struct {
	Adapter openrtb_ext.BidderName
	Source  BidSource
}

type StoredDataType string

const (
	ResponseDataType StoredDataType = "response"
)

func StoredDataTypes() []StoredDataType {
	return []StoredDataType{
		ResponseDataType,
	}
}

type StoredDataLabels struct {
	DataType StoredDataType
	Error    StoredDataError
}

type StoredDataError string

const (
	StoredDataErrorNetwork   StoredDataError = "network"
	StoredDataErrorTimeout   StoredDataError = "timeout"
	StoredDataErrorUndefined StoredDataError = "undefined"
)

func StoredDataErrors() []StoredDataError {
	return []StoredDataError{
		StoredDataErrorNetwork,
		StoredDataErrorTimeout,
		StoredDataErrorUndefined,
	}
}

// RequestStatus : The request return status
type RequestStatus string

// The request statuses
const (
	RequestStatusOK       RequestStatus = "ok"
	RequestStatusBadInput RequestStatus = "badinput"
	RequestStatusErr      RequestStatus = "err"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
	}
}

// StoredResponseType : The kind of stored response directive found on an impression
type StoredResponseType string

const (
	// StoredResponseAuction covers every seat of the impression
	StoredResponseAuction StoredResponseType = "auction"
	// StoredResponseBid covers a single bidder of the impression
	StoredResponseBid StoredResponseType = "bid"
)

func StoredResponseTypes() []StoredResponseType {
	return []StoredResponseType{
		StoredResponseAuction,
		StoredResponseBid,
	}
}

// BidSource : Where the bids of a bidder response came from
type BidSource string

const (
	BidSourceLive   BidSource = "live"
	BidSourceStored BidSource = "stored"
)

func BidSources() []BidSource {
	return []BidSource{
		BidSourceLive,
		BidSourceStored,
	}
}

// CacheResult : Cache hit/miss
type CacheResult string

const (
	// CacheHit represents a cache hit i.e the key was found in cache
	CacheHit CacheResult = "hit"
	// CacheMiss represents a cache miss i.e that key wasn't found in cache
	// and had to be fetched from the backend
	CacheMiss CacheResult = "miss"
)

// CacheResults returns possible cache results i.e. cache hit or miss
func CacheResults() []CacheResult {
	return []CacheResult{
		CacheHit,
		CacheMiss,
	}
}

// MetricsEngine is a generic interface to record metrics into the desired backend.
// RecordRequest and RecordRequestTime fire once per auction. The stored response metrics fire once
// per directive, fetch or cache lookup, and RecordAdapterBidReceived once per bid in the final responses.
type MetricsEngine interface {
	RecordRequest(labels Labels)
	RecordRequestTime(labels Labels, length time.Duration) // only statusOk is timed
	RecordStoredResponse(responseType StoredResponseType)
	RecordStoredResponseCacheResult(cacheResult CacheResult, inc int)
	RecordStoredDataFetchTime(labels StoredDataLabels, length time.Duration)
	RecordStoredDataError(labels StoredDataLabels)
	// This records whether or not a bid of a particular type uses `adm` or `nurl`.
	RecordAdapterBidReceived(labels AdapterLabels, bidType openrtb_ext.BidType, hasAdm bool)
}
