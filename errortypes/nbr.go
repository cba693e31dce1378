package errortypes

import "github.com/prebid/openrtb/v20/openrtb3"

// GetNBRCodeFromError maps a fatal auction error onto the OpenRTB no-bid reason sent back to the caller.
func GetNBRCodeFromError(err error) openrtb3.NoBidReason {
	switch ReadCode(err) {
	case TimeoutErrorCode:
		return openrtb3.NoBidInsufficientTime
	case BadInputErrorCode:
		return openrtb3.NoBidInvalidRequest
	case BadServerResponseErrorCode, FailedToUnmarshalErrorCode:
		return openrtb3.NoBidTechnicalError
	default:
		return openrtb3.NoBidUnknownError
	}
}
